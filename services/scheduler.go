// services/scheduler.go
package services

import (
	"log"
	"time"

	"campaign-engine-system/models"

	"github.com/go-co-op/gocron/v2"
)

func (s *EventService) StartPublishScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: publish events whose publish_at has passed
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var events []models.CampaignEvent
			now := time.Now()
			err := s.DB.Where("published = false AND publish_at IS NOT NULL AND publish_at <= ?", now).
				Find(&events).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, ev := range events {
				ev.Published = true
				ev.PublishAt = nil
				if err := s.DB.Save(&ev).Error; err != nil {
					log.Printf("[Scheduler] Failed to publish event %s: %v", ev.EventDate, err)
				} else {
					log.Printf("✅ Auto-published campaign event: %s (%s)", ev.EventDate, ev.Title)
				}
			}
		}),
	)
}
