// services/event_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"campaign-engine-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type EventService struct {
	DB *gorm.DB
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{DB: db}
}

// localNow is the caller's wall clock: server time minus the reported offset.
// tzOffsetMin follows the JS Date.getTimezoneOffset convention (minutes
// behind UTC, positive west of Greenwich). The offset is taken as reported;
// see the claim-window note in DESIGN.md.
func localNow(now time.Time, tzOffsetMin int) time.Time {
	return now.UTC().Add(-time.Duration(tzOffsetMin) * time.Minute)
}

// claimWindow returns the event's claim window in the caller's local frame:
// [local midnight + startMin, local midnight + endMin).
func claimWindow(eventDate string, startMin, endMin int) (time.Time, time.Time, error) {
	day, err := time.Parse(dateLayout, eventDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid event date %q: %w", eventDate, err)
	}
	return day.Add(time.Duration(startMin) * time.Minute),
		day.Add(time.Duration(endMin) * time.Minute), nil
}

// inClaimWindow checks the caller's local time against the event window
func inClaimWindow(ev *models.CampaignEvent, now time.Time, tzOffsetMin int) bool {
	start, end, err := claimWindow(ev.EventDate, ev.WindowStartMin, ev.WindowEndMin)
	if err != nil {
		return false
	}
	ln := localNow(now, tzOffsetMin)
	return !ln.Before(start) && ln.Before(end)
}

// localDayBoundsUTC converts the user's local day for eventDate into UTC
// instants, for matching stored UTC timestamps (e.g. referral completions).
func localDayBoundsUTC(eventDate string, tzOffsetMin int) (time.Time, time.Time, error) {
	day, err := time.Parse(dateLayout, eventDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := day.Add(time.Duration(tzOffsetMin) * time.Minute)
	return start, start.Add(24 * time.Hour), nil
}

// prevDay returns the calendar day before a YYYY-MM-DD date
func prevDay(eventDate string) string {
	day, err := time.Parse(dateLayout, eventDate)
	if err != nil {
		return ""
	}
	return day.AddDate(0, 0, -1).Format(dateLayout)
}

// GetPublishedEvent loads the published event for a date, or nil
func (s *EventService) GetPublishedEvent(db *gorm.DB, eventDate string) (*models.CampaignEvent, error) {
	var ev models.CampaignEvent
	if err := db.Where("event_date = ? AND published = true", eventDate).First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// --- Admin Handlers ---

// CreateEvent defines a new daily event (Admin only). The reward config is
// validated here, once, so claim-path code never re-parses it.
func (s *EventService) CreateEvent(c *fiber.Ctx) error {
	var req struct {
		EventDate      string              `json:"event_date" validate:"required"`
		Title          string              `json:"title" validate:"required"`
		Tags           []string            `json:"tags"`
		Config         models.RewardConfig `json:"config"`
		WindowStartMin *int                `json:"window_start_min"`
		WindowEndMin   *int                `json:"window_end_min"`
		Published      bool                `json:"published"`
		PublishAt      *time.Time          `json:"publish_at"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if _, err := time.Parse(dateLayout, req.EventDate); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event_date must be YYYY-MM-DD"})
	}
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}
	if err := req.Config.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid reward config", "cause": err.Error()})
	}

	ev := &models.CampaignEvent{
		EventDate:      req.EventDate,
		Code:           slug.Make(fmt.Sprintf("%s-%s", req.Title, req.EventDate)),
		Title:          cases.Title(language.English).String(req.Title),
		Tags:           req.Tags,
		Config:         req.Config,
		WindowStartMin: 0,
		WindowEndMin:   24 * 60,
		Published:      req.Published,
		PublishAt:      req.PublishAt,
	}
	if req.WindowStartMin != nil {
		ev.WindowStartMin = *req.WindowStartMin
	}
	if req.WindowEndMin != nil {
		ev.WindowEndMin = *req.WindowEndMin
	}
	if ev.WindowEndMin <= ev.WindowStartMin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "window_end_min must be after window_start_min"})
	}

	if err := s.DB.Create(ev).Error; err != nil {
		log.Printf("DB Error creating event: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create event"})
	}

	return c.Status(fiber.StatusCreated).JSON(ev)
}

// UpdateEventStatus publishes or unpublishes an event (Admin only)
func (s *EventService) UpdateEventStatus(c *fiber.Ctx) error {
	eventDate := c.Params("date")

	var req struct {
		Published *bool      `json:"published"`
		PublishAt *time.Time `json:"publish_at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var ev models.CampaignEvent
	if err := s.DB.Where("event_date = ?", eventDate).First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if req.Published != nil {
		ev.Published = *req.Published
		if ev.Published {
			ev.PublishAt = nil
		}
	}
	if req.PublishAt != nil {
		ev.PublishAt = req.PublishAt
	}

	if err := s.DB.Save(&ev).Error; err != nil {
		log.Printf("DB Error updating event status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update event"})
	}

	return c.JSON(ev)
}

// GetEvent returns one event with full config (Admin only)
func (s *EventService) GetEvent(c *fiber.Ctx) error {
	eventDate := c.Params("date")

	var ev models.CampaignEvent
	if err := s.DB.Where("event_date = ?", eventDate).First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Event not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(ev)
}
