// services/referral_listener.go
package services

import (
	"fmt"
	"log"
	"time"

	"campaign-engine-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferralListener reacts to referral-completion notifications from the
// referral collaborator (delivered by the sync worker) and grants bonus
// raffle entries when the completion day's event defines a multiplier rule.
type ReferralListener struct {
	DB     *gorm.DB
	Events *EventService
}

func NewReferralListener(db *gorm.DB, events *EventService) *ReferralListener {
	return &ReferralListener{DB: db, Events: events}
}

// referralsCompletedOn counts a user's referrals completed during the UTC
// day of eventDate
func referralsCompletedOn(tx *gorm.DB, userID, eventDate string) (int, error) {
	day, err := time.Parse(dateLayout, eventDate)
	if err != nil {
		return 0, err
	}
	var n int64
	err = tx.Model(&models.Referral{}).
		Where("referrer_id = ? AND completed_at >= ? AND completed_at < ?",
			userID, day, day.Add(24*time.Hour)).
		Count(&n).Error
	return int(n), err
}

// HandleReferralCompleted grants bonus entries for one completed referral.
// Grants go to the referrer; the entry accumulator is additive, so each
// distinct referral stacks. A referral already marked bonus_granted (e.g.
// swept up by a claim on the same day) is skipped.
func (l *ReferralListener) HandleReferralCompleted(referralID string) error {
	return l.DB.Transaction(func(tx *gorm.DB) error {
		var r models.Referral
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", referralID).First(&r).Error; err != nil {
			return err
		}
		if r.BonusGranted {
			return nil // already processed
		}
		if r.CompletedAt == nil {
			return fmt.Errorf("referral %s has no completion time", r.ID)
		}

		eventDate := r.CompletedAt.UTC().Format(dateLayout)
		ev, err := l.Events.GetPublishedEvent(tx, eventDate)
		if err != nil {
			return err
		}
		if ev == nil || ev.Config.ReferralBonus == nil {
			// No multiplier rule configured for that date
			return appendAudit(tx, r.ReferrerID, eventDate, "referral_bonus", "noop", map[string]interface{}{
				"referral_id": r.ExternalID,
			})
		}

		rule := ev.Config.ReferralBonus
		count := bonusEntriesPerReferral(rule.Multiplier)
		e := models.RaffleEntry{
			RaffleCode: rule.RaffleCode,
			UserID:     r.ReferrerID,
			Source:     rule.Source,
			EventDate:  eventDate,
			Count:      count,
			LastRef:    r.ExternalID,
		}
		if err := grantEntries(tx, &e); err != nil {
			return err
		}

		now := time.Now()
		r.BonusGranted = true
		r.GrantedAt = &now
		if err := tx.Save(&r).Error; err != nil {
			return err
		}

		log.Printf("[REFERRAL_BONUS] Granted %d entries in %s to %s (referral %s)",
			count, rule.RaffleCode, r.ReferrerID, r.ExternalID)

		if err := appendAudit(tx, r.ReferrerID, eventDate, "referral_bonus", "granted", map[string]interface{}{
			"referral_id": r.ExternalID,
			"raffle":      rule.RaffleCode,
			"entries":     count,
		}); err != nil {
			return err
		}
		return bumpMetrics(tx, eventDate, map[string]int64{"entries_granted": int64(count)})
	})
}
