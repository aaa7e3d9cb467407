// services/choice_service.go
package services

import (
	"errors"
	"log"
	"time"

	"campaign-engine-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChoiceService struct {
	DB      *gorm.DB
	Events  *EventService
	Enabled FeatureFlag
}

func NewChoiceService(db *gorm.DB, events *EventService, enabled FeatureFlag) *ChoiceService {
	return &ChoiceService{DB: db, Events: events, Enabled: enabled}
}

// choiceLocked reports whether any choice-sourced voucher for the date has
// left "issued" status. Once that happens the recorded choice is immutable.
func choiceLocked(tx *gorm.DB, userID, eventDate string) (bool, error) {
	var n int64
	err := tx.Model(&models.Voucher{}).
		Where("user_id = ? AND event_date = ? AND source = ? AND status <> ?",
			userID, eventDate, models.VoucherSourceChoice, models.VoucherStatusIssued).
		Count(&n).Error
	return n > 0, err
}

// rollbackChoice removes the previous option's vouchers and raffle entries,
// returning the removed voucher and entry counts for the net metric delta.
// Deletes are unscoped: a soft-deleted row would still occupy the composite
// unique index and make the next option's conditional insert a silent no-op.
func rollbackChoice(tx *gorm.DB, userID, eventDate string, prev *models.ChoiceOption) (int64, int64, error) {
	res := tx.Unscoped().Where("user_id = ? AND event_date = ? AND source = ?",
		userID, eventDate, models.VoucherSourceChoice).
		Delete(&models.Voucher{})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	removedVouchers := res.RowsAffected

	var removedEntries int64
	if prev != nil {
		for _, spec := range prev.Rewards {
			if spec.Kind != models.RewardKindRaffleEntry {
				continue
			}
			var e models.RaffleEntry
			err := tx.Where("raffle_code = ? AND user_id = ? AND source = ? AND event_date = ?",
				spec.RaffleCode, userID, spec.Source, eventDate).
				First(&e).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return 0, 0, err
			}
			// The accumulator may also hold grants from other paths that
			// share the same (raffle, source); take back only this option's
			// count, never the whole row unless nothing else remains.
			take := spec.Count
			if e.Count < take {
				take = e.Count
			}
			scope := tx.Where("raffle_code = ? AND user_id = ? AND source = ? AND event_date = ?",
				spec.RaffleCode, userID, spec.Source, eventDate)
			if e.Count > take {
				err = scope.Model(&models.RaffleEntry{}).
					UpdateColumn("count", gorm.Expr("count - ?", take)).Error
			} else {
				err = scope.Unscoped().Delete(&models.RaffleEntry{}).Error
			}
			if err != nil {
				return 0, 0, err
			}
			removedEntries += int64(take)
		}
	}
	return removedVouchers, removedEntries, nil
}

// Select handles POST /s/campaign/choice — pick or switch the daily choice
func (s *ChoiceService) Select(c *fiber.Ctx) error {
	if !s.Enabled() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "campaign engine is disabled", "code": CodeFeatureDisabled})
	}
	userID := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var req struct {
		EventDate       string `json:"event_date"`
		ChoiceKey       string `json:"choice_key"`
		TzOffsetMinutes int    `json:"tz_offset_minutes"`
	}
	if err := c.BodyParser(&req); err != nil || req.ChoiceKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "choice_key is required"})
	}

	now := time.Now()
	ev, err := s.Events.GetPublishedEvent(s.DB, req.EventDate)
	if err != nil {
		log.Printf("DB Error loading event %s: %v", req.EventDate, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}
	if ev == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no published event for this date", "code": CodeEventUnavailable})
	}
	if !inClaimWindow(ev, now, req.TzOffsetMinutes) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "claim window is closed for this date", "code": CodeOutsideWindow})
	}
	opt := ev.Config.ChoiceByKey(req.ChoiceKey)
	if opt == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown choice key", "code": CodeInvalidChoice})
	}

	var (
		status  string
		claim   models.Claim
		granted GrantBatch
		locked  bool
	)

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND event_date = ?", userID, ev.EventDate).
			First(&claim).Error; err != nil {
			return err // ErrRecordNotFound → requires_claim below
		}

		if claim.ChoiceKey != nil && *claim.ChoiceKey == opt.Key {
			status = "unchanged"
			return appendAudit(tx, userID, ev.EventDate, "choice_select", "unchanged", map[string]interface{}{"choice": opt.Key})
		}

		var removedVouchers, removedEntries int64
		if claim.ChoiceKey != nil {
			var err error
			if locked, err = choiceLocked(tx, userID, ev.EventDate); err != nil {
				return err
			}
			if locked {
				// Commit only the audit entry for the rejected switch
				if err := appendAudit(tx, userID, ev.EventDate, "choice_select", "locked", map[string]interface{}{"choice": opt.Key}); err != nil {
					return err
				}
				return nil
			}
			prev := ev.Config.ChoiceByKey(*claim.ChoiceKey)
			if removedVouchers, removedEntries, err = rollbackChoice(tx, userID, ev.EventDate, prev); err != nil {
				return err
			}
		}

		claim.ChoiceKey = &opt.Key
		if err := tx.Save(&claim).Error; err != nil {
			return err
		}
		if err := issueRewardSpecs(tx, userID, ev.EventDate, models.VoucherSourceChoice, opt.Rewards, &granted); err != nil {
			return err
		}
		status = "recorded"

		if err := appendAudit(tx, userID, ev.EventDate, "choice_select", "recorded", map[string]interface{}{
			"choice":           opt.Key,
			"removed_vouchers": removedVouchers,
			"removed_entries":  removedEntries,
		}); err != nil {
			return err
		}
		return bumpMetrics(tx, ev.EventDate, map[string]int64{
			"choice_switches": 1,
			"vouchers_issued": int64(len(granted.Vouchers)) - removedVouchers,
			"entries_granted": granted.entryCount() - removedEntries,
		})
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "claim the event before choosing", "code": CodeRequiresClaim})
		}
		log.Printf("Choice transaction failed for user %s on %s: %v", userID, ev.EventDate, txErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "choice selection failed", "code": CodeStoreError})
	}
	if locked {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "a reward from the current choice was already redeemed", "code": CodeChoiceLocked})
	}

	return c.JSON(fiber.Map{
		"status":         status,
		"claim":          claim,
		"choice":         opt.Key,
		"vouchers":       granted.Vouchers,
		"raffle_entries": granted.RaffleEntries,
	})
}

// Reset handles DELETE /s/campaign/choice — remove the recorded choice and
// its rewards. Noop when no choice is set; same lock rule as switching.
func (s *ChoiceService) Reset(c *fiber.Ctx) error {
	if !s.Enabled() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "campaign engine is disabled", "code": CodeFeatureDisabled})
	}
	userID := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var req struct {
		EventDate       string `json:"event_date"`
		TzOffsetMinutes int    `json:"tz_offset_minutes"`
	}
	if err := c.BodyParser(&req); err != nil || req.EventDate == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event_date is required"})
	}

	ev, err := s.Events.GetPublishedEvent(s.DB, req.EventDate)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}
	if ev == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no published event for this date", "code": CodeEventUnavailable})
	}
	if !inClaimWindow(ev, time.Now(), req.TzOffsetMinutes) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "claim window is closed for this date", "code": CodeOutsideWindow})
	}

	var (
		status          string
		removedVouchers int64
		removedEntries  int64
		locked          bool
	)

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		var claim models.Claim
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND event_date = ?", userID, ev.EventDate).
			First(&claim).Error; err != nil {
			return err
		}

		if claim.ChoiceKey == nil {
			status = "noop"
			return appendAudit(tx, userID, ev.EventDate, "choice_reset", "noop", nil)
		}

		var err error
		if locked, err = choiceLocked(tx, userID, ev.EventDate); err != nil {
			return err
		}
		if locked {
			return appendAudit(tx, userID, ev.EventDate, "choice_reset", "locked", nil)
		}

		prev := ev.Config.ChoiceByKey(*claim.ChoiceKey)
		if removedVouchers, removedEntries, err = rollbackChoice(tx, userID, ev.EventDate, prev); err != nil {
			return err
		}
		claim.ChoiceKey = nil
		if err := tx.Save(&claim).Error; err != nil {
			return err
		}
		status = "reset"

		if err := appendAudit(tx, userID, ev.EventDate, "choice_reset", "reset", map[string]interface{}{
			"removed_vouchers": removedVouchers,
			"removed_entries":  removedEntries,
		}); err != nil {
			return err
		}
		return bumpMetrics(tx, ev.EventDate, map[string]int64{
			"choice_resets":   1,
			"vouchers_issued": -removedVouchers,
			"entries_granted": -removedEntries,
		})
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "claim the event before resetting", "code": CodeRequiresClaim})
		}
		log.Printf("Choice reset failed for user %s on %s: %v", userID, ev.EventDate, txErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "choice reset failed", "code": CodeStoreError})
	}
	if locked {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "a reward from the current choice was already redeemed", "code": CodeChoiceLocked})
	}

	return c.JSON(fiber.Map{
		"status":           status,
		"removed_vouchers": removedVouchers,
		"removed_entries":  removedEntries,
	})
}
