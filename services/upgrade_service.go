// services/upgrade_service.go
package services

import (
	"log"

	"campaign-engine-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UpgradeService struct {
	DB      *gorm.DB
	Events  *EventService
	Enabled FeatureFlag
}

func NewUpgradeService(db *gorm.DB, events *EventService, enabled FeatureFlag) *UpgradeService {
	return &UpgradeService{DB: db, Events: events, Enabled: enabled}
}

// ruleSatisfied checks one upgrade rule against the day's completed-referral
// count
func ruleSatisfied(rule *models.UpgradeRule, referralsToday int) bool {
	return referralsToday >= rule.MinReferrals
}

// Evaluate handles POST /s/campaign/upgrades/evaluate. For each satisfied
// rule it upgrades the matching still-issued voucher in place, exactly once:
// already-upgraded vouchers carry the upgrade_applied tag and are skipped,
// so re-invocation is safe.
func (s *UpgradeService) Evaluate(c *fiber.Ctx) error {
	if !s.Enabled() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "campaign engine is disabled", "code": CodeFeatureDisabled})
	}
	userID := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var req struct {
		EventDate string `json:"event_date"`
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

	var upgrades []models.Voucher

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		referralsToday, err := referralsCompletedOn(tx, userID, ev.EventDate)
		if err != nil {
			return err
		}

		for i := range ev.Config.Upgrades {
			rule := &ev.Config.Upgrades[i]
			if !ruleSatisfied(rule, referralsToday) {
				continue
			}

			var voucher models.Voucher
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND event_date = ? AND voucher_type = ? AND scope = ? AND status = ? AND upgrade_applied = false",
					userID, ev.EventDate, rule.TargetType, rule.TargetScope, models.VoucherStatusIssued).
				First(&voucher).Error
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					continue // nothing to upgrade, or already upgraded
				}
				return err
			}

			voucher.VoucherType = rule.NewType
			voucher.Scope = rule.NewScope
			voucher.Amount = rule.NewAmount
			voucher.UpgradeApplied = true
			voucher.UpgradeReferralCount = referralsToday
			if voucher.Metadata == nil {
				voucher.Metadata = map[string]interface{}{}
			}
			voucher.Metadata["upgraded_from"] = rule.TargetType
			if err := tx.Save(&voucher).Error; err != nil {
				return err
			}
			upgrades = append(upgrades, voucher)
		}

		outcome := "noop"
		if len(upgrades) > 0 {
			outcome = "processed"
		}
		if err := appendAudit(tx, userID, ev.EventDate, "upgrade_evaluate", outcome, map[string]interface{}{
			"referrals_today": referralsToday,
			"upgrades":        len(upgrades),
		}); err != nil {
			return err
		}
		return bumpMetrics(tx, ev.EventDate, map[string]int64{"upgrades_applied": int64(len(upgrades))})
	})
	if txErr != nil {
		log.Printf("Upgrade evaluation failed for user %s on %s: %v", userID, ev.EventDate, txErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "upgrade evaluation failed", "code": CodeStoreError})
	}

	status := "noop"
	if len(upgrades) > 0 {
		status = "processed"
	}
	return c.JSON(fiber.Map{"status": status, "upgrades": upgrades})
}
