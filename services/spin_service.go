// services/spin_service.go
package services

import (
	"errors"
	"log"
	"math/rand"

	"campaign-engine-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SpinService struct {
	DB      *gorm.DB
	Events  *EventService
	Enabled FeatureFlag
}

func NewSpinService(db *gorm.DB, events *EventService, enabled FeatureFlag) *SpinService {
	return &SpinService{DB: db, Events: events, Enabled: enabled}
}

// pickSpinItem selects by inverse-CDF sampling: walk items in configured
// order accumulating normalized weight, pick the first whose cumulative
// weight reaches r. Floating-point shortfall at the top end falls back to
// the first item.
func pickSpinItem(items []models.SpinItem, r float64) *models.SpinItem {
	if len(items) == 0 {
		return nil
	}
	total := 0.0
	for _, it := range items {
		if it.Weight > 0 {
			total += it.Weight
		}
	}
	if total <= 0 {
		return &items[0]
	}
	cum := 0.0
	for i := range items {
		if items[i].Weight <= 0 {
			continue
		}
		cum += items[i].Weight / total
		if cum >= r {
			return &items[i]
		}
	}
	return &items[0]
}

// Spin handles POST /s/campaign/spin — the once-per-day weighted draw.
// Exactly one result is ever recorded per (user, date); later calls return
// the stored result unchanged and issue nothing.
func (s *SpinService) Spin(c *fiber.Ctx) error {
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
	if ev == nil || len(ev.Config.SpinItems) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no spin wheel configured for this date", "code": CodeSpinUnavailable})
	}

	var (
		status  string
		result  models.SpinResult
		granted GrantBatch
	)

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		var claim models.Claim
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND event_date = ?", userID, ev.EventDate).
			First(&claim).Error; err != nil {
			return err // ErrRecordNotFound → requires_claim below
		}

		// Top-level rand locks internally, safe across handler goroutines
		picked := pickSpinItem(ev.Config.SpinItems, rand.Float64())
		result = models.SpinResult{
			UserID:    userID,
			EventDate: ev.EventDate,
			ItemKey:   picked.Key,
			ItemLabel: picked.Label,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_date"}},
			DoNothing: true,
		}).Create(&result)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already spun: discard this draw, return the stored result
			status = "duplicate"
			if err := tx.Where("user_id = ? AND event_date = ?", userID, ev.EventDate).
				First(&result).Error; err != nil {
				return err
			}
			return appendAudit(tx, userID, ev.EventDate, "spin", "duplicate", map[string]interface{}{"item": result.ItemKey})
		}
		status = "spun"

		if err := issueRewardSpecs(tx, userID, ev.EventDate, models.VoucherSourceSpin, picked.Rewards, &granted); err != nil {
			return err
		}
		if err := appendAudit(tx, userID, ev.EventDate, "spin", "spun", map[string]interface{}{
			"item":     picked.Key,
			"vouchers": len(granted.Vouchers),
			"entries":  granted.entryCount(),
		}); err != nil {
			return err
		}
		return bumpMetrics(tx, ev.EventDate, map[string]int64{
			"spins":           1,
			"vouchers_issued": int64(len(granted.Vouchers)),
			"entries_granted": granted.entryCount(),
		})
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "claim the event before spinning", "code": CodeRequiresClaim})
		}
		log.Printf("Spin transaction failed for user %s on %s: %v", userID, ev.EventDate, txErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "spin failed", "code": CodeStoreError})
	}

	return c.JSON(fiber.Map{
		"status":         status,
		"result":         result,
		"vouchers":       granted.Vouchers,
		"raffle_entries": granted.RaffleEntries,
	})
}
