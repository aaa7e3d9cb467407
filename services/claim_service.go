// services/claim_service.go
package services

import (
	"errors"
	"log"
	"math"
	"time"

	"campaign-engine-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimService struct {
	DB      *gorm.DB
	Events  *EventService
	Enabled FeatureFlag
}

func NewClaimService(db *gorm.DB, events *EventService, enabled FeatureFlag) *ClaimService {
	return &ClaimService{DB: db, Events: events, Enabled: enabled}
}

// advanceStreak computes the new current streak for a first-time claim on
// eventDate given the previous state. Consecutive day → +1, same day → no
// change, anything else → reset to 1.
func advanceStreak(lastClaimedDate string, current int, eventDate string) int {
	switch lastClaimedDate {
	case eventDate:
		return current
	case prevDay(eventDate):
		return current + 1
	default:
		return 1
	}
}

// bonusEntriesPerReferral is ceil(multiplier), minimum 1
func bonusEntriesPerReferral(multiplier float64) int {
	n := int(math.Ceil(multiplier))
	if n < 1 {
		n = 1
	}
	return n
}

// Claim handles POST /s/campaign/claim — the daily claim orchestrator.
// The whole mutation runs as one transaction; the claim row is read under an
// exclusive lock so concurrent requests for the same (user, date) serialize
// into one "claimed" and the rest "duplicate".
func (s *ClaimService) Claim(c *fiber.Ctx) error {
	if !s.Enabled() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "campaign engine is disabled", "code": CodeFeatureDisabled})
	}

	userID := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var req struct {
		UserID          string                 `json:"user_id"`
		EventDate       string                 `json:"event_date"`
		Payload         map[string]interface{} `json:"payload"`
		TzOffsetMinutes int                    `json:"tz_offset_minutes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID != "" && req.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "cannot claim for another user", "code": CodeForbidden})
	}

	now := time.Now()
	eventDate := req.EventDate
	if eventDate == "" {
		// Default to the caller's "today"
		eventDate = localNow(now, req.TzOffsetMinutes).Format(dateLayout)
	}

	ev, err := s.Events.GetPublishedEvent(s.DB, eventDate)
	if err != nil {
		log.Printf("DB Error loading event %s: %v", eventDate, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}
	if ev == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no published event for this date", "code": CodeEventUnavailable})
	}
	if !inClaimWindow(ev, now, req.TzOffsetMinutes) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "claim window is closed for this date", "code": CodeOutsideWindow})
	}

	var (
		status  string
		claim   models.Claim
		streak  models.Streak
		granted GrantBatch
	)

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the claim row if it exists; serializes concurrent claims
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND event_date = ?", userID, eventDate).
			First(&claim).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err == nil {
			// Duplicate: report existing state, no further mutation
			status = "duplicate"
			if err := tx.Where("user_id = ?", userID).First(&streak).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := bumpMetrics(tx, eventDate, map[string]int64{"duplicate_claims": 1}); err != nil {
				return err
			}
			return appendAudit(tx, userID, eventDate, "claim", "duplicate", nil)
		}

		// First insert wins; the unique index backstops the race where two
		// transactions both saw no row.
		claim = models.Claim{
			UserID:    userID,
			EventDate: eventDate,
			Payload:   req.Payload,
			ClaimedAt: now,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_date"}},
			DoNothing: true,
		}).Create(&claim)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			status = "duplicate"
			if err := tx.Where("user_id = ? AND event_date = ?", userID, eventDate).First(&claim).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", userID).First(&streak).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := bumpMetrics(tx, eventDate, map[string]int64{"duplicate_claims": 1}); err != nil {
				return err
			}
			return appendAudit(tx, userID, eventDate, "claim", "duplicate", nil)
		}
		status = "claimed"

		// Streak update under lock
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&streak).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			streak = models.Streak{UserID: userID}
		} else if err != nil {
			return err
		}
		streak.CurrentStreak = advanceStreak(streak.LastClaimedDate, streak.CurrentStreak, eventDate)
		if streak.CurrentStreak > streak.MaxStreak {
			streak.MaxStreak = streak.CurrentStreak
		}
		streak.LastClaimedDate = eventDate
		if err := tx.Save(&streak).Error; err != nil {
			return err
		}

		// Base rewards
		if err := issueRewardSpecs(tx, userID, eventDate, models.VoucherSourceBase, ev.Config.BaseRewards, &granted); err != nil {
			return err
		}

		// Referral-driven bonus: referrals completed within the caller's
		// local day that have not yet been rewarded by the listener
		if rule := ev.Config.ReferralBonus; rule != nil {
			dayStart, dayEnd, err := localDayBoundsUTC(eventDate, req.TzOffsetMinutes)
			if err != nil {
				return err
			}
			var refs []models.Referral
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("referrer_id = ? AND bonus_granted = false AND completed_at >= ? AND completed_at < ?",
					userID, dayStart, dayEnd).
				Find(&refs).Error; err != nil {
				return err
			}
			if len(refs) > 0 {
				per := bonusEntriesPerReferral(rule.Multiplier)
				e := models.RaffleEntry{
					RaffleCode: rule.RaffleCode,
					UserID:     userID,
					Source:     rule.Source,
					EventDate:  eventDate,
					Count:      len(refs) * per,
				}
				if err := grantEntries(tx, &e); err != nil {
					return err
				}
				granted.RaffleEntries = append(granted.RaffleEntries, e)
				grantedAt := time.Now()
				var ids []string
				for _, r := range refs {
					ids = append(ids, r.ID)
				}
				if err := tx.Model(&models.Referral{}).Where("id IN ?", ids).
					Updates(map[string]interface{}{"bonus_granted": true, "granted_at": grantedAt}).Error; err != nil {
					return err
				}
			}
		}

		// Streak milestones: achievement insert is the once-only gate
		for _, m := range ev.Config.Milestones {
			if m.Threshold > streak.CurrentStreak {
				continue
			}
			ach := models.Achievement{
				UserID:         userID,
				AchievementKey: m.AchievementKey,
				Title:          m.Title,
				EventDate:      eventDate,
				AchievedAt:     now,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_key"}},
				DoNothing: true,
			}).Create(&ach)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue // already achieved on an earlier day
			}
			granted.Achievements = append(granted.Achievements, ach)
			if err := issueRewardSpecs(tx, userID, eventDate, models.VoucherSourceMilestone, m.Rewards, &granted); err != nil {
				return err
			}
		}

		if err := appendAudit(tx, userID, eventDate, "claim", "claimed", map[string]interface{}{
			"streak":       streak.CurrentStreak,
			"vouchers":     len(granted.Vouchers),
			"entries":      granted.entryCount(),
			"achievements": len(granted.Achievements),
		}); err != nil {
			return err
		}
		return bumpMetrics(tx, eventDate, map[string]int64{
			"claims":          1,
			"vouchers_issued": int64(len(granted.Vouchers)),
			"entries_granted": granted.entryCount(),
		})
	})
	if txErr != nil {
		log.Printf("Claim transaction failed for user %s on %s: %v", userID, eventDate, txErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "claim failed", "code": CodeStoreError})
	}

	return c.JSON(fiber.Map{
		"status": status,
		"claim":  claim,
		"streak": fiber.Map{
			"current": streak.CurrentStreak,
			"max":     streak.MaxStreak,
		},
		"vouchers":       granted.Vouchers,
		"raffle_entries": granted.RaffleEntries,
		"achievements":   granted.Achievements,
	})
}

// GetStatus handles GET /s/campaign/status — the caller's state for a date
func (s *ClaimService) GetStatus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	eventDate := c.Query("date")
	if eventDate == "" {
		eventDate = time.Now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, eventDate); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date must be YYYY-MM-DD"})
	}

	var claim *models.Claim
	var dbClaim models.Claim
	if err := s.DB.Where("user_id = ? AND event_date = ?", userID, eventDate).First(&dbClaim).Error; err == nil {
		claim = &dbClaim
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}

	var streak models.Streak
	if err := s.DB.Where("user_id = ?", userID).First(&streak).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}

	var vouchers []models.Voucher
	if err := s.DB.Where("user_id = ? AND event_date = ?", userID, eventDate).
		Order("created_at ASC").Find(&vouchers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}

	var entries []models.RaffleEntry
	if err := s.DB.Where("user_id = ? AND event_date = ?", userID, eventDate).
		Order("created_at ASC").Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}

	var spin *models.SpinResult
	var dbSpin models.SpinResult
	if err := s.DB.Where("user_id = ? AND event_date = ?", userID, eventDate).First(&dbSpin).Error; err == nil {
		spin = &dbSpin
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "code": CodeStoreError})
	}

	return c.JSON(fiber.Map{
		"event_date": eventDate,
		"claim":      claim,
		"streak": fiber.Map{
			"current": streak.CurrentStreak,
			"max":     streak.MaxStreak,
		},
		"vouchers":       vouchers,
		"raffle_entries": entries,
		"spin_result":    spin,
	})
}
