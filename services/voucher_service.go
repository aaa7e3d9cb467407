// services/voucher_service.go
package services

import (
	"errors"
	"log"
	"time"

	"campaign-engine-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VoucherService struct {
	DB *gorm.DB
}

func NewVoucherService(db *gorm.DB) *VoucherService {
	return &VoucherService{DB: db}
}

// GetUserVouchers fetches vouchers for the authenticated user
func (s *VoucherService) GetUserVouchers(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	query := s.DB.Where("user_id = ?", userID)

	if date := c.Query("date"); date != "" {
		query = query.Where("event_date = ?", date)
	}
	switch c.Query("status") {
	case "issued":
		query = query.Where("status = ?", models.VoucherStatusIssued)
	case "redeemed":
		query = query.Where("status = ?", models.VoucherStatusRedeemed)
	}

	var vouchers []models.Voucher
	if err := query.Order("created_at DESC").Find(&vouchers).Error; err != nil {
		log.Printf("DB Error fetching user vouchers: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch vouchers"})
	}

	return c.JSON(vouchers)
}

// RedeemVoucher flips an issued voucher to redeemed. This is what arms the
// choice lock: once any choice-sourced voucher is redeemed, the recorded
// choice for that date can no longer change.
func (s *VoucherService) RedeemVoucher(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	voucherID := c.Params("id")

	if _, err := uuid.Parse(voucherID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid voucher ID"})
	}

	var voucher models.Voucher
	var redeemed bool
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", voucherID, userID).
			First(&voucher).Error; err != nil {
			return err
		}
		if voucher.Status != models.VoucherStatusIssued {
			return appendAudit(tx, userID, voucher.EventDate, "voucher_redeem", "conflict", map[string]interface{}{
				"voucher_id": voucher.ID,
				"status":     string(voucher.Status),
			})
		}
		now := time.Now()
		voucher.Status = models.VoucherStatusRedeemed
		voucher.RedeemedAt = &now
		if err := tx.Save(&voucher).Error; err != nil {
			return err
		}
		redeemed = true
		return appendAudit(tx, userID, voucher.EventDate, "voucher_redeem", "redeemed", map[string]interface{}{
			"voucher_id":   voucher.ID,
			"voucher_type": voucher.VoucherType,
			"scope":        voucher.Scope,
		})
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Voucher not found or not owned by user"})
		}
		log.Printf("DB Error redeeming voucher %s: %v", voucherID, txErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to redeem voucher", "code": CodeStoreError})
	}

	if !redeemed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Voucher already redeemed or locked", "code": CodeAlreadyRedeemed})
	}

	return c.JSON(fiber.Map{"message": "Voucher redeemed successfully", "voucher": voucher})
}
