// services/metrics_service.go
package services

import (
	"errors"
	"strconv"

	"campaign-engine-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type MetricsService struct {
	DB *gorm.DB
}

func NewMetricsService(db *gorm.DB) *MetricsService {
	return &MetricsService{DB: db}
}

// GetDailyMetrics returns the counters for one date (Admin only)
func (s *MetricsService) GetDailyMetrics(c *fiber.Ctx) error {
	eventDate := c.Params("date")

	var m models.DailyMetrics
	if err := s.DB.Where("event_date = ?", eventDate).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No activity yet: return zeros rather than 404
			return c.JSON(models.DailyMetrics{EventDate: eventDate})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(m)
}

// GetAuditLog returns recent audit entries, filterable by user/date/action
// (Admin only)
func (s *MetricsService) GetAuditLog(c *fiber.Ctx) error {
	query := s.DB.Model(&models.AuditLogEntry{})

	if u := c.Query("user_id"); u != "" {
		query = query.Where("user_id = ?", u)
	}
	if d := c.Query("date"); d != "" {
		query = query.Where("event_date = ?", d)
	}
	if a := c.Query("action"); a != "" {
		query = query.Where("action = ?", a)
	}

	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	var entries []models.AuditLogEntry
	if err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(entries)
}
