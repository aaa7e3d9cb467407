// services/raffle_service.go
package services

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"time"

	"campaign-engine-system/models"
	"campaign-engine-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RaffleService struct {
	DB *gorm.DB
}

func NewRaffleService(db *gorm.DB) *RaffleService {
	return &RaffleService{DB: db}
}

// entrant is one eligible user with their effective draw weight
// (entry count × weight override)
type entrant struct {
	UserID string
	Weight float64
}

// rankedWinner is one draw result row before persistence
type rankedWinner struct {
	UserID    string
	Position  int
	AuditHash string
}

// deriveSeed maps the published seed string and raffle code to the numeric
// seed of the draw generator. Anyone holding the seed can re-derive it.
func deriveSeed(seed, raffleCode string) int64 {
	sum := sha256.Sum256([]byte(seed + "|" + raffleCode))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// AuditHash binds seed, winner and rank so a third party can verify the
// published result without access to the engine.
func AuditHash(seed, userID string, position int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", seed, userID, position)))
	return hex.EncodeToString(sum[:])
}

// rankEntrants runs the weighted draw: a seeded generator assigns each
// entrant an independent uniform U, priority = ln(U)/weight ranks them
// (exponential-weight sampling without replacement), and the top
// winnerCount form the ranked winner list. Entrants are visited in sorted
// order so the draw is fully reproducible from the seed.
func rankEntrants(seed, raffleCode string, entrants []entrant, winnerCount int) []rankedWinner {
	sorted := make([]entrant, len(entrants))
	copy(sorted, entrants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	rng := rand.New(rand.NewSource(deriveSeed(seed, raffleCode)))

	type scored struct {
		userID   string
		priority float64
	}
	scores := make([]scored, 0, len(sorted))
	for _, e := range sorted {
		u := rng.Float64()
		if u == 0 {
			u = math.SmallestNonzeroFloat64
		}
		scores = append(scores, scored{userID: e.UserID, priority: math.Log(u) / e.Weight})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].priority != scores[j].priority {
			return scores[i].priority > scores[j].priority
		}
		return scores[i].userID < scores[j].userID
	})

	if winnerCount > len(scores) {
		winnerCount = len(scores)
	}
	winners := make([]rankedWinner, 0, winnerCount)
	for i := 0; i < winnerCount; i++ {
		pos := i + 1
		winners = append(winners, rankedWinner{
			UserID:    scores[i].userID,
			Position:  pos,
			AuditHash: AuditHash(seed, scores[i].userID, pos),
		})
	}
	return winners
}

// --- Admin Handlers ---

// CreateRaffle defines a new raffle (Admin only)
func (s *RaffleService) CreateRaffle(c *fiber.Ctx) error {
	var req struct {
		Name            string             `json:"name" validate:"required"`
		Code            string             `json:"code"`
		WinnerCount     int                `json:"winner_count" validate:"required,min=1"`
		WeightOverrides map[string]float64 `json:"weight_overrides"`
		ExcludedUsers   []string           `json:"excluded_users"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.WinnerCount < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and a positive winner_count are required"})
	}

	code := req.Code
	if code == "" {
		code = slug.Make(req.Name)
	}

	raffle := &models.Raffle{
		Code:            code,
		Name:            req.Name,
		WinnerCount:     req.WinnerCount,
		WeightOverrides: req.WeightOverrides,
		ExcludedUsers:   req.ExcludedUsers,
		Status:          models.RaffleStatusOpen,
	}
	if err := s.DB.Create(raffle).Error; err != nil {
		log.Printf("DB Error creating raffle: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create raffle"})
	}

	return c.Status(fiber.StatusCreated).JSON(raffle)
}

// GetRaffle returns a raffle with its winners, if drawn
func (s *RaffleService) GetRaffle(c *fiber.Ctx) error {
	code := c.Params("code")

	var raffle models.Raffle
	if err := s.DB.Where("code = ?", code).First(&raffle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Raffle not found", "code": CodeRaffleNotFound})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var winners []models.RaffleWinner
	if raffle.Status == models.RaffleStatusDrawn {
		if err := s.DB.Where("raffle_code = ?", code).Order("position ASC").Find(&winners).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
	}

	return c.JSON(fiber.Map{"raffle": raffle, "winners": winners})
}

// Draw handles POST /s/admin/raffles/:code/draw — the privileged draw.
// The raffle row is held under an exclusive lock for the duration, so a
// concurrent re-invocation blocks and then observes "already drawn".
func (s *RaffleService) Draw(c *fiber.Ctx) error {
	code := c.Params("code")

	var req struct {
		Seed string `json:"seed" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil || req.Seed == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "seed is required"})
	}

	var (
		raffle  models.Raffle
		winners []rankedWinner
	)
	var alreadyDrawn, noEntries bool

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).First(&raffle).Error; err != nil {
			return err
		}
		if raffle.Status == models.RaffleStatusDrawn {
			alreadyDrawn = true
			return nil
		}

		// Aggregate per-user entry counts
		type entryRow struct {
			UserID string
			Total  int64
		}
		var rows []entryRow
		if err := tx.Model(&models.RaffleEntry{}).
			Select("user_id, SUM(count) AS total").
			Where("raffle_code = ?", code).
			Group("user_id").
			Scan(&rows).Error; err != nil {
			return err
		}

		excluded := map[string]bool{}
		for _, u := range raffle.ExcludedUsers {
			excluded[u] = true
		}
		entrants := make([]entrant, 0, len(rows))
		for _, row := range rows {
			if excluded[row.UserID] || row.Total <= 0 {
				continue
			}
			weight := float64(row.Total)
			if o, ok := raffle.WeightOverrides[row.UserID]; ok {
				weight *= o
			}
			if weight <= 0 {
				continue
			}
			entrants = append(entrants, entrant{UserID: row.UserID, Weight: weight})
		}
		if len(entrants) == 0 {
			noEntries = true
			return errRollbackNoEntries // no side effects, not even audit state
		}

		winners = rankEntrants(req.Seed, code, entrants, raffle.WinnerCount)
		for _, w := range winners {
			if err := tx.Create(&models.RaffleWinner{
				RaffleCode: code,
				Position:   w.Position,
				UserID:     w.UserID,
				AuditHash:  w.AuditHash,
			}).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		raffle.Status = models.RaffleStatusDrawn
		raffle.DrawSeed = &req.Seed
		raffle.DrawnAt = &now
		raffle.DrawResult = map[string]interface{}{
			"seed":     req.Seed,
			"entrants": len(entrants),
			"winners":  winners,
		}
		if err := tx.Save(&raffle).Error; err != nil {
			return err
		}

		return appendAudit(tx, "", "", "raffle_draw", "drawn", map[string]interface{}{
			"raffle":   code,
			"seed":     req.Seed,
			"entrants": len(entrants),
			"winners":  len(winners),
		})
	})
	if txErr != nil && !errors.Is(txErr, errRollbackNoEntries) {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Raffle not found", "code": CodeRaffleNotFound})
		}
		log.Printf("Raffle draw failed for %s: %v", code, txErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "draw failed", "code": CodeStoreError})
	}
	if alreadyDrawn {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "raffle already drawn", "code": CodeAlreadyDrawn})
	}
	if noEntries {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "raffle has no entries", "code": CodeNoEntries})
	}

	// Archive the audit record so the draw is verifiable without DB access.
	// Best-effort: a failed upload never undoes a committed draw.
	go s.archiveDraw(&raffle, winners)

	out := make([]fiber.Map, 0, len(winners))
	for _, w := range winners {
		out = append(out, fiber.Map{"user_id": w.UserID, "position": w.Position, "audit_hash": w.AuditHash})
	}
	return c.JSON(fiber.Map{"status": "drawn", "winners": out, "seed": req.Seed})
}

var errRollbackNoEntries = errors.New("no raffle entries")

// archiveDraw uploads the draw audit record as JSON to R2
func (s *RaffleService) archiveDraw(raffle *models.Raffle, winners []rankedWinner) {
	payload, err := json.MarshalIndent(fiber.Map{
		"raffle":   raffle.Code,
		"seed":     raffle.DrawSeed,
		"drawn_at": raffle.DrawnAt,
		"winners":  winners,
	}, "", "  ")
	if err != nil {
		log.Printf("[RAFFLE] Failed to marshal draw archive for %s: %v", raffle.Code, err)
		return
	}
	key := fmt.Sprintf("raffle-draws/%s-%d.json", raffle.Code, raffle.DrawnAt.Unix())
	url, err := utils.UploadBytesToR2(payload, key, "application/json")
	if err != nil {
		log.Printf("[RAFFLE] ⚠️ Failed to archive draw %s to R2: %v", raffle.Code, err)
		return
	}
	log.Printf("[RAFFLE] ✅ Draw audit archived: %s", url)
}
