package models

import "time"

// RaffleStatus — open until the privileged draw runs, then drawn
type RaffleStatus string

const (
	RaffleStatusOpen  RaffleStatus = "open"
	RaffleStatusDrawn RaffleStatus = "drawn"
)

// Raffle holds the draw rules and, once drawn, the seed and result so any
// party can re-run the selection and verify the winners.
type Raffle struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Code        string `gorm:"uniqueIndex;not null" json:"code"`
	Name        string `gorm:"not null" json:"name"`
	WinnerCount int    `gorm:"not null" json:"winner_count"`

	// Per-user weight multipliers (default 1.0) and hard exclusions
	WeightOverrides map[string]float64 `gorm:"type:jsonb;serializer:json" json:"weight_overrides,omitempty"`
	ExcludedUsers   []string           `gorm:"type:jsonb;serializer:json" json:"excluded_users,omitempty"`

	Status     RaffleStatus           `gorm:"not null;default:'open'" json:"status"`
	DrawSeed   *string                `json:"draw_seed,omitempty"`
	DrawResult map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"draw_result,omitempty"`
	DrawnAt    *time.Time             `json:"drawn_at,omitempty"`

	Timestamps
}

// RaffleEntry is an additive accumulator: repeated grants against the same
// (raffle, user, source, date) key merge with count = count + n. This is
// intentionally non-idempotent; only an explicit choice rollback removes rows.
type RaffleEntry struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	RaffleCode string `gorm:"not null;uniqueIndex:idx_entries_raffle_user_source_date,priority:1;index" json:"raffle_code"`
	UserID     string `gorm:"not null;uniqueIndex:idx_entries_raffle_user_source_date,priority:2" json:"user_id"`
	Source     string `gorm:"not null;uniqueIndex:idx_entries_raffle_user_source_date,priority:3" json:"source"`
	EventDate  string `gorm:"not null;size:10;uniqueIndex:idx_entries_raffle_user_source_date,priority:4" json:"event_date"`

	Count int `gorm:"not null;default:0" json:"count"`

	// LastRef tags the most recent grant's trigger (e.g. a referral ID)
	LastRef string `json:"last_ref,omitempty"`

	Timestamps
}

// RaffleWinner is one ranked winner of a drawn raffle. AuditHash binds
// seed + user + position so the ranking is independently verifiable.
type RaffleWinner struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	RaffleCode string `gorm:"not null;uniqueIndex:idx_winners_raffle_position,priority:1" json:"raffle_code"`
	Position   int    `gorm:"not null;uniqueIndex:idx_winners_raffle_position,priority:2" json:"position"`
	UserID     string `gorm:"not null;index" json:"user_id"`
	AuditHash  string `gorm:"not null" json:"audit_hash"`

	Timestamps
}
