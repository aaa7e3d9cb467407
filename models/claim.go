package models

import "time"

// Claim is one user's claim of one daily event. At most one row exists per
// (user, event_date); the unique index is what makes concurrent claims safe.
type Claim struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string `gorm:"not null;uniqueIndex:idx_claims_user_date,priority:1" json:"user_id"`
	EventDate string `gorm:"not null;size:10;uniqueIndex:idx_claims_user_date,priority:2" json:"event_date"`

	// ChoiceKey is the currently selected daily choice, if any. It becomes
	// immutable once any choice-sourced voucher for the date is redeemed.
	ChoiceKey *string `json:"choice_key,omitempty"`

	Payload   map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"payload,omitempty"`
	ClaimedAt time.Time              `gorm:"not null" json:"claimed_at"`

	Timestamps
}

// Streak tracks consecutive-day claims per user. CurrentStreak always equals
// the length of the run of consecutive claimed days ending at LastClaimedDate.
type Streak struct {
	ID              string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID          string `gorm:"uniqueIndex;not null" json:"user_id"`
	CurrentStreak   int    `gorm:"default:0" json:"current_streak"`
	MaxStreak       int    `gorm:"default:0" json:"max_streak"`
	LastClaimedDate string `gorm:"size:10" json:"last_claimed_date"` // YYYY-MM-DD, empty until first claim

	Timestamps
}
