package models

import "time"

// AuditLogEntry is an append-only record of every mutating engine call,
// including duplicate/unchanged/noop outcomes.
type AuditLogEntry struct {
	ID        string                 `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string                 `gorm:"index" json:"user_id"`
	EventDate string                 `gorm:"size:10;index" json:"event_date"`
	Action    string                 `gorm:"not null;index" json:"action"` // claim, choice_select, choice_reset, spin, upgrade_evaluate, raffle_draw, referral_bonus, voucher_redeem
	Outcome   string                 `gorm:"not null" json:"outcome"`
	Detail    map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"detail,omitempty"`
	CreatedAt time.Time              `gorm:"autoCreateTime;index" json:"created_at"`
}
