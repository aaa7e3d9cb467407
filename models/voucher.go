package models

import "time"

// VoucherStatus is the voucher lifecycle: issued → redeemed. Locked is a
// terminal administrative state (e.g. fraud hold).
type VoucherStatus string

const (
	VoucherStatusIssued   VoucherStatus = "issued"
	VoucherStatusRedeemed VoucherStatus = "redeemed"
	VoucherStatusLocked   VoucherStatus = "locked"
)

// VoucherSource tags which path granted the voucher
type VoucherSource string

const (
	VoucherSourceBase      VoucherSource = "base"
	VoucherSourceMilestone VoucherSource = "milestone"
	VoucherSourceChoice    VoucherSource = "choice"
	VoucherSourceSpin      VoucherSource = "spin"
)

// Voucher is a granted, scoped benefit. The composite unique index is the
// idempotency backstop: every issuing path does a conditional insert against
// it and branches on whether a row was actually created.
type Voucher struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID      string `gorm:"not null;uniqueIndex:idx_vouchers_user_date_type_scope,priority:1" json:"user_id"`
	EventDate   string `gorm:"not null;size:10;uniqueIndex:idx_vouchers_user_date_type_scope,priority:2" json:"event_date"`
	VoucherType string `gorm:"not null;uniqueIndex:idx_vouchers_user_date_type_scope,priority:3" json:"voucher_type"`
	Scope       string `gorm:"not null;uniqueIndex:idx_vouchers_user_date_type_scope,priority:4" json:"scope"`

	Amount   float64                `json:"amount"`
	Source   VoucherSource          `gorm:"not null;index" json:"source"`
	Status   VoucherStatus          `gorm:"not null;default:'issued'" json:"status"`
	Metadata map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`

	// Conditional upgrade bookkeeping: set once, never re-applied
	UpgradeApplied       bool       `gorm:"default:false" json:"upgrade_applied"`
	UpgradeReferralCount int        `gorm:"default:0" json:"upgrade_referral_count,omitempty"`
	RedeemedAt           *time.Time `json:"redeemed_at,omitempty"`

	Timestamps
}

// SpinResult records the single spin-wheel outcome per (user, event_date).
// Later spins return the stored result unchanged.
type SpinResult struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string `gorm:"not null;uniqueIndex:idx_spins_user_date,priority:1" json:"user_id"`
	EventDate string `gorm:"not null;size:10;uniqueIndex:idx_spins_user_date,priority:2" json:"event_date"`
	ItemKey   string `gorm:"not null" json:"item_key"`
	ItemLabel string `json:"item_label"`

	Timestamps
}
