package models

import "time"

// Referral mirrors completed referrals from the referral service. Rows are
// upserted by the sync worker; the engine only reads them and flips
// BonusGranted after the multiplier listener has issued bonus entries.
type Referral struct {
	ID         string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalID string `gorm:"uniqueIndex;not null" json:"external_id"` // ID in the referral service
	ReferrerID string `gorm:"index;not null" json:"referrer_id"`
	ReferredID string `gorm:"index;not null" json:"referred_id"`

	CompletedAt  *time.Time `gorm:"index" json:"completed_at,omitempty"`
	BonusGranted bool       `gorm:"default:false" json:"bonus_granted"`
	GrantedAt    *time.Time `json:"granted_at,omitempty"`

	Timestamps
}
