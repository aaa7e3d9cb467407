package models

// DailyMetrics holds per-day counters. All writes are single-statement
// increments (count = count + ?) so concurrent operations never lose updates.
type DailyMetrics struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	EventDate string `gorm:"uniqueIndex;not null;size:10" json:"event_date"`

	Claims          int64 `gorm:"default:0" json:"claims"`
	DuplicateClaims int64 `gorm:"default:0" json:"duplicate_claims"`
	VouchersIssued  int64 `gorm:"default:0" json:"vouchers_issued"`
	EntriesGranted  int64 `gorm:"default:0" json:"entries_granted"`
	Spins           int64 `gorm:"default:0" json:"spins"`
	ChoiceSwitches  int64 `gorm:"default:0" json:"choice_switches"`
	ChoiceResets    int64 `gorm:"default:0" json:"choice_resets"`
	UpgradesApplied int64 `gorm:"default:0" json:"upgrades_applied"`

	Timestamps
}
