package models

import "time"

// Achievement is idempotent: at most one row per (user, achievement_key).
// Milestone rewards are only issued when the row is first created.
type Achievement struct {
	ID             string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID         string    `gorm:"not null;uniqueIndex:idx_achievements_user_key,priority:1" json:"user_id"`
	AchievementKey string    `gorm:"not null;uniqueIndex:idx_achievements_user_key,priority:2" json:"achievement_key"`
	Title          string    `json:"title"`
	EventDate      string    `gorm:"size:10;index" json:"event_date"`
	AchievedAt     time.Time `gorm:"not null" json:"achieved_at"`

	Timestamps
}
