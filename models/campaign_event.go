package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RewardKind tags the two shapes a reward specification can take
type RewardKind string

const (
	RewardKindVoucher     RewardKind = "voucher"
	RewardKindRaffleEntry RewardKind = "raffle_entry"
)

// RewardSpec is one granted benefit: either a voucher or a batch of raffle
// entries. Which fields matter depends on Kind.
type RewardSpec struct {
	Kind RewardKind `json:"kind"`

	// voucher
	VoucherType string                 `json:"voucher_type,omitempty"`
	Scope       string                 `json:"scope,omitempty"`
	Amount      float64                `json:"amount,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// raffle_entry
	RaffleCode string `json:"raffle_code,omitempty"`
	Source     string `json:"source,omitempty"`
	Count      int    `json:"count,omitempty"`
}

// ChoiceOption is one of the mutually exclusive daily rewards
type ChoiceOption struct {
	Key     string       `json:"key"`
	Label   string       `json:"label"`
	Rewards []RewardSpec `json:"rewards"`
}

// StreakMilestone awards an achievement (once) when the user's current
// streak reaches Threshold
type StreakMilestone struct {
	Threshold      int          `json:"threshold"`
	AchievementKey string       `json:"achievement_key"`
	Title          string       `json:"title"`
	Rewards        []RewardSpec `json:"rewards"`
}

// UpgradeRule replaces an already-issued voucher in place once the user's
// same-day completed-referral count reaches MinReferrals
type UpgradeRule struct {
	TargetType   string  `json:"target_type"`
	TargetScope  string  `json:"target_scope"`
	MinReferrals int     `json:"min_referrals"`
	NewType      string  `json:"new_type"`
	NewScope     string  `json:"new_scope"`
	NewAmount    float64 `json:"new_amount"`
}

// SpinItem is one slot on the daily spin wheel
type SpinItem struct {
	Key     string       `json:"key"`
	Label   string       `json:"label"`
	Weight  float64      `json:"weight"`
	Rewards []RewardSpec `json:"rewards"`
}

// ReferralBonusRule grants bonus raffle entries per referral completed on the
// event's day. The claim path and the completion listener both consult it.
type ReferralBonusRule struct {
	RaffleCode string  `json:"raffle_code"`
	Source     string  `json:"source"`
	Multiplier float64 `json:"multiplier"` // entries per completed referral (ceil, min 1)
}

// RewardConfig is the full per-date reward specification. It is validated
// once when the event is defined, not re-checked on every claim.
type RewardConfig struct {
	BaseRewards   []RewardSpec       `json:"base_rewards,omitempty"`
	Choices       []ChoiceOption     `json:"choices,omitempty"`
	Milestones    []StreakMilestone  `json:"milestones,omitempty"`
	Upgrades      []UpgradeRule      `json:"upgrades,omitempty"`
	SpinItems     []SpinItem         `json:"spin_items,omitempty"`
	ReferralBonus *ReferralBonusRule `json:"referral_bonus,omitempty"`
}

// ChoiceByKey returns the configured option for key, or nil
func (c *RewardConfig) ChoiceByKey(key string) *ChoiceOption {
	for i := range c.Choices {
		if c.Choices[i].Key == key {
			return &c.Choices[i]
		}
	}
	return nil
}

// Validate checks the config once at event-definition time
func (c *RewardConfig) Validate() error {
	for i, r := range c.BaseRewards {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("base_rewards[%d]: %w", i, err)
		}
	}
	seen := map[string]bool{}
	for i, opt := range c.Choices {
		if opt.Key == "" {
			return fmt.Errorf("choices[%d]: key is required", i)
		}
		if seen[opt.Key] {
			return fmt.Errorf("choices[%d]: duplicate key %q", i, opt.Key)
		}
		seen[opt.Key] = true
		for j, r := range opt.Rewards {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("choices[%d].rewards[%d]: %w", i, j, err)
			}
		}
	}
	for i, m := range c.Milestones {
		if m.Threshold < 1 {
			return fmt.Errorf("milestones[%d]: threshold must be >= 1", i)
		}
		if m.AchievementKey == "" {
			return fmt.Errorf("milestones[%d]: achievement_key is required", i)
		}
		for j, r := range m.Rewards {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("milestones[%d].rewards[%d]: %w", i, j, err)
			}
		}
	}
	for i, u := range c.Upgrades {
		if u.TargetType == "" || u.NewType == "" {
			return fmt.Errorf("upgrades[%d]: target_type and new_type are required", i)
		}
		if u.MinReferrals < 1 {
			return fmt.Errorf("upgrades[%d]: min_referrals must be >= 1", i)
		}
	}
	total := 0.0
	for i, it := range c.SpinItems {
		if it.Key == "" {
			return fmt.Errorf("spin_items[%d]: key is required", i)
		}
		if it.Weight < 0 {
			return fmt.Errorf("spin_items[%d]: weight must not be negative", i)
		}
		total += it.Weight
		for j, r := range it.Rewards {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("spin_items[%d].rewards[%d]: %w", i, j, err)
			}
		}
	}
	if len(c.SpinItems) > 0 && total <= 0 {
		return fmt.Errorf("spin_items: total weight must be positive")
	}
	if c.ReferralBonus != nil {
		if c.ReferralBonus.RaffleCode == "" || c.ReferralBonus.Source == "" {
			return fmt.Errorf("referral_bonus: raffle_code and source are required")
		}
		if c.ReferralBonus.Multiplier <= 0 {
			return fmt.Errorf("referral_bonus: multiplier must be positive")
		}
	}
	return nil
}

// Validate checks a single reward spec against its kind
func (r *RewardSpec) Validate() error {
	switch r.Kind {
	case RewardKindVoucher:
		if r.VoucherType == "" {
			return fmt.Errorf("voucher_type is required for voucher rewards")
		}
	case RewardKindRaffleEntry:
		if r.RaffleCode == "" || r.Source == "" {
			return fmt.Errorf("raffle_code and source are required for raffle_entry rewards")
		}
		if r.Count < 1 {
			return fmt.Errorf("count must be >= 1 for raffle_entry rewards")
		}
	default:
		return fmt.Errorf("unknown reward kind %q", r.Kind)
	}
	return nil
}

// CampaignEvent is the per-date configuration of the daily campaign
type CampaignEvent struct {
	ID        string       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	EventDate string       `gorm:"uniqueIndex;not null;size:10" json:"event_date"` // YYYY-MM-DD
	Code      string       `gorm:"uniqueIndex;not null" json:"code"`
	Title     string       `gorm:"not null" json:"title"`
	Tags      []string     `gorm:"type:jsonb;serializer:json" json:"tags"`
	Config    RewardConfig `gorm:"type:jsonb;serializer:json" json:"config"`

	// Claim window bounds, minutes from the user's local midnight of EventDate
	WindowStartMin int `gorm:"default:0" json:"window_start_min"`
	WindowEndMin   int `gorm:"default:1440" json:"window_end_min"`

	Published bool       `gorm:"default:false;index" json:"published"`
	PublishAt *time.Time `json:"publish_at,omitempty"` // picked up by the scheduler

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
