package models

import "testing"

func validConfig() RewardConfig {
	return RewardConfig{
		BaseRewards: []RewardSpec{
			{Kind: RewardKindVoucher, VoucherType: "discount", Scope: "store", Amount: 10},
			{Kind: RewardKindRaffleEntry, RaffleCode: "mega-raffle", Source: "daily", Count: 1},
		},
		Choices: []ChoiceOption{
			{Key: "voucher", Label: "Voucher", Rewards: []RewardSpec{{Kind: RewardKindVoucher, VoucherType: "discount"}}},
			{Key: "entries", Label: "Entries", Rewards: []RewardSpec{{Kind: RewardKindRaffleEntry, RaffleCode: "mega-raffle", Source: "choice", Count: 3}}},
		},
		Milestones: []StreakMilestone{
			{Threshold: 7, AchievementKey: "week-streak", Title: "One Week"},
		},
		Upgrades: []UpgradeRule{
			{TargetType: "discount", TargetScope: "store", MinReferrals: 3, NewType: "discount_plus", NewScope: "store", NewAmount: 25},
		},
		SpinItems: []SpinItem{
			{Key: "small", Weight: 70},
			{Key: "big", Weight: 30},
		},
		ReferralBonus: &ReferralBonusRule{RaffleCode: "mega-raffle", Source: "referral", Multiplier: 2},
	}
}

func TestRewardConfigValidateOK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestRewardConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RewardConfig)
	}{
		{"unknown reward kind", func(c *RewardConfig) {
			c.BaseRewards[0].Kind = "cash"
		}},
		{"voucher without type", func(c *RewardConfig) {
			c.BaseRewards[0].VoucherType = ""
		}},
		{"entry without raffle code", func(c *RewardConfig) {
			c.BaseRewards[1].RaffleCode = ""
		}},
		{"entry with zero count", func(c *RewardConfig) {
			c.BaseRewards[1].Count = 0
		}},
		{"choice without key", func(c *RewardConfig) {
			c.Choices[0].Key = ""
		}},
		{"duplicate choice keys", func(c *RewardConfig) {
			c.Choices[1].Key = c.Choices[0].Key
		}},
		{"milestone threshold zero", func(c *RewardConfig) {
			c.Milestones[0].Threshold = 0
		}},
		{"milestone without achievement key", func(c *RewardConfig) {
			c.Milestones[0].AchievementKey = ""
		}},
		{"upgrade without target type", func(c *RewardConfig) {
			c.Upgrades[0].TargetType = ""
		}},
		{"upgrade min referrals zero", func(c *RewardConfig) {
			c.Upgrades[0].MinReferrals = 0
		}},
		{"spin item without key", func(c *RewardConfig) {
			c.SpinItems[0].Key = ""
		}},
		{"spin item negative weight", func(c *RewardConfig) {
			c.SpinItems[0].Weight = -1
		}},
		{"spin wheel with zero total weight", func(c *RewardConfig) {
			c.SpinItems[0].Weight = 0
			c.SpinItems[1].Weight = 0
		}},
		{"referral bonus without raffle code", func(c *RewardConfig) {
			c.ReferralBonus.RaffleCode = ""
		}},
		{"referral bonus zero multiplier", func(c *RewardConfig) {
			c.ReferralBonus.Multiplier = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestRewardConfigEmptyIsValid(t *testing.T) {
	cfg := RewardConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config should be valid: %v", err)
	}
}

func TestChoiceByKey(t *testing.T) {
	cfg := validConfig()

	if opt := cfg.ChoiceByKey("entries"); opt == nil || opt.Label != "Entries" {
		t.Fatalf("ChoiceByKey(\"entries\") = %+v", opt)
	}
	if opt := cfg.ChoiceByKey("missing"); opt != nil {
		t.Fatalf("ChoiceByKey(\"missing\") = %+v, want nil", opt)
	}
}
