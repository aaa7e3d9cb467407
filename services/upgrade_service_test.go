package services

import (
	"testing"

	"campaign-engine-system/models"
)

func TestRuleSatisfied(t *testing.T) {
	rule := &models.UpgradeRule{
		TargetType:   "discount",
		TargetScope:  "store",
		MinReferrals: 3,
		NewType:      "discount_plus",
		NewScope:     "store",
		NewAmount:    25,
	}

	tests := []struct {
		referrals int
		expected  bool
	}{
		{0, false},
		{2, false},
		{3, true},
		{10, true},
	}

	for _, tt := range tests {
		if got := ruleSatisfied(rule, tt.referrals); got != tt.expected {
			t.Fatalf("ruleSatisfied(min=3, referrals=%d) = %v, want %v", tt.referrals, got, tt.expected)
		}
	}
}
