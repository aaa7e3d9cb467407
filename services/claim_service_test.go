package services

import "testing"

func TestAdvanceStreak(t *testing.T) {
	tests := []struct {
		name     string
		last     string
		current  int
		date     string
		expected int
	}{
		{"first ever claim", "", 0, "2025-06-10", 1},
		{"consecutive day", "2025-06-09", 3, "2025-06-10", 4},
		{"same day is a no-op", "2025-06-10", 3, "2025-06-10", 3},
		{"one day gap resets", "2025-06-08", 7, "2025-06-10", 1},
		{"long gap resets", "2025-01-01", 30, "2025-06-10", 1},
		{"across month boundary", "2025-05-31", 5, "2025-06-01", 6},
		{"across year boundary", "2024-12-31", 10, "2025-01-01", 11},
		{"future last date resets", "2025-06-12", 4, "2025-06-10", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := advanceStreak(tt.last, tt.current, tt.date)
			if got != tt.expected {
				t.Fatalf("advanceStreak(%q, %d, %q) = %d, want %d",
					tt.last, tt.current, tt.date, got, tt.expected)
			}
		})
	}
}

func TestAdvanceStreakSequence(t *testing.T) {
	// Three consecutive days climb 1 → 2 → 3
	dates := []string{"2025-03-01", "2025-03-02", "2025-03-03"}
	last, current := "", 0
	for i, d := range dates {
		current = advanceStreak(last, current, d)
		if current != i+1 {
			t.Fatalf("day %d: streak = %d, want %d", i+1, current, i+1)
		}
		last = d
	}
}

func TestBonusEntriesPerReferral(t *testing.T) {
	tests := []struct {
		multiplier float64
		expected   int
	}{
		{1.0, 1},
		{2.0, 2},
		{1.5, 2},
		{0.5, 1},
		{0, 1},
		{-3, 1},
		{3.01, 4},
	}

	for _, tt := range tests {
		if got := bonusEntriesPerReferral(tt.multiplier); got != tt.expected {
			t.Fatalf("bonusEntriesPerReferral(%v) = %d, want %d", tt.multiplier, got, tt.expected)
		}
	}
}
