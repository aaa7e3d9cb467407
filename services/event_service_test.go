package services

import (
	"testing"
	"time"

	"campaign-engine-system/models"
)

func TestLocalNow(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		tzOffsetMin int
		expected    time.Time
	}{
		{"UTC", 0, now},
		{"UTC-5", 300, time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)},
		{"UTC+9 (Tokyo)", -540, time.Date(2025, 6, 10, 21, 0, 0, 0, time.UTC)},
		{"UTC+13 crosses to next day", -780, time.Date(2025, 6, 11, 1, 0, 0, 0, time.UTC)},
		{"UTC-11 crosses to previous day", 660, time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := localNow(now, tt.tzOffsetMin)
			if !got.Equal(tt.expected) {
				t.Fatalf("localNow(%v, %d) = %v, want %v", now, tt.tzOffsetMin, got, tt.expected)
			}
		})
	}
}

func TestClaimWindow(t *testing.T) {
	start, end, err := claimWindow("2025-06-10", 8*60, 20*60)
	if err != nil {
		t.Fatalf("claimWindow returned error: %v", err)
	}
	if start.Hour() != 8 || end.Hour() != 20 {
		t.Fatalf("window = [%v, %v), want 08:00–20:00", start, end)
	}

	if _, _, err := claimWindow("not-a-date", 0, 1440); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestInClaimWindow(t *testing.T) {
	ev := &models.CampaignEvent{
		EventDate:      "2025-06-10",
		WindowStartMin: 0,
		WindowEndMin:   24 * 60,
	}

	tests := []struct {
		name        string
		now         time.Time
		tzOffsetMin int
		expected    bool
	}{
		{"midday UTC on the day", time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC), 0, true},
		{"exact local midnight start", time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), 0, true},
		{"one second before local midnight end", time.Date(2025, 6, 10, 23, 59, 59, 0, time.UTC), 0, true},
		{"exact end is exclusive", time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC), 0, false},
		{"previous day", time.Date(2025, 6, 9, 23, 59, 0, 0, time.UTC), 0, false},
		// 23:00 UTC on Jun 9 is already Jun 10 08:00 for UTC+9
		{"UTC+9 user claims early", time.Date(2025, 6, 9, 23, 0, 0, 0, time.UTC), -540, true},
		// 03:00 UTC on Jun 11 is still Jun 10 22:00 for UTC-5
		{"UTC-5 user claims late", time.Date(2025, 6, 11, 3, 0, 0, 0, time.UTC), 300, true},
		{"UTC-5 user too late", time.Date(2025, 6, 11, 5, 0, 0, 0, time.UTC), 300, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inClaimWindow(ev, tt.now, tt.tzOffsetMin)
			if got != tt.expected {
				t.Fatalf("inClaimWindow(now=%v, tz=%d) = %v, want %v",
					tt.now, tt.tzOffsetMin, got, tt.expected)
			}
		})
	}
}

func TestInClaimWindowPartialDay(t *testing.T) {
	// Event open 18:00–22:00 local only
	ev := &models.CampaignEvent{
		EventDate:      "2025-06-10",
		WindowStartMin: 18 * 60,
		WindowEndMin:   22 * 60,
	}

	if inClaimWindow(ev, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC), 0) {
		t.Fatal("noon should be outside an evening-only window")
	}
	if !inClaimWindow(ev, time.Date(2025, 6, 10, 19, 30, 0, 0, time.UTC), 0) {
		t.Fatal("19:30 should be inside the 18:00–22:00 window")
	}
	if inClaimWindow(ev, time.Date(2025, 6, 10, 22, 0, 0, 0, time.UTC), 0) {
		t.Fatal("22:00 exactly should be excluded")
	}
}

func TestLocalDayBoundsUTC(t *testing.T) {
	tests := []struct {
		name        string
		tzOffsetMin int
		wantStart   time.Time
	}{
		{"UTC day", 0, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)},
		{"UTC+9 local day starts earlier in UTC", -540, time.Date(2025, 6, 9, 15, 0, 0, 0, time.UTC)},
		{"UTC-5 local day starts later in UTC", 300, time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := localDayBoundsUTC("2025-06-10", tt.tzOffsetMin)
			if err != nil {
				t.Fatalf("localDayBoundsUTC returned error: %v", err)
			}
			if !start.Equal(tt.wantStart) {
				t.Fatalf("start = %v, want %v", start, tt.wantStart)
			}
			if end.Sub(start) != 24*time.Hour {
				t.Fatalf("day length = %v, want 24h", end.Sub(start))
			}
		})
	}
}

func TestPrevDay(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"2025-06-10", "2025-06-09"},
		{"2025-06-01", "2025-05-31"},
		{"2025-01-01", "2024-12-31"},
		{"2024-03-01", "2024-02-29"}, // leap year
		{"garbage", ""},
	}

	for _, tt := range tests {
		if got := prevDay(tt.in); got != tt.out {
			t.Fatalf("prevDay(%q) = %q, want %q", tt.in, got, tt.out)
		}
	}
}
