package stats

import (
	"testing"
	"time"

	"hackabot/db"
)

func TestAttendanceWindowStart(t *testing.T) {
	// 2026-08-31 is a Monday
	monday := time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		now      time.Time
		expected *time.Time
	}{
		{"at poll send", monday, &monday},
		{"wednesday noon", time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC), &monday},
		{"right before the summary", time.Date(2026, 9, 4, 6, 59, 0, 0, time.UTC), &monday},
		{"at the summary", time.Date(2026, 9, 4, 7, 0, 0, 0, time.UTC), nil},
		{"saturday", time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC), nil},
		{"monday before the poll", time.Date(2026, 8, 31, 6, 59, 0, 0, time.UTC), nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AttendanceWindowStart(tc.now)

			if tc.expected == nil {
				if got != nil {
					t.Errorf("expected no window at %s, got %s", tc.now, got)
				}
				return
			}

			if got == nil {
				t.Fatalf("expected window start %s at %s, got nil", tc.expected, tc.now)
			}

			if !got.Equal(*tc.expected) {
				t.Errorf("window start at %s = %s, want %s", tc.now, got, tc.expected)
			}
		})
	}
}

func TestActivityLevel(t *testing.T) {
	cases := []struct {
		name     string
		polls    []db.Poll
		expected int
	}{
		{"no polls", nil, 0},
		{"zero turnout", []db.Poll{{YesCount: 0}}, 0},
		{"full house", []db.Poll{{YesCount: 8}}, 10},
		{"over full house caps", []db.Poll{{YesCount: 20}}, 10},
		{"half turnout", []db.Poll{{YesCount: 4}}, 5},
		{"averaged over weeks", []db.Poll{{YesCount: 8}, {YesCount: 0}}, 5},
		{"rounds to nearest", []db.Poll{{YesCount: 5}}, 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ActivityLevel(tc.polls); got != tc.expected {
				t.Errorf("ActivityLevel = %d, want %d", got, tc.expected)
			}
		})
	}
}
