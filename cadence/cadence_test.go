package cadence

import (
	"testing"
	"time"

	"hackabot/db"
)

func utcTime(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestShouldSendPoll(t *testing.T) {
	node := &db.Node{Name: "Testville"}

	// 2026-08-31 is a Monday
	monday := utcTime(2026, 8, 31, 7, 0)

	cases := []struct {
		name     string
		now      time.Time
		lastSent *time.Time
		expected bool
	}{
		{"monday at 07:00", monday, nil, true},
		{"monday at 07:01", utcTime(2026, 8, 31, 7, 1), nil, false},
		{"monday at 06:59", utcTime(2026, 8, 31, 6, 59), nil, false},
		{"tuesday at 07:00", utcTime(2026, 9, 1, 7, 0), nil, false},
		{"sent three days ago", monday, markerDaysAgo(monday, 3), false},
		{"sent seven days ago", monday, markerDaysAgo(monday, 7), true},
		{"sent exactly six days ago", monday, markerDaysAgo(monday, 6), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node.LastPollSentAt = tc.lastSent

			if got := ShouldSendPoll(node, tc.now); got != tc.expected {
				t.Errorf("ShouldSendPoll at %s = %v, want %v", tc.now, got, tc.expected)
			}
		})
	}
}

func markerDaysAgo(from time.Time, days int) *time.Time {
	marker := from.AddDate(0, 0, -days)
	return &marker
}

func TestShouldSendEventReminder(t *testing.T) {
	// EventDay 1 = Tuesday; 2026-09-01 is a Tuesday
	node := &db.Node{Name: "Testville", EventDay: 1}

	cases := []struct {
		name      string
		eventType db.EventType
		eventTime string
		now       time.Time
		expected  bool
	}{
		{"intros 30 min before", db.EventIntros, "09:30", utcTime(2026, 9, 1, 9, 0), true},
		{"intros at event time", db.EventIntros, "09:30", utcTime(2026, 9, 1, 9, 30), false},
		{"lunch 30 min before", db.EventLunch, "12:30", utcTime(2026, 9, 1, 12, 0), true},
		{"drinks at event time", db.EventDrinks, "18:00", utcTime(2026, 9, 1, 18, 0), true},
		{"drinks 30 min before", db.EventDrinks, "18:00", utcTime(2026, 9, 1, 17, 30), false},
		{"wrong weekday", db.EventIntros, "09:30", utcTime(2026, 8, 31, 9, 0), false},
		{"one minute late", db.EventIntros, "09:30", utcTime(2026, 9, 1, 9, 1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := &db.Event{Type: tc.eventType, Time: tc.eventTime}

			if got := ShouldSendEventReminder(node, event, tc.now); got != tc.expected {
				t.Errorf("ShouldSendEventReminder at %s = %v, want %v", tc.now, got, tc.expected)
			}
		})
	}
}

func TestReminderUsesNodeTimezone(t *testing.T) {
	// 09:00 in Berlin is 07:00 UTC during CEST
	node := &db.Node{Name: "Berlin", EventDay: 1, Timezone: "Europe/Berlin"}
	event := &db.Event{Type: db.EventIntros, Time: "09:30"}

	if !ShouldSendEventReminder(node, event, utcTime(2026, 9, 1, 7, 0)) {
		t.Error("expected reminder at 09:00 local Berlin time")
	}

	if ShouldSendEventReminder(node, event, utcTime(2026, 9, 1, 9, 0)) {
		t.Error("did not expect reminder at 11:00 local Berlin time")
	}
}

func TestReminderCooldownBlocksRefire(t *testing.T) {
	node := &db.Node{Name: "Testville", EventDay: 1}
	now := utcTime(2026, 9, 1, 9, 0)

	recent := now.Add(-time.Minute)
	event := &db.Event{Type: db.EventIntros, Time: "09:30", LastReminderSentAt: &recent}

	if ShouldSendEventReminder(node, event, now) {
		t.Error("reminder re-fired within the cooldown")
	}

	weekAgo := now.AddDate(0, 0, -7)
	event.LastReminderSentAt = &weekAgo

	if !ShouldSendEventReminder(node, event, now) {
		t.Error("reminder blocked despite the cooldown having passed")
	}
}

func TestShouldSendWeeklySummary(t *testing.T) {
	group := &db.Group{DisplayName: "Global"}

	// 2026-09-04 is a Friday
	friday := utcTime(2026, 9, 4, 7, 0)

	if !ShouldSendWeeklySummary(group, friday) {
		t.Error("expected summary on Friday 07:00 UTC")
	}

	if ShouldSendWeeklySummary(group, utcTime(2026, 9, 4, 7, 1)) {
		t.Error("did not expect summary at 07:01")
	}

	if ShouldSendWeeklySummary(group, utcTime(2026, 9, 3, 7, 0)) {
		t.Error("did not expect summary on Thursday")
	}

	recent := friday.AddDate(0, 0, -3)
	group.LastWeeklySummarySentAt = &recent

	if ShouldSendWeeklySummary(group, friday) {
		t.Error("summary re-fired within the cooldown")
	}
}

func TestShouldCleanupPhotos(t *testing.T) {
	target := utcTime(2026, 9, 1, 3, 30)

	if !ShouldCleanupPhotos(nil, target) {
		t.Error("expected cleanup with no prior run")
	}

	if ShouldCleanupPhotos(nil, utcTime(2026, 9, 1, 3, 31)) {
		t.Error("did not expect cleanup off the target minute")
	}

	yesterday := target.AddDate(0, 0, -1)

	if !ShouldCleanupPhotos(&yesterday, target) {
		t.Error("expected cleanup a day after the last run")
	}

	recent := target.Add(-2 * time.Hour)

	if ShouldCleanupPhotos(&recent, target) {
		t.Error("cleanup re-fired within the cooldown")
	}
}
