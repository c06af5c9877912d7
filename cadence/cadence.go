/*
Package cadence decides whether a recurring action should fire at a given
instant. Every predicate is pure: the caller injects "now" and the entity's
last-sent marker, so nothing here reads the wall clock.

Matches are exact to the minute, not windowed: the dispatcher has to be
invoked at least once during the target minute, or the action is silently
skipped until the next week. A known limitation of the deployment model, not
a defect, since the tick interval is well under a minute.
*/
package cadence

import (
	"time"

	"hackabot/db"
)

// Weekly poll cadence: every Monday at 07:00 UTC.
const (
	PollDay    = 0 // Monday, in Monday-based weekday indexing
	PollHour   = 7
	PollMinute = 0
)

// Weekly summary cadence: every Friday at 07:00 UTC.
const (
	SummaryDay    = 4
	SummaryHour   = 7
	SummaryMinute = 0
)

// Photo cleanup cadence: daily at 03:30 UTC.
const (
	CleanupHour   = 3
	CleanupMinute = 30
)

// Reminders lead the event by 30 minutes, except drinks which fire at the
// event time itself.
const ReminderLead = 30 * time.Minute

// Markers younger than this block a re-fire. Guards against the tick landing
// on the target minute twice, e.g. after clock skew or overlapping runs.
const cooldown = 6 * 24 * time.Hour

func cooldownPassed(marker *time.Time, now time.Time) bool {
	if marker == nil {
		return true
	}

	return now.Sub(*marker) >= cooldown
}

// ShouldSendPoll reports whether a node's weekly attendance poll is due.
// Poll cadence runs on a fixed UTC clock for every node.
func ShouldSendPoll(node *db.Node, now time.Time) bool {
	nowUtc := now.UTC()

	if db.MondayWeekday(nowUtc.Weekday()) != PollDay {
		return false
	}

	if nowUtc.Hour() != PollHour || nowUtc.Minute() != PollMinute {
		return false
	}

	return cooldownPassed(node.LastPollSentAt, now)
}

// ShouldSendEventReminder reports whether an event's reminder is due. The
// instant is evaluated in the node's own timezone on the node's event day.
//
// The reminder target is the event time minus ReminderLead, except for
// drinks, which are announced at the event time exactly. The asymmetry is
// intentional: a "let's go" works at drinks time, a heads-up doesn't.
func ShouldSendEventReminder(node *db.Node, event *db.Event, now time.Time) bool {
	nowLocal := now.In(node.TimeLocation())

	if db.MondayWeekday(nowLocal.Weekday()) != node.EventDay {
		return false
	}

	hour, minute := event.Clock()
	target := time.Date(
		nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		hour, minute, 0, 0, nowLocal.Location(),
	)

	if event.Type != db.EventDrinks {
		target = target.Add(-ReminderLead)
	}

	if nowLocal.Hour() != target.Hour() || nowLocal.Minute() != target.Minute() {
		return false
	}

	return cooldownPassed(event.LastReminderSentAt, now)
}

// ShouldSendWeeklySummary reports whether the cross-network summary for the
// global group is due. Summary cadence is fixed UTC.
func ShouldSendWeeklySummary(group *db.Group, now time.Time) bool {
	nowUtc := now.UTC()

	if db.MondayWeekday(nowUtc.Weekday()) != SummaryDay {
		return false
	}

	if nowUtc.Hour() != SummaryHour || nowUtc.Minute() != SummaryMinute {
		return false
	}

	return cooldownPassed(group.LastWeeklySummarySentAt, now)
}

// ShouldCleanupPhotos reports whether the daily photo-retention sweep is
// due. The marker lives in dispatcher memory: the sweep is idempotent, so a
// re-run after a restart costs nothing. Cooldown is shorter than a day so a
// slightly-early tick on the next day still fires.
func ShouldCleanupPhotos(lastRun *time.Time, now time.Time) bool {
	nowUtc := now.UTC()

	if nowUtc.Hour() != CleanupHour || nowUtc.Minute() != CleanupMinute {
		return false
	}

	if lastRun == nil {
		return true
	}

	return now.Sub(*lastRun) >= 20*time.Hour
}
