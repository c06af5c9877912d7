/*
Package stats derives display values from poll and attendance state: the
attendance window, per-node attending counts, and the 0-10 activity level.

Attendance uses the explicit poll-week window: a yes-vote counts as
"currently attending" only between the Monday 07:00 UTC poll send and the
Friday 07:00 UTC summary. Outside that window attendance reads as zero even
when yes-votes exist. The one consumer at the boundary is the summary
itself, which fires at the Friday instant and reads the closing week
through SummaryAttendingCount. A rolling 7-day lookback would also have been
defensible; the anchored window was chosen because it matches what the polls
actually ask about.
*/
package stats

import (
	"math"
	"time"

	"hackabot/db"
)

// Activity level scaling: a 4-week average of 8 yes-votes maps to the
// maximum level of 10.
const (
	activityWindow = 4 * 7 * 24 * time.Hour
	fullHouse      = 8.0
	maxLevel       = 10
)

// pollWeekStart returns the Monday 07:00 UTC anchor of the poll week
// containing now, stepping back a week when now precedes this week's poll
// instant.
func pollWeekStart(nowUtc time.Time) time.Time {
	daysSinceMonday := db.MondayWeekday(nowUtc.Weekday())
	monday := time.Date(
		nowUtc.Year(), nowUtc.Month(), nowUtc.Day(),
		7, 0, 0, 0, time.UTC,
	).AddDate(0, 0, -daysSinceMonday)

	if nowUtc.Before(monday) {
		monday = monday.AddDate(0, 0, -7)
	}

	return monday
}

// AttendanceWindowStart returns the start of the current poll week, or nil
// when now is outside the window (after the Friday summary, before the next
// Monday poll).
func AttendanceWindowStart(now time.Time) *time.Time {
	nowUtc := now.UTC()
	monday := pollWeekStart(nowUtc)
	friday := monday.AddDate(0, 0, 4)

	if !nowUtc.Before(friday) {
		return nil
	}

	return &monday
}

// AttendingCount counts the node's yes-votes inside the current poll week.
func AttendingCount(database *db.Database, node *db.Node, now time.Time) int {
	if node.GroupId == nil {
		return 0
	}

	windowStart := AttendanceWindowStart(now)

	if windowStart == nil {
		return 0
	}

	count, err := database.YesAnswerCount(node.Id, *windowStart)

	if err != nil {
		return 0
	}

	return count
}

// SummaryAttendingCount counts the node's yes-votes for the poll week
// containing now, with no Friday cutoff. The weekly summary composes its
// text at the summary instant itself, which the display window excludes, so
// it must read the closing week rather than report an empty one.
func SummaryAttendingCount(database *db.Database, node *db.Node, now time.Time) int {
	if node.GroupId == nil {
		return 0
	}

	count, err := database.YesAnswerCount(node.Id, pollWeekStart(now.UTC()))

	if err != nil {
		return 0
	}

	return count
}

// AttendingPersonIds returns the set of people with a yes-vote inside the
// current poll week.
func AttendingPersonIds(database *db.Database, node *db.Node, now time.Time) map[uint]bool {
	attending := map[uint]bool{}

	if node.GroupId == nil {
		return attending
	}

	windowStart := AttendanceWindowStart(now)

	if windowStart == nil {
		return attending
	}

	personIds, err := database.YesAnswerPersonIds(node.Id, *windowStart)

	if err != nil {
		return attending
	}

	for _, id := range personIds {
		attending[id] = true
	}

	return attending
}

// ActivityLevel scales a node's trailing 4-week average poll turnout onto
// 0-10: zero polls in the window yield 0, an average of 8 or more attendees
// caps at 10, values between scale linearly and round to nearest.
func ActivityLevel(polls []db.Poll) int {
	if len(polls) == 0 {
		return 0
	}

	sum := 0
	for _, poll := range polls {
		sum += poll.YesCount
	}

	average := float64(sum) / float64(len(polls))
	level := int(math.Round(average / fullHouse * maxLevel))

	if level > maxLevel {
		level = maxLevel
	}

	return level
}

// NodeActivityLevel loads the node's polls in the trailing window and scales
// them.
func NodeActivityLevel(database *db.Database, node *db.Node, now time.Time) int {
	polls, err := database.PollsSince(node.Id, now.Add(-activityWindow))

	if err != nil {
		return 0
	}

	return ActivityLevel(polls)
}
