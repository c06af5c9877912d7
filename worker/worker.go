/*
Package worker is the scheduled-action dispatcher. A fixed-rate tick
evaluates every recurring action against the injected current instant and
fires the due ones. State lives in the database, not the scheduler: a marker
is only advanced after its send succeeded, so a failed action is retried on
the next due instant instead of being lost.
*/
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hackabot/cadence"
	"hackabot/config"
	"hackabot/db"
	"hackabot/monitoring"
	"hackabot/stats"
	"hackabot/telegram"

	"github.com/go-co-op/gocron"
	"github.com/procyon-projects/chrono"
	"github.com/rs/zerolog/log"
)

const tickInterval = 30 * time.Second

// Verifier re-asserts the webhook registration. Satisfied by the live
// client; nil disables re-verification.
type Verifier interface {
	VerifyWebhook() error
}

type Worker struct {
	Db       *db.Database
	Client   telegram.Sender
	Reporter monitoring.Reporter
	Config   *config.Config
	Verifier Verifier

	// In dispatcher memory only: the cleanup sweep is idempotent, so losing
	// this marker on restart just means one extra no-op sweep.
	lastCleanup *time.Time
}

// Start runs the dispatcher tick at a fixed rate and schedules the daily
// webhook re-verification. Blocks until the context is cancelled.
func (worker *Worker) Start(ctx context.Context) error {
	scheduler := chrono.NewDefaultTaskScheduler()

	_, err := scheduler.ScheduleWithFixedDelay(func(ctx context.Context) {
		worker.Tick(time.Now().UTC())
	}, tickInterval)

	if err != nil {
		return err
	}

	if worker.Verifier != nil {
		daily := gocron.NewScheduler(time.UTC)

		_, err = daily.Every(1).Day().At("04:15").Do(func() {
			if err := worker.Verifier.VerifyWebhook(); err != nil {
				worker.Reporter.ReportException(err)
			}
		})

		if err != nil {
			return err
		}

		daily.StartAsync()
	}

	log.Info().Msgf("Dispatcher started (tick every %s)", tickInterval)

	<-ctx.Done()
	<-scheduler.Shutdown()

	return nil
}

/*
Tick evaluates every recurring action at one instant.

Nodes are re-queried on each tick, so nodes and events created mid-run are
picked up without a restart. A failure in one action is reported and never
blocks the others, and leaves that action's marker untouched.
*/
func (worker *Worker) Tick(now time.Time) {
	nodes, err := worker.Db.NodesWithGroup()

	if err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	for i := range nodes {
		worker.runNodeActions(&nodes[i], now)
	}

	worker.runWeeklySummary(nodes, now)
	worker.runPhotoCleanup(now)
}

func (worker *Worker) runNodeActions(node *db.Node, now time.Time) {
	if cadence.ShouldSendPoll(node, now) {
		worker.sendPoll(node, now)
	}

	events, err := worker.Db.EventsForNode(node)

	if err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	for i := range events {
		event := &events[i]

		if cadence.ShouldSendEventReminder(node, event, now) {
			worker.sendReminder(node, event, now)
		}
	}
}

// sendPoll posts a node's weekly poll, persists the poll row so votes can
// be linked, and only then advances the marker.
func (worker *Worker) sendPoll(node *db.Node, now time.Time) {
	result, err := worker.Client.SendPoll(node, weekdayName(node.EventDay))

	if err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	_, err = worker.Db.UpsertPoll(result.TelegramId, &node.Id, result.Question, 0, 0)

	if err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	if err := worker.Db.UpdatePollSentAt(node, now); err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	log.Info().Msgf("📊 Sent weekly poll for %s", node.String())
}

func (worker *Worker) sendReminder(node *db.Node, event *db.Event, now time.Time) {
	if err := worker.Client.SendEventReminder(node, event); err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	if err := worker.Db.UpdateReminderSentAt(event, now); err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	log.Info().Msgf("🔔 Sent %s reminder for %s", event.Type, node.String())
}

// runWeeklySummary posts the cross-network attendance roundup to the global
// chat. A missing global group is a configuration gap, not an error.
func (worker *Worker) runWeeklySummary(nodes []db.Node, now time.Time) {
	if worker.Config.GlobalChatId == 0 {
		return
	}

	group, err := worker.Db.FindGroupByTelegramId(worker.Config.GlobalChatId)

	if err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	if group == nil {
		log.Debug().Msg("Global chat not known yet: skipping summary check")
		return
	}

	if !cadence.ShouldSendWeeklySummary(group, now) {
		return
	}

	text := worker.composeSummary(nodes, now)

	if err := worker.Client.Send(group.TelegramId, text); err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	if err := worker.Db.UpdateSummarySentAt(group, now); err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	log.Info().Msg("📣 Sent weekly summary to global chat")
}

func (worker *Worker) composeSummary(nodes []db.Node, now time.Time) string {
	lines := []string{"📣 *This week across the network:*", ""}
	total := 0

	for i := range nodes {
		node := &nodes[i]
		attending := stats.SummaryAttendingCount(worker.Db, node, now)

		if attending == 0 {
			continue
		}

		total += attending
		lines = append(lines, fmt.Sprintf("  %s — %d going", node.String(), attending))
	}

	if total == 0 {
		lines = append(lines, "  _No confirmed attendees yet. Vote in your node's poll!_")
	} else {
		lines = append(lines, "", fmt.Sprintf("*%d* people meeting up this week 🎉", total))
	}

	return strings.Join(lines, "\n")
}

func (worker *Worker) runPhotoCleanup(now time.Time) {
	if !cadence.ShouldCleanupPhotos(worker.lastCleanup, now) {
		return
	}

	evicted, err := worker.Db.EvictOldestPhotos(worker.Config.PhotoRetention)

	if err != nil {
		worker.Reporter.ReportException(err)
		return
	}

	ranAt := now
	worker.lastCleanup = &ranAt

	if evicted > 0 {
		log.Info().Msgf("🧹 Photo cleanup evicted %d photo(s)", evicted)
	}
}

func weekdayName(mondayBased int) string {
	names := []string{
		"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	}

	if mondayBased < 0 || mondayBased >= len(names) {
		return "Monday"
	}

	return names[mondayBased]
}
