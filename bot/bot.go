/*
Package bot turns inbound webhook updates into state changes: it classifies
each update envelope, deduplicates message delivery, and applies the result
to the persisted aggregates (membership, activity, polls, attendance).
*/
package bot

import (
	"hackabot/config"
	"hackabot/db"
	"hackabot/monitoring"
	"hackabot/telegram"

	"github.com/rs/zerolog/log"
	tb "gopkg.in/telebot.v3"
)

type Bot struct {
	Db       *db.Database
	Client   telegram.Sender
	Reporter monitoring.Reporter
	Config   *config.Config
	Session  *config.Session
}

/*
HandleUpdate dispatches one decoded update envelope.

The envelope is a union: several top-level fields can be set at once (a
group message may carry text, joined members and a poll in one delivery),
and every applicable handler runs. The only exclusive branch is the first
one: a message is either a direct message or a group message, never both.

The platform delivers at-least-once, so every handler downstream must
tolerate redelivery.
*/
func (bot *Bot) HandleUpdate(update *tb.Update) {
	if update.Message != nil {
		if update.Message.Chat != nil && update.Message.Chat.Type == tb.ChatPrivate {
			bot.handleDirectMessage(update.Message)
		} else {
			bot.handleGroupMessage(update.Message)
		}
	}

	// Edits never reach the aggregates: the original delivery was counted
	if update.EditedMessage != nil {
		log.Debug().Msg("Ignoring edited message")
	}

	if update.ChannelPost != nil {
		log.Debug().Msg("Ignoring channel post")
	}

	if update.Poll != nil {
		bot.handlePollState(update.Poll, nil)
	}

	if update.PollAnswer != nil {
		bot.handlePollAnswer(update.PollAnswer)
	}

	if update.ChatMember != nil {
		bot.handleChatMember(update.ChatMember)
	}

	if update.MyChatMember != nil {
		bot.handleMyChatMember(update.MyChatMember)
	}

	if update.Callback != nil {
		bot.handleCallback(update.Callback)
	}
}
