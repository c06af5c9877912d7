package bot

import (
	"time"

	"hackabot/db"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/slices"
	tb "gopkg.in/telebot.v3"
)

// upsertGroupFromChat persists a chat as a Group. Only group-like chats
// qualify: private chats and channels return nil.
func (bot *Bot) upsertGroupFromChat(chat *tb.Chat) *db.Group {
	if chat == nil {
		return nil
	}

	if chat.Type != tb.ChatGroup && chat.Type != tb.ChatSuperGroup {
		return nil
	}

	group, err := bot.Db.UpsertGroup(chat.ID, chat.Title)

	if err != nil {
		return nil
	}

	return group
}

func (bot *Bot) upsertPersonFromUser(user *tb.User) *db.Person {
	if user == nil {
		return nil
	}

	person, err := bot.Db.UpsertPerson(user.ID, user.IsBot, user.FirstName, user.Username)

	if err != nil {
		return nil
	}

	return person
}

// handleGroupMessage applies everything one group message can carry: join
// and leave service data, countable text, an embedded poll, and photo
// uploads in the designated photo chat.
func (bot *Bot) handleGroupMessage(message *tb.Message) {
	group := bot.upsertGroupFromChat(message.Chat)

	if group == nil {
		log.Debug().Msg("No valid group in message: skipping")
		return
	}

	// Join events
	for i := range message.UsersJoined {
		person := bot.upsertPersonFromUser(&message.UsersJoined[i])

		if person != nil {
			_ = bot.Db.UpsertMembership(group, person, false, nil)
			log.Info().Msgf("%s joined %s", person.String(), group.DisplayName)
		}
	}

	// Leave events
	if message.UserLeft != nil {
		person := bot.upsertPersonFromUser(message.UserLeft)

		if person != nil {
			_ = bot.Db.UpsertMembership(group, person, true, nil)
			log.Info().Msgf("%s left %s", person.String(), group.DisplayName)
		}
	}

	// Countable text
	if message.Text != "" {
		bot.recordGroupText(message, group)
	}

	// A poll posted into the chat (e.g. by ourselves)
	if message.Poll != nil {
		bot.handlePollState(message.Poll, group)
	}

	// Photo-chat flows
	if message.Chat.ID == bot.Config.PhotoUploadChat {
		bot.handlePhotoChatMessage(message)
	}
}

/*
recordGroupText counts one group text message into the activity aggregate.

The message ledger is the dedup boundary: only a first-time insert may
increment the (person, group, day) counter, so redelivery of the same
(message id, group) pair refreshes the stored text without recounting.
*/
func (bot *Bot) recordGroupText(message *tb.Message, group *db.Group) {
	person := bot.upsertPersonFromUser(message.Sender)

	if person == nil {
		return
	}

	messageTime := time.Unix(message.Unixtime, 0).UTC()

	err := bot.Db.UpsertMembership(group, person, false, &messageTime)

	if err != nil {
		return
	}

	firstSeen, err := bot.Db.RecordMessage(&db.Message{
		TelegramId: int64(message.ID),
		GroupId:    group.Id,
		PersonId:   &person.Id,
		Date:       messageTime,
		Text:       message.Text,
	})

	if err != nil {
		return
	}

	if !firstSeen {
		log.Debug().Msgf("Message %d in group=%d redelivered: not counting", message.ID, group.Id)
		return
	}

	_ = bot.Db.IncrementActivity(person.Id, group.Id, db.ActivityDate(messageTime))
}

// handlePollState upserts a poll's running yes/no tallies. When the poll
// arrived inside a group message, it is linked to the group's node.
func (bot *Bot) handlePollState(poll *tb.Poll, group *db.Group) {
	yesCount, noCount := 0, 0

	if len(poll.Options) >= 2 {
		yesCount = poll.Options[0].VoterCount
		noCount = poll.Options[1].VoterCount
	}

	var nodeId *uint

	if group != nil {
		node, err := bot.Db.FirstNodeForGroup(group)

		if err == nil && node != nil {
			nodeId = &node.Id
		}
	}

	_, err := bot.Db.UpsertPoll(poll.ID, nodeId, poll.Question, yesCount, noCount)

	if err == nil {
		log.Info().Msgf("Poll %s updated: yes=%d no=%d", poll.ID, yesCount, noCount)
	}
}

// handlePollAnswer applies one person's vote. An empty option list is a
// retraction and deletes the row; anything else upserts the current answer.
func (bot *Bot) handlePollAnswer(answer *tb.PollAnswer) {
	if answer.PollID == "" {
		log.Debug().Msg("Poll answer without poll id: skipping")
		return
	}

	poll, err := bot.Db.FindPollByTelegramId(answer.PollID)

	if err != nil || poll == nil {
		log.Debug().Msgf("Poll %s not known: skipping answer", answer.PollID)
		return
	}

	person := bot.upsertPersonFromUser(answer.Sender)

	if person == nil {
		return
	}

	if len(answer.Options) == 0 {
		_ = bot.Db.DeletePollAnswer(poll, person)
		log.Info().Msgf("%s retracted their vote", person.String())
		return
	}

	// Option 0 is "Yes", option 1 is "Not this week"
	yes := answer.Options[0] == 0
	_ = bot.Db.UpsertPollAnswer(poll, person, yes)
	log.Info().Msgf("%s voted yes=%v", person.String(), yes)
}

// handleChatMember applies a membership status change delivered through the
// admin-visible member-update stream, and onboards first-time joiners.
func (bot *Bot) handleChatMember(memberUpdate *tb.ChatMemberUpdate) {
	group := bot.upsertGroupFromChat(memberUpdate.Chat)

	if group == nil {
		log.Debug().Msg("No valid group in chat_member update: skipping")
		return
	}

	if memberUpdate.NewChatMember == nil || memberUpdate.NewChatMember.User == nil {
		log.Debug().Msg("No user in chat_member update: skipping")
		return
	}

	person := bot.upsertPersonFromUser(memberUpdate.NewChatMember.User)

	if person == nil {
		return
	}

	left := slices.Contains(
		[]tb.MemberStatus{tb.Left, tb.Kicked},
		memberUpdate.NewChatMember.Role,
	)

	err := bot.Db.UpsertMembership(group, person, left, nil)

	if err != nil {
		return
	}

	if left {
		log.Info().Msgf("%s left/kicked from %s", person.String(), group.DisplayName)
		return
	}

	log.Info().Msgf("%s joined %s", person.String(), group.DisplayName)
	bot.onboardNewMember(person, group)
}

// onboardNewMember welcomes a first-time joiner of a noded group. The
// onboarded flag is checked before the send, so a redelivered join event
// cannot produce a second welcome.
func (bot *Bot) onboardNewMember(person *db.Person, group *db.Group) {
	if person.IsBot || person.Onboarded {
		return
	}

	node, err := bot.Db.FirstNodeForGroup(group)

	if err != nil || node == nil {
		log.Debug().Msgf("Skipping onboard for %s: %s has no node", person.String(), group.DisplayName)
		return
	}

	welcome := "👋 Welcome " + formatMention(person) +
		"! Introduce yourself — what are you building? (DM me to set up your profile)"

	err = bot.Client.Send(group.TelegramId, welcome)

	if err != nil {
		bot.Reporter.ReportException(err)
		return
	}

	_ = bot.Db.MarkOnboarded(person)
	log.Info().Msgf("Onboarded %s in %s", person.String(), group.DisplayName)
}

// handleMyChatMember reacts to the bot's own membership changes: being
// added to a chat is what first creates the Group row.
func (bot *Bot) handleMyChatMember(memberUpdate *tb.ChatMemberUpdate) {
	if memberUpdate.NewChatMember != nil {
		log.Info().Msgf("Bot status changed to %s", memberUpdate.NewChatMember.Role)
	}

	bot.upsertGroupFromChat(memberUpdate.Chat)
}

// handleCallback acknowledges button presses. No callback payloads are
// currently mapped, but the platform treats an unanswered callback as a
// stalled interaction, so every one is acked.
func (bot *Bot) handleCallback(callback *tb.Callback) {
	if callback.ID == "" {
		return
	}

	log.Debug().Msgf("Unknown callback data: %s", callback.Data)
	_ = bot.Client.AnswerCallbackQuery(callback.ID)
}
