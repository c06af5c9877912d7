package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"hackabot/db"
	"hackabot/logging"
	"hackabot/utils"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/rs/zerolog/log"
	tb "gopkg.in/telebot.v3"
)

// handleDirectMessage routes a private-chat message through the command
// router. A sender who is not a member of any noded group is told to join
// one before any command runs.
func (bot *Bot) handleDirectMessage(message *tb.Message) {
	person := bot.upsertPersonFromUser(message.Sender)

	if person == nil {
		log.Debug().Msg("No sender in direct message: skipping")
		return
	}

	text := strings.TrimSpace(message.Text)
	chatId := message.Chat.ID

	isMember, err := bot.Db.IsMemberOfAnyNode(person)

	if err != nil {
		return
	}

	if !isMember {
		_ = bot.Client.Send(chatId,
			"👋 Hey! I'm the bot for this meetup network.\n\n"+
				"To use me, you need to be a member of at least one local node.\n\n"+
				"Head to "+bot.Config.NetworkUrl+" to find and apply to your local one!")
		return
	}

	switch {
	case strings.HasPrefix(text, "/help"), strings.HasPrefix(text, "/start"):
		bot.helpCommand(chatId, person)
	case strings.HasPrefix(text, "/x "), text == "/x":
		bot.xCommand(chatId, person, text)
	case strings.HasPrefix(text, "/privacy"):
		bot.privacyCommand(chatId, person, text)
	case strings.HasPrefix(text, "/bio"):
		bot.bioCommand(chatId, person, text)
	case strings.HasPrefix(text, "/people"):
		bot.peopleCommand(chatId, person)
	case strings.HasPrefix(text, "/admin"):
		bot.adminCommand(chatId, person)
	default:
		_ = bot.Client.Send(chatId,
			"🤔 I don't recognise that command.\n\nType /help to see what I can do!")
	}
}

func (bot *Bot) helpCommand(chatId int64, person *db.Person) {
	nodes, err := bot.Db.NodesForPerson(person)

	if err != nil {
		return
	}

	lines := []string{
		"👋 *Welcome!*",
		"",
		"I'm the friendly bot for this network of meetup nodes.",
		"",
		"🔒 *Privacy:* I never store any of your group messages.",
		"",
		"🌐 For more info, visit " + bot.Config.NetworkUrl,
		"",
	}

	if len(nodes) > 0 {
		lines = append(lines, "📍 *Your nodes:*")

		for _, node := range nodes {
			lines = append(lines, "  • "+node.String())
		}
	} else {
		lines = append(lines, "📍 You're not in any nodes yet!")
	}

	lines = append(lines, "", "👤 *Your profile:*")

	if person.Username != "" {
		lines = append(lines, "  • Telegram: @"+escapeUnderscores(person.Username))
	}

	if person.UsernameX != "" {
		lines = append(lines, "  • X/Twitter: @"+escapeUnderscores(person.UsernameX))
	}

	if person.Bio != "" {
		lines = append(lines, "  • Bio: _"+escapeUnderscores(person.Bio)+"_")
	}

	lines = append(lines, "", "🛡️ *Privacy mode:* "+privacyStatus(person))

	if person.Privacy {
		lines = append(lines, "  You are hidden from "+bot.Config.NetworkUrl)
	} else {
		lines = append(lines, "  You are listed on "+bot.Config.NetworkUrl+" for your nodes")
	}

	lines = append(lines,
		"",
		"*Commands:*",
		"  /bio your text — set your bio",
		"  /bio unset — clear your bio",
		"  /x @username — set your X/Twitter username",
		"  /privacy on — turn privacy mode ON",
		"  /privacy off — turn privacy mode OFF",
		"  /people — list people in your nodes",
	)

	_ = bot.Client.Send(chatId, strings.Join(lines, "\n"))
}

// xCommand sets the external-network handle: leading @ stripped, word
// characters only.
func (bot *Bot) xCommand(chatId int64, person *db.Person, text string) {
	parts := strings.SplitN(text, " ", 2)

	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		_ = bot.Client.Send(chatId,
			"❌ Please provide your X/Twitter username.\n\nExample: `/x @yourname`")
		return
	}

	username := strings.TrimSpace(parts[1])
	username = strings.TrimPrefix(username, "@")

	if username == "" {
		_ = bot.Client.Send(chatId,
			"❌ Please provide a valid username.\n\nExample: `/x @yourname`")
		return
	}

	if utils.ContainsHtmlTags(username) {
		_ = bot.Client.Send(chatId, "❌ Username cannot contain HTML characters.")
		return
	}

	if !utils.ValidHandle(username) {
		_ = bot.Client.Send(chatId,
			"❌ Please provide a valid username.\n\nExample: `/x @yourname`")
		return
	}

	person.UsernameX = username

	if err := bot.Db.SavePerson(person); err != nil {
		bot.Reporter.ReportException(err)
		return
	}

	confirmation := "✅ Your X/Twitter username has been set to @" + escapeUnderscores(username)
	_ = bot.Client.Send(chatId, confirmation+bot.privacyNudge(person))
}

// privacyCommand toggles the privacy flag for literal on/off arguments, and
// reports the current state for anything else.
func (bot *Bot) privacyCommand(chatId int64, person *db.Person, text string) {
	parts := strings.Fields(strings.ToLower(text))

	if len(parts) < 2 || (parts[1] != "on" && parts[1] != "off") {
		explanation := "You are listed on " + bot.Config.NetworkUrl + " for your nodes"

		if person.Privacy {
			explanation = "You are hidden from " + bot.Config.NetworkUrl
		}

		_ = bot.Client.Send(chatId,
			"🛡️ Your privacy mode is currently *"+privacyStatus(person)+"*\n"+
				explanation+"\n\n"+
				"Use `/privacy on` or `/privacy off` to change it.")
		return
	}

	person.Privacy = parts[1] == "on"

	if err := bot.Db.SavePerson(person); err != nil {
		bot.Reporter.ReportException(err)
		return
	}

	explanation := "You are now listed on " + bot.Config.NetworkUrl + " for your nodes"

	if person.Privacy {
		explanation = "You are now hidden from " + bot.Config.NetworkUrl
	}

	_ = bot.Client.Send(chatId, "✅ Privacy mode is now *"+privacyStatus(person)+"*\n"+explanation)
}

// bioCommand validates and stores the bio. Rejections name the exact
// problem; an accepted bio is unescaped from HTML entities before storage.
func (bot *Bot) bioCommand(chatId int64, person *db.Person, text string) {
	parts := strings.SplitN(text, " ", 2)

	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		current := "not set"

		if person.Bio != "" {
			current = "_" + person.Bio + "_"
		}

		_ = bot.Client.Send(chatId,
			"📝 Your bio is currently: "+current+"\n\n"+
				"Use `/bio your text` to set it, or `/bio unset` to clear it.")
		return
	}

	bioText := strings.TrimSpace(parts[1])

	if strings.EqualFold(bioText, "unset") {
		person.Bio = ""

		if err := bot.Db.SavePerson(person); err != nil {
			bot.Reporter.ReportException(err)
			return
		}

		_ = bot.Client.Send(chatId, "✅ Your bio has been cleared.")
		return
	}

	if length := utf8.RuneCountInString(bioText); length > bot.Config.BioMaxLength {
		_ = bot.Client.Send(chatId, fmt.Sprintf(
			"❌ Bio is too long (%d characters).\n\nMaximum length is %d characters.",
			length, bot.Config.BioMaxLength))
		return
	}

	if utils.ContainsHtmlTags(bioText) {
		_ = bot.Client.Send(chatId, "❌ Bio cannot contain HTML tags.")
		return
	}

	if utils.ContainsCommand(bioText) {
		_ = bot.Client.Send(chatId, "❌ Bio cannot contain Telegram commands (e.g. /something).")
		return
	}

	person.Bio = utils.UnescapeHtml(bioText)

	if err := bot.Db.SavePerson(person); err != nil {
		bot.Reporter.ReportException(err)
		return
	}

	confirmation := "✅ Your bio has been set to:\n\n_" + person.Bio + "_"
	_ = bot.Client.Send(chatId, confirmation+bot.privacyNudge(person))
}

// peopleCommand lists the public profiles in the sender's nodes.
func (bot *Bot) peopleCommand(chatId int64, person *db.Person) {
	nodes, err := bot.Db.NodesForPerson(person)

	if err != nil {
		return
	}

	if len(nodes) == 0 {
		_ = bot.Client.Send(chatId, "📍 You're not in any nodes yet!")
		return
	}

	lines := []string{"👥 *People in your nodes:*", ""}

	for _, node := range nodes {
		lines = append(lines, "*"+node.String()+"*")

		if node.GroupId == nil {
			lines = append(lines, "  _No group linked_", "")
			continue
		}

		people, err := bot.Db.PublicPeopleInGroup(*node.GroupId)

		if err != nil || len(people) == 0 {
			lines = append(lines, "  _No public profiles yet_", "")
			continue
		}

		for _, p := range people {
			name := p.FirstName
			if name == "" {
				name = "Unknown"
			}

			entry := "  • " + name

			if p.UsernameX != "" {
				entry += fmt.Sprintf(" [@%s](https://x.com/%s)", p.UsernameX, p.UsernameX)
			}

			lines = append(lines, entry)

			if p.Bio != "" {
				lines = append(lines, "    _"+p.Bio+"_")
			}
		}

		lines = append(lines, "")
	}

	lines = append(lines, "_Only showing people with privacy mode OFF_")
	_ = bot.Client.Send(chatId, strings.Join(lines, "\n"))
}

// adminCommand dumps operational state to the owner. Non-owners are logged
// and ignored.
func (bot *Bot) adminCommand(chatId int64, person *db.Person) {
	if person.TelegramId != bot.Config.Owner {
		log.Error().Msgf("/admin called by non-owner (%d)", person.TelegramId)
		return
	}

	totals, err := bot.Db.Totals()

	if err != nil {
		return
	}

	bot.Db.SetSize(bot.Config.DbFolder)

	var lastPollAgo string
	lastPoll := totals.LastPollSentAt

	if lastPoll == nil {
		lastPollAgo = "never"
	} else {
		lastPollAgo = durafmt.Parse(time.Since(*lastPoll)).LimitFirstN(2).String() + " ago"
	}

	text := fmt.Sprintf("🤖 *Admin panel*\n"+
		"Version: %s\nUptime: %s\n\n"+
		"Nodes: %d\nGroups: %d\nPeople: %d\nPolls: %d\nPhotos: %d\n\n"+
		"Last poll sent: %s\n"+
		"Database size: %s\n"+
		"Log-file size: %s",
		bot.Session.Version,
		durafmt.Parse(time.Since(bot.Session.Started)).LimitFirstN(2).String(),
		totals.Nodes, totals.Groups, totals.People, totals.Polls, totals.Photos,
		lastPollAgo,
		humanize.Bytes(uint64(bot.Db.Size*1024*1024)),
		humanize.Bytes(uint64(logging.GetLogSize(""))),
	)

	_ = bot.Client.Send(chatId, text)
}

// privacyNudge appends a listing hint when privacy mode is on.
func (bot *Bot) privacyNudge(person *db.Person) string {
	if !person.Privacy {
		return ""
	}

	return "\n\n💡 Your privacy mode is ON, so you won't appear on " +
		bot.Config.NetworkUrl + ". Use `/privacy off` to be listed!"
}

func privacyStatus(person *db.Person) string {
	if person.Privacy {
		return "ON 🔒"
	}

	return "OFF 🔓"
}

func escapeUnderscores(text string) string {
	return strings.ReplaceAll(text, "_", "\\_")
}

func formatMention(person *db.Person) string {
	name := person.FirstName

	if name == "" {
		name = "there"
	}

	return fmt.Sprintf("[%s](tg://user?id=%d)", name, person.TelegramId)
}
