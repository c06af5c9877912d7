package bot

import (
	"strings"
	"time"

	"hackabot/db"
	"hackabot/images"
	"hackabot/utils"

	"github.com/rs/zerolog/log"
	tb "gopkg.in/telebot.v3"
)

// handlePhotoChatMessage runs the photo-chat flows: captioned uploads,
// "delete" replies, and hashtag replies that claim an earlier photo for a
// node.
func (bot *Bot) handlePhotoChatMessage(message *tb.Message) {
	if message.Photo != nil && message.Caption != "" {
		node := bot.findNodeFromHashtags(message.Caption)

		if node != nil {
			bot.handlePhotoUpload(message, node)
		}
	}

	text := strings.TrimSpace(message.Text)

	if strings.EqualFold(text, "delete") {
		bot.handleDeleteReply(message)
		return
	}

	if text != "" {
		bot.handleHashtagReply(message)
	}
}

// findNodeFromHashtags matches a hashtag in the text against enabled node
// slugs.
func (bot *Bot) findNodeFromHashtags(text string) *db.Node {
	hashtags := utils.Hashtags(text)

	if len(hashtags) == 0 {
		return nil
	}

	nodes, err := bot.Db.AllNodes()

	if err != nil {
		return nil
	}

	for i, node := range nodes {
		if node.Disabled {
			continue
		}

		for _, hashtag := range hashtags {
			if node.Slug() == hashtag {
				return &nodes[i]
			}
		}
	}

	return nil
}

// handlePhotoUpload downloads, processes and stores one uploaded photo,
// stamped with the node's most recent event date rather than the upload
// time. File-id dedup makes redelivered uploads no-ops.
func (bot *Bot) handlePhotoUpload(message *tb.Message, node *db.Node) {
	chatId := message.Chat.ID
	fileId := message.Photo.FileID

	if fileId == "" {
		_ = bot.Client.Send(chatId, "Hmm, something went wrong with that photo. Try again?")
		return
	}

	exists, err := bot.Db.PhotoExists(fileId)

	if err != nil || exists {
		log.Debug().Msgf("Photo already ingested: %s", fileId)
		return
	}

	_ = bot.Client.SendChatAction(chatId, "typing")

	var uploaderId *uint
	uploader := bot.upsertPersonFromUser(message.Sender)

	if uploader != nil {
		uploaderId = &uploader.Id
	}

	imageBytes, err := bot.Client.DownloadFile(fileId)

	if err != nil || imageBytes == nil {
		bot.Reporter.ReportException(err)
		_ = bot.Client.Send(chatId, "Couldn't download that photo. Try again?")
		return
	}

	processed := images.Process(imageBytes)

	if processed == nil {
		_ = bot.Client.Send(chatId, "Couldn't process that image. Is it a valid photo?")
		return
	}

	err = bot.Db.CreatePhoto(&db.MeetupPhoto{
		NodeId:         node.Id,
		TelegramFileId: fileId,
		ImageData:      processed,
		UploadedById:   uploaderId,
		Created:        lastEventDate(time.Now().UTC(), node),
	})

	if err != nil {
		bot.Reporter.ReportException(err)
		return
	}

	nodeName := utils.PrepareInputForMarkdown(node.Name, "text")
	confirmation := "Thanks! Added your " + strings.TrimSpace(node.Emoji+" "+nodeName) +
		" photo to " + bot.Config.NetworkUrl

	_ = bot.Client.Send(chatId, confirmation)
	log.Info().Msgf("Saved meetup photo for %s (%d bytes)", node.Name, len(processed))
}

// handleDeleteReply removes a photo when someone replies "delete" to it.
func (bot *Bot) handleDeleteReply(message *tb.Message) {
	if message.ReplyTo == nil || message.ReplyTo.Photo == nil {
		return
	}

	chatId := message.Chat.ID
	fileId := message.ReplyTo.Photo.FileID

	deleted, photo, err := bot.Db.DeletePhotoByFileId(fileId)

	if err != nil {
		bot.Reporter.ReportException(err)
		return
	}

	if !deleted {
		_ = bot.Client.Send(chatId, "That photo isn't on the website")
		return
	}

	node, nodeErr := bot.Db.FindNode(photo.NodeId)
	label := "meetup"

	if nodeErr == nil && node != nil {
		label = strings.TrimSpace(node.Emoji + " " + utils.PrepareInputForMarkdown(node.Name, "text"))
	}

	_ = bot.Client.Send(chatId, "Removed "+label+" photo from "+bot.Config.NetworkUrl)
}

// handleHashtagReply claims a photo for a node after the fact, when a
// hashtag arrives as a reply instead of in the original caption.
func (bot *Bot) handleHashtagReply(message *tb.Message) {
	if message.ReplyTo == nil || message.ReplyTo.Photo == nil {
		return
	}

	fileId := message.ReplyTo.Photo.FileID

	if fileId == "" {
		return
	}

	exists, err := bot.Db.PhotoExists(fileId)

	if err != nil || exists {
		log.Debug().Msg("Photo already uploaded: ignoring hashtag reply")
		return
	}

	node := bot.findNodeFromHashtags(message.Text)

	if node == nil {
		return
	}

	bot.handlePhotoUpload(message.ReplyTo, node)
}

// lastEventDate walks back from the given instant to the node's most recent
// event day, in the node's timezone.
func lastEventDate(now time.Time, node *db.Node) time.Time {
	local := now.In(node.TimeLocation())
	daysBack := (db.MondayWeekday(local.Weekday()) - node.EventDay + 7) % 7

	return local.AddDate(0, 0, -daysBack)
}
