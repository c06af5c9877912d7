/*
Package telegram is the outbound messaging client. Calls are synchronous and
fallible with no built-in retry: a failed send propagates its error to the
caller, which decides whether the action is re-attempted on a later tick.
*/
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hackabot/db"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const apiBase = "https://api.telegram.org"

// Update types the webhook subscribes to
var allowedUpdates = []string{
	"message", "edited_message", "channel_post", "poll", "poll_answer",
	"chat_member", "my_chat_member", "callback_query",
}

// PollResult is the subset of a sendPoll response the caller persists.
type PollResult struct {
	TelegramId string
	Question   string
}

// Sender is the outbound surface the webhook handlers and the dispatcher
// depend on. Tests substitute a fake.
type Sender interface {
	Send(chatId int64, text string) error
	SendPoll(node *db.Node, when string) (*PollResult, error)
	SendEventReminder(node *db.Node, event *db.Event) error
	AnswerCallbackQuery(callbackId string) error
	SendChatAction(chatId int64, action string) error
	DownloadFile(fileId string) ([]byte, error)
	IsChatAdmin(chatId int64, userId int64) (bool, error)
}

type Client struct {
	Token         string
	WebhookUrl    string
	WebhookSecret string
	InviteUrl     string

	rest    *resty.Client
	limiter *rate.Limiter
}

func NewClient(token string, webhookUrl string, webhookSecret string, inviteUrl string) *Client {
	return &Client{
		Token:         token,
		WebhookUrl:    webhookUrl,
		WebhookSecret: webhookSecret,
		InviteUrl:     inviteUrl,

		rest: resty.New().SetTimeout(30 * time.Second),

		// Stay under Telegram's global send limit of ~30 messages a second
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (client *Client) methodUrl(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", apiBase, client.Token, method)
}

// call performs one bot-API method call, returning the raw result payload.
func (client *Client) call(method string, body map[string]interface{}) (json.RawMessage, error) {
	_ = client.limiter.Wait(context.Background())

	resp, err := client.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(client.methodUrl(method))

	if err != nil {
		log.Error().Err(err).Msgf("Error performing %s request", method)
		return nil, err
	}

	var parsed apiResponse
	err = json.Unmarshal(resp.Body(), &parsed)

	if err != nil {
		log.Error().Err(err).Msgf("Error unmarshaling %s response", method)
		return nil, err
	}

	if !parsed.Ok {
		err = fmt.Errorf("%s failed: %s", method, parsed.Description)
		log.Error().Err(err).Msgf("Telegram API error (status=%d)", resp.StatusCode())
		return nil, err
	}

	return parsed.Result, nil
}

// Send delivers one Markdown-formatted message to a chat.
func (client *Client) Send(chatId int64, text string) error {
	_, err := client.call("sendMessage", map[string]interface{}{
		"chat_id":                  chatId,
		"parse_mode":               "Markdown",
		"text":                     text,
		"disable_web_page_preview": true,
	})

	return err
}

// SendPoll posts the weekly attendance poll to the node's group, follows up
// with the global-chat invite, and pins the poll best-effort. The returned
// result carries the platform's poll id for persistence by the caller.
func (client *Client) SendPoll(node *db.Node, when string) (*PollResult, error) {
	if node.Group == nil {
		return nil, fmt.Errorf("node %s has no linked group", node.Name)
	}

	chatId := node.Group.TelegramId
	question := fmt.Sprintf("Who's coming to %s this %s?", node.String(), when)

	result, err := client.call("sendPoll", map[string]interface{}{
		"chat_id":                 chatId,
		"question":                question,
		"options":                 []string{"✅  Yes", "👎  Not this week"},
		"is_anonymous":            false,
		"allows_multiple_answers": false,
	})

	if err != nil {
		return nil, err
	}

	var sent struct {
		MessageId int64 `json:"message_id"`
		Poll      struct {
			Id       string `json:"id"`
			Question string `json:"question"`
		} `json:"poll"`
	}

	err = json.Unmarshal(result, &sent)

	if err != nil {
		return nil, err
	}

	// Follow up with an invite to the global chat
	if client.InviteUrl != "" {
		inviteText := fmt.Sprintf(
			"...you can also join the [global chat 🌏💻🤓](%s)", client.InviteUrl,
		)

		if err := client.Send(chatId, inviteText); err != nil {
			log.Warn().Err(err).Msg("Sending global-chat invite failed")
		}
	}

	// Try to pin the poll: failure is tolerated, the poll is already out
	_, err = client.call("pinChatMessage", map[string]interface{}{
		"chat_id":              chatId,
		"message_id":           sent.MessageId,
		"disable_notification": false,
	})

	if err != nil {
		log.Warn().Err(err).Msgf("Failed to pin poll in chat=%d", chatId)
	}

	return &PollResult{TelegramId: sent.Poll.Id, Question: sent.Poll.Question}, nil
}

// SendEventReminder posts the event's reminder text to the node's group.
// Drinks get a "let's go" at event time rather than a heads-up.
func (client *Client) SendEventReminder(node *db.Node, event *db.Event) error {
	if node.Group == nil {
		return fmt.Errorf("node %s has no linked group", node.Name)
	}

	chatId := node.Group.TelegramId
	timeStr := friendlyEventTime(event)

	var text string

	switch event.Type {
	case db.EventIntros:
		text = fmt.Sprintf("🔔👋  Reminder! *Intros are at %s*", timeStr)
	case db.EventDemos:
		text = fmt.Sprintf("🔔💻  Reminder! *Demos are at %s*", timeStr)
	case db.EventLunch:
		if event.Where != "" {
			text = fmt.Sprintf("🔔🍔  *Lunch at %s* in %s", timeStr, event.Where)
		} else {
			text = fmt.Sprintf("🔔🍔  *Lunch at %s*", timeStr)
		}
	case db.EventDrinks:
		if event.Where != "" {
			text = fmt.Sprintf("🍺🍻🍷  %s — let's go!", event.Where)
		} else {
			text = "🍺🍻🍷  Drinks time — let's go!"
		}
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	return client.Send(chatId, text)
}

// AnswerCallbackQuery acknowledges a button press so the client's loading
// state clears, without any visible response.
func (client *Client) AnswerCallbackQuery(callbackId string) error {
	_, err := client.call("answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackId,
	})

	return err
}

// SendChatAction sets the "typing..." style indicator.
func (client *Client) SendChatAction(chatId int64, action string) error {
	_, err := client.call("sendChatAction", map[string]interface{}{
		"chat_id": chatId,
		"action":  action,
	})

	return err
}

// DownloadFile fetches a file's bytes by its platform file id. Returns nil
// bytes when the file cannot be resolved.
func (client *Client) DownloadFile(fileId string) ([]byte, error) {
	result, err := client.call("getFile", map[string]interface{}{
		"file_id": fileId,
	})

	if err != nil {
		return nil, err
	}

	var file struct {
		FilePath string `json:"file_path"`
	}

	err = json.Unmarshal(result, &file)

	if err != nil || file.FilePath == "" {
		return nil, err
	}

	_ = client.limiter.Wait(context.Background())

	resp, err := client.rest.R().
		Get(fmt.Sprintf("%s/file/bot%s/%s", apiBase, client.Token, file.FilePath))

	if err != nil {
		log.Error().Err(err).Msgf("Error downloading file=%s", fileId)
		return nil, err
	}

	return resp.Body(), nil
}

// IsChatAdmin reports whether the user is a creator or administrator of the
// chat.
func (client *Client) IsChatAdmin(chatId int64, userId int64) (bool, error) {
	result, err := client.call("getChatMember", map[string]interface{}{
		"chat_id": chatId,
		"user_id": userId,
	})

	if err != nil {
		return false, err
	}

	var member struct {
		Status string `json:"status"`
	}

	err = json.Unmarshal(result, &member)

	if err != nil {
		return false, err
	}

	return member.Status == "creator" || member.Status == "administrator", nil
}

// VerifyWebhook makes sure Telegram delivers updates to our webhook URL,
// registering it when the current registration disagrees.
func (client *Client) VerifyWebhook() error {
	if client.WebhookUrl == "" {
		log.Warn().Msg("No webhook URL configured: skipping webhook setup")
		return nil
	}

	result, err := client.call("getWebhookInfo", map[string]interface{}{})

	if err != nil {
		return err
	}

	var info struct {
		Url string `json:"url"`
	}

	err = json.Unmarshal(result, &info)

	if err != nil {
		return err
	}

	if info.Url == client.WebhookUrl {
		log.Debug().Msgf("Webhook already set to %s", client.WebhookUrl)
		return nil
	}

	log.Info().Msgf("Setting webhook to %s", client.WebhookUrl)

	body := map[string]interface{}{
		"url":             client.WebhookUrl,
		"allowed_updates": allowedUpdates,
	}

	if client.WebhookSecret != "" {
		body["secret_token"] = client.WebhookSecret
	}

	_, err = client.call("setWebhook", body)

	return err
}

// friendlyEventTime formats "14:00" as "2pm" and "9:30" as "9:30am".
func friendlyEventTime(event *db.Event) string {
	hour, minute := event.Clock()

	suffix := "am"
	displayHour := hour

	if hour >= 12 {
		suffix = "pm"

		if hour > 12 {
			displayHour = hour - 12
		}
	}

	if displayHour == 0 {
		displayHour = 12
	}

	if minute == 0 {
		return fmt.Sprintf("%d%s", displayHour, suffix)
	}

	return fmt.Sprintf("%d:%02d%s", displayHour, minute, suffix)
}
