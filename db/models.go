package db

import (
	"fmt"
	"strings"
	"time"
)

// EventType enumerates the recurring per-node events.
type EventType string

const (
	EventIntros EventType = "intros"
	EventLunch  EventType = "lunch"
	EventDemos  EventType = "demos"
	EventDrinks EventType = "drinks"
)

// MondayWeekday maps Go's Sunday-based weekday onto the Monday-based
// indexing used throughout the schema (0=Monday ... 6=Sunday).
func MondayWeekday(weekday time.Weekday) int {
	return (int(weekday) + 6) % 7
}

// ActivityDate formats an instant as the UTC calendar-day key of the
// activity aggregate.
func ActivityDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Group is a Telegram chat the bot has seen. Rows are created when the bot
// is added to a chat, or lazily on the first update from one.
type Group struct {
	Id                      uint  `gorm:"primaryKey"`
	TelegramId              int64 `gorm:"uniqueIndex"`
	DisplayName             string
	LastWeeklySummarySentAt *time.Time
	CreatedAt               time.Time
}

// Person is anyone the bot has seen in a message or membership update.
// Privacy defaults to on: people opt in to being listed publicly.
type Person struct {
	Id         uint  `gorm:"primaryKey"`
	TelegramId int64 `gorm:"uniqueIndex"`
	IsBot      bool
	FirstName  string
	Username   string
	UsernameX  string
	Bio        string
	Privacy    bool `gorm:"default:true"`
	Onboarded  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (person *Person) String() string {
	if person.Username != "" {
		return fmt.Sprintf("%s (@%s)", person.FirstName, person.Username)
	}

	return fmt.Sprintf("%s (id=%d)", person.FirstName, person.TelegramId)
}

// Membership tracks a person's current standing in a group. Rows are never
// deleted: leaving flips the flag.
type Membership struct {
	Id            uint `gorm:"primaryKey"`
	GroupId       uint `gorm:"uniqueIndex:idx_group_person"`
	PersonId      uint `gorm:"uniqueIndex:idx_group_person"`
	Left          bool
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// Node is one local meetup community, usually linked to a group chat.
type Node struct {
	Id             uint `gorm:"primaryKey"`
	Name           string
	Emoji          string
	Timezone       string // IANA name, empty means UTC
	GroupId        *uint
	Group          *Group
	EventDay       int // Monday-based weekday of the weekly meetup
	Disabled       bool
	Established    int
	SignupUrl      string
	Location       string
	LastPollSentAt *time.Time
	CreatedAt      time.Time
}

func (node *Node) String() string {
	if node.Emoji != "" {
		return node.Emoji + " " + node.Name
	}

	return node.Name
}

// Slug derives the url-safe node identifier used in hashtags and API paths.
func (node *Node) Slug() string {
	return strings.ToLower(strings.ReplaceAll(node.Name, " ", ""))
}

// TimeLocation resolves the node's timezone, falling back to UTC when the
// name is empty or unknown.
func (node *Node) TimeLocation() *time.Location {
	if node.Timezone == "" {
		return time.UTC
	}

	location, err := time.LoadLocation(node.Timezone)

	if err != nil {
		return time.UTC
	}

	return location
}

// Event is one recurring slot on a node's meetup day, at most one per type.
type Event struct {
	Id                 uint      `gorm:"primaryKey"`
	NodeId             uint      `gorm:"uniqueIndex:idx_node_event_type"`
	Type               EventType `gorm:"uniqueIndex:idx_node_event_type"`
	Time               string    // "HH:MM" in the node's timezone
	Where              string
	LastReminderSentAt *time.Time
}

// Clock parses the event's "HH:MM" wall time. A malformed value reads as
// midnight.
func (event *Event) Clock() (int, int) {
	var hour, minute int
	_, err := fmt.Sscanf(event.Time, "%d:%d", &hour, &minute)

	if err != nil {
		return 0, 0
	}

	return hour, minute
}

// Poll is one weekly attendance poll, keyed by the platform's poll id so
// redelivered state updates land on the same row.
type Poll struct {
	Id         uint   `gorm:"primaryKey"`
	TelegramId string `gorm:"uniqueIndex"`
	NodeId     *uint
	Question   string
	YesCount   int
	NoCount    int
	CreatedAt  time.Time
}

// PollAnswer is a person's current vote on a poll, at most one row per
// pair. Retraction deletes the row.
type PollAnswer struct {
	Id       uint `gorm:"primaryKey"`
	PollId   uint `gorm:"uniqueIndex:idx_poll_person"`
	PersonId uint `gorm:"uniqueIndex:idx_poll_person"`
	Yes      bool
}

// ActivityDay aggregates one person's message count in one group on one
// UTC calendar day. Message bodies are never retained here.
type ActivityDay struct {
	Id           uint   `gorm:"primaryKey"`
	PersonId     uint   `gorm:"uniqueIndex:idx_person_group_date"`
	GroupId      uint   `gorm:"uniqueIndex:idx_person_group_date"`
	Date         string `gorm:"uniqueIndex:idx_person_group_date"` // YYYY-MM-DD
	MessageCount int
}

// Message is the delivery-dedup ledger: the platform's message id scoped to
// a group. First insert wins; redelivery only refreshes the text.
type Message struct {
	Id         uint  `gorm:"primaryKey"`
	TelegramId int64 `gorm:"uniqueIndex:idx_message_group"`
	GroupId    uint  `gorm:"uniqueIndex:idx_message_group"`
	PersonId   *uint
	Date       time.Time
	Text       string
}

// MeetupPhoto is a processed photo from the upload chat, stamped with the
// node's event date instead of the upload time.
type MeetupPhoto struct {
	Id             uint   `gorm:"primaryKey"`
	NodeId         uint   `gorm:"index"`
	TelegramFileId string `gorm:"uniqueIndex"`
	ImageData      []byte
	UploadedById   *uint
	Created        time.Time `gorm:"index"`
}
