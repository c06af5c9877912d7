package db

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertPerson saves a person by their Telegram id: mutable display fields
// are last-write-wins, while privacy, bio and onboarding state are left
// alone. Returns the persisted row.
func (db *Database) UpsertPerson(telegramId int64, isBot bool, firstName string, username string) (*Person, error) {
	person := Person{
		TelegramId: telegramId,
		IsBot:      isBot,
		FirstName:  firstName,
		Username:   username,
	}

	result := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_bot", "first_name", "username", "updated_at"}),
	}).Create(&person)

	if result.Error != nil {
		log.Error().Err(result.Error).Msgf("Failed to upsert person with telegram_id=%d", telegramId)
		return nil, result.Error
	}

	// Re-load: on a conflict the insert does not report the existing row's id
	loaded := Person{}
	err := db.Conn.First(&loaded, "telegram_id = ?", telegramId).Error

	if err != nil {
		return nil, err
	}

	return &loaded, nil
}

// SavePerson persists a person's profile fields (bio, privacy, handles).
func (db *Database) SavePerson(person *Person) error {
	err := db.Conn.Save(person).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to save person id=%d", person.Id)
	}

	return err
}

// MarkOnboarded permanently flips a person's onboarded flag.
func (db *Database) MarkOnboarded(person *Person) error {
	person.Onboarded = true
	return db.Conn.Model(&Person{}).Where("id = ?", person.Id).
		UpdateColumn("onboarded", true).Error
}

// UpsertGroup saves a group by its Telegram chat id, refreshing the display
// name. Returns the persisted row.
func (db *Database) UpsertGroup(telegramId int64, displayName string) (*Group, error) {
	group := Group{
		TelegramId:  telegramId,
		DisplayName: displayName,
	}

	result := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name"}),
	}).Create(&group)

	if result.Error != nil {
		log.Error().Err(result.Error).Msgf("Failed to upsert group with telegram_id=%d", telegramId)
		return nil, result.Error
	}

	loaded := Group{}
	err := db.Conn.First(&loaded, "telegram_id = ?", telegramId).Error

	if err != nil {
		return nil, err
	}

	return &loaded, nil
}

// FindGroupByTelegramId returns nil without an error when the group is
// simply absent.
func (db *Database) FindGroupByTelegramId(telegramId int64) (*Group, error) {
	group := Group{}
	result := db.Conn.First(&group, "telegram_id = ?", telegramId)

	switch result.Error {
	case nil:
		return &group, nil
	case gorm.ErrRecordNotFound:
		return nil, nil
	default:
		log.Error().Err(result.Error).Msgf("Error finding group with telegram_id=%d", telegramId)
		return nil, result.Error
	}
}

// UpdateSummarySentAt persists the weekly-summary marker as a single-field
// update. Called only after the summary send succeeded.
func (db *Database) UpdateSummarySentAt(group *Group, sentAt time.Time) error {
	return db.Conn.Model(&Group{}).Where("id = ?", group.Id).
		UpdateColumn("last_weekly_summary_sent_at", sentAt).Error
}

// UpsertMembership records a person's membership state in a group. Joins and
// leaves are both idempotent, and rows are never deleted.
func (db *Database) UpsertMembership(group *Group, person *Person, left bool, lastMessageAt *time.Time) error {
	assignments := map[string]interface{}{"left": left}

	if lastMessageAt != nil {
		assignments["last_message_at"] = *lastMessageAt
	}

	membership := Membership{
		GroupId:       group.Id,
		PersonId:      person.Id,
		Left:          left,
		LastMessageAt: lastMessageAt,
	}

	err := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "person_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&membership).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to upsert membership group=%d person=%d", group.Id, person.Id)
	}

	return err
}

// IsMemberOfAnyNode reports whether the person currently belongs to at least
// one group that has a linked node. Gates the DM command router.
func (db *Database) IsMemberOfAnyNode(person *Person) (bool, error) {
	var count int64
	err := db.Conn.Model(&Membership{}).
		Joins("JOIN nodes ON nodes.group_id = memberships.group_id").
		Where("memberships.person_id = ? AND memberships.left = ?", person.Id, false).
		Count(&count).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error counting node memberships for person=%d", person.Id)
		return false, err
	}

	return count > 0, nil
}

// NodesForPerson lists the nodes whose linked group the person is currently
// a member of.
func (db *Database) NodesForPerson(person *Person) ([]Node, error) {
	var nodes []Node
	err := db.Conn.
		Joins("JOIN memberships ON memberships.group_id = nodes.group_id").
		Where("memberships.person_id = ? AND memberships.left = ?", person.Id, false).
		Find(&nodes).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error loading nodes for person=%d", person.Id)
	}

	return nodes, err
}

// PublicPeopleInGroup lists people in a group with privacy off and a
// non-empty display name or X handle, ordered by name.
func (db *Database) PublicPeopleInGroup(groupId uint) ([]Person, error) {
	var people []Person
	err := db.Conn.
		Joins("JOIN memberships ON memberships.person_id = people.id").
		Where("memberships.group_id = ? AND memberships.left = ?", groupId, false).
		Where("people.privacy = ?", false).
		Where("people.first_name <> '' OR people.username_x <> ''").
		Order("people.first_name").
		Find(&people).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error loading public people for group=%d", groupId)
	}

	return people, err
}

func (Person) TableName() string {
	return "people"
}
