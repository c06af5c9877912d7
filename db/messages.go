package db

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordMessage inserts a message into the dedup ledger. Returns true when
// the (telegram id, group) pair was seen for the first time; on redelivery
// the stored text is refreshed and false is returned, so the caller never
// double-counts activity.
//
// The insert-or-ignore runs as one statement, so two concurrent deliveries
// of the same message resolve inside sqlite rather than in a check-then-act
// race here.
func (db *Database) RecordMessage(message *Message) (bool, error) {
	result := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}, {Name: "group_id"}},
		DoNothing: true,
	}).Create(message)

	if result.Error != nil {
		log.Error().Err(result.Error).Msgf("Failed to record message telegram_id=%d group=%d",
			message.TelegramId, message.GroupId)
		return false, result.Error
	}

	if result.RowsAffected == 0 {
		// Redelivered: keep the latest content, do not treat as new
		err := db.Conn.Model(&Message{}).
			Where("telegram_id = ? AND group_id = ?", message.TelegramId, message.GroupId).
			UpdateColumn("text", message.Text).Error

		return false, err
	}

	return true, nil
}

// IncrementActivity bumps the (person, group, date) counter by one, creating
// the row when absent. The increment is expressed relative to the stored
// value, never read-modify-written from application memory.
func (db *Database) IncrementActivity(personId uint, groupId uint, date string) error {
	activity := ActivityDay{
		PersonId:     personId,
		GroupId:      groupId,
		Date:         date,
		MessageCount: 1,
	}

	err := db.Conn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "person_id"}, {Name: "group_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"message_count": gorm.Expr("message_count + 1"),
		}),
	}).Create(&activity).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to increment activity person=%d group=%d date=%s",
			personId, groupId, date)
	}

	return err
}
