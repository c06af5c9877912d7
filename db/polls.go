package db

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertPoll saves a poll's running state by its Telegram poll id. The node
// link is only assigned when known, so a bare poll-state update does not
// detach an existing link.
func (db *Database) UpsertPoll(telegramId string, nodeId *uint, question string, yesCount int, noCount int) (*Poll, error) {
	assignments := map[string]interface{}{
		"question":  question,
		"yes_count": yesCount,
		"no_count":  noCount,
	}

	if nodeId != nil {
		assignments["node_id"] = *nodeId
	}

	poll := Poll{
		TelegramId: telegramId,
		NodeId:     nodeId,
		Question:   question,
		YesCount:   yesCount,
		NoCount:    noCount,
	}

	result := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&poll)

	if result.Error != nil {
		log.Error().Err(result.Error).Msgf("Failed to upsert poll telegram_id=%s", telegramId)
		return nil, result.Error
	}

	loaded := Poll{}
	err := db.Conn.First(&loaded, "telegram_id = ?", telegramId).Error

	if err != nil {
		return nil, err
	}

	return &loaded, nil
}

// FindPollByTelegramId returns nil without an error when the poll is
// unknown, e.g. a vote for a poll the bot never saw.
func (db *Database) FindPollByTelegramId(telegramId string) (*Poll, error) {
	poll := Poll{}
	result := db.Conn.First(&poll, "telegram_id = ?", telegramId)

	switch result.Error {
	case nil:
		return &poll, nil
	case gorm.ErrRecordNotFound:
		return nil, nil
	default:
		log.Error().Err(result.Error).Msgf("Error finding poll telegram_id=%s", telegramId)
		return nil, result.Error
	}
}

// UpsertPollAnswer stores a person's current vote: at most one row per
// (poll, person), with vote changes resolved as an in-place update.
func (db *Database) UpsertPollAnswer(poll *Poll, person *Person, yes bool) error {
	answer := PollAnswer{
		PollId:   poll.Id,
		PersonId: person.Id,
		Yes:      yes,
	}

	err := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "poll_id"}, {Name: "person_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"yes"}),
	}).Create(&answer).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to upsert poll answer poll=%d person=%d", poll.Id, person.Id)
	}

	return err
}

// DeletePollAnswer removes a person's vote. Absence of the row is the
// retracted state.
func (db *Database) DeletePollAnswer(poll *Poll, person *Person) error {
	err := db.Conn.Where("poll_id = ? AND person_id = ?", poll.Id, person.Id).
		Delete(&PollAnswer{}).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to delete poll answer poll=%d person=%d", poll.Id, person.Id)
	}

	return err
}

// YesAnswerCount counts yes-votes on a node's polls created at or after the
// window start.
func (db *Database) YesAnswerCount(nodeId uint, windowStart time.Time) (int, error) {
	var count int64
	err := db.Conn.Model(&PollAnswer{}).
		Joins("JOIN polls ON polls.id = poll_answers.poll_id").
		Where("polls.node_id = ? AND polls.created_at >= ? AND poll_answers.yes = ?",
			nodeId, windowStart, true).
		Count(&count).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error counting yes-answers for node=%d", nodeId)
		return 0, err
	}

	return int(count), nil
}

// YesAnswerPersonIds lists the people with a yes-vote on a node's polls
// created at or after the window start.
func (db *Database) YesAnswerPersonIds(nodeId uint, windowStart time.Time) ([]uint, error) {
	var personIds []uint
	err := db.Conn.Model(&PollAnswer{}).
		Joins("JOIN polls ON polls.id = poll_answers.poll_id").
		Where("polls.node_id = ? AND polls.created_at >= ? AND poll_answers.yes = ?",
			nodeId, windowStart, true).
		Pluck("poll_answers.person_id", &personIds).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error loading yes-answer people for node=%d", nodeId)
	}

	return personIds, err
}

// PollsSince loads a node's polls created at or after the cutoff, for the
// activity-level derivation.
func (db *Database) PollsSince(nodeId uint, cutoff time.Time) ([]Poll, error) {
	var polls []Poll
	err := db.Conn.Where("node_id = ? AND created_at >= ?", nodeId, cutoff).
		Find(&polls).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error loading polls for node=%d", nodeId)
	}

	return polls, err
}
