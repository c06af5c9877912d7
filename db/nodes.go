package db

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// NodesWithGroup loads every enabled node that has a linked group, with the
// group preloaded. The dispatcher calls this fresh on every tick, so nodes
// created mid-run are picked up without a restart.
func (db *Database) NodesWithGroup() ([]Node, error) {
	var nodes []Node
	err := db.Conn.Preload("Group").
		Where("group_id IS NOT NULL AND disabled = ?", false).
		Find(&nodes).Error

	if err != nil {
		log.Error().Err(err).Msg("Error loading nodes with groups")
	}

	return nodes, err
}

// AllNodes loads every node ordered by founding year, for the read API.
func (db *Database) AllNodes() ([]Node, error) {
	var nodes []Node
	err := db.Conn.Preload("Group").Order("established").Find(&nodes).Error

	if err != nil {
		log.Error().Err(err).Msg("Error loading nodes")
	}

	return nodes, err
}

// FindNodeBySlug matches a node by its slug, skipping disabled nodes.
func (db *Database) FindNodeBySlug(slug string) (*Node, error) {
	nodes, err := db.AllNodes()

	if err != nil {
		return nil, err
	}

	for i, node := range nodes {
		if !node.Disabled && node.Slug() == slug {
			return &nodes[i], nil
		}
	}

	return nil, nil
}

// FindNode loads one node by primary key, or nil when absent.
func (db *Database) FindNode(id uint) (*Node, error) {
	node := Node{}
	result := db.Conn.Preload("Group").First(&node, "id = ?", id)

	switch result.Error {
	case nil:
		return &node, nil
	case gorm.ErrRecordNotFound:
		return nil, nil
	default:
		log.Error().Err(result.Error).Msgf("Error finding node id=%d", id)
		return nil, result.Error
	}
}

// FirstNodeForGroup returns the node linked to a group, or nil when the
// group has none.
func (db *Database) FirstNodeForGroup(group *Group) (*Node, error) {
	node := Node{}
	result := db.Conn.First(&node, "group_id = ?", group.Id)

	switch result.Error {
	case nil:
		return &node, nil
	case gorm.ErrRecordNotFound:
		return nil, nil
	default:
		log.Error().Err(result.Error).Msgf("Error finding node for group=%d", group.Id)
		return nil, result.Error
	}
}

// EventsForNode loads a node's recurring events.
func (db *Database) EventsForNode(node *Node) ([]Event, error) {
	var events []Event
	err := db.Conn.Where("node_id = ?", node.Id).Find(&events).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error loading events for node=%d", node.Id)
	}

	return events, err
}

// UpdatePollSentAt persists the poll marker as a single-field update, only
// after the poll send succeeded.
func (db *Database) UpdatePollSentAt(node *Node, sentAt time.Time) error {
	return db.Conn.Model(&Node{}).Where("id = ?", node.Id).
		UpdateColumn("last_poll_sent_at", sentAt).Error
}

// UpdateReminderSentAt persists the reminder marker as a single-field
// update, only after the reminder send succeeded.
func (db *Database) UpdateReminderSentAt(event *Event, sentAt time.Time) error {
	return db.Conn.Model(&Event{}).Where("id = ?", event.Id).
		UpdateColumn("last_reminder_sent_at", sentAt).Error
}
