package db

import (
	"time"

	"github.com/rs/zerolog/log"
)

// PhotoExists checks the file-id dedup ledger for an already-ingested photo.
func (db *Database) PhotoExists(fileId string) (bool, error) {
	var count int64
	err := db.Conn.Model(&MeetupPhoto{}).
		Where("telegram_file_id = ?", fileId).Count(&count).Error

	if err != nil {
		log.Error().Err(err).Msgf("Error checking photo existence for file_id=%s", fileId)
		return false, err
	}

	return count > 0, nil
}

// CreatePhoto stores a processed meetup photo.
func (db *Database) CreatePhoto(photo *MeetupPhoto) error {
	err := db.Conn.Create(photo).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to create photo for node=%d", photo.NodeId)
	}

	return err
}

// DeletePhotoByFileId removes a photo. Returns true when a row was deleted.
func (db *Database) DeletePhotoByFileId(fileId string) (bool, *MeetupPhoto, error) {
	photo := MeetupPhoto{}
	result := db.Conn.First(&photo, "telegram_file_id = ?", fileId)

	if result.Error != nil {
		return false, nil, nil
	}

	err := db.Conn.Delete(&photo).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to delete photo file_id=%s", fileId)
		return false, nil, err
	}

	return true, &photo, nil
}

// RecentPhotos loads photo metadata from the trailing two weeks, capped,
// newest first. Image bytes are omitted.
func (db *Database) RecentPhotos(nodeId *uint, since time.Time, limit int) ([]MeetupPhoto, error) {
	var photos []MeetupPhoto
	query := db.Conn.
		Select("id", "node_id", "telegram_file_id", "uploaded_by_id", "created").
		Where("created >= ?", since).
		Order("created DESC").
		Limit(limit)

	if nodeId != nil {
		query = query.Where("node_id = ?", *nodeId)
	}

	err := query.Find(&photos).Error

	if err != nil {
		log.Error().Err(err).Msg("Error loading recent photos")
	}

	return photos, err
}

// FindPhoto loads one photo with its image bytes.
func (db *Database) FindPhoto(id uint) (*MeetupPhoto, error) {
	photo := MeetupPhoto{}
	result := db.Conn.First(&photo, "id = ?", id)

	if result.Error != nil {
		return nil, result.Error
	}

	return &photo, nil
}

// EvictOldestPhotos deletes photos beyond the retention count, oldest first.
// Pure count-based eviction: recency only decides which rows go, not whether
// any do. Returns the number of rows removed.
func (db *Database) EvictOldestPhotos(retain int) (int, error) {
	var total int64
	err := db.Conn.Model(&MeetupPhoto{}).Count(&total).Error

	if err != nil {
		log.Error().Err(err).Msg("Error counting photos for eviction")
		return 0, err
	}

	excess := int(total) - retain

	if excess <= 0 {
		return 0, nil
	}

	var victims []MeetupPhoto
	err = db.Conn.Select("id").Order("created ASC").Limit(excess).Find(&victims).Error

	if err != nil {
		return 0, err
	}

	ids := make([]uint, 0, len(victims))
	for _, photo := range victims {
		ids = append(ids, photo.Id)
	}

	err = db.Conn.Delete(&MeetupPhoto{}, ids).Error

	if err != nil {
		log.Error().Err(err).Msgf("Failed to evict %d photos", excess)
		return 0, err
	}

	log.Info().Msgf("Evicted %d photo(s) beyond retention of %d", excess, retain)

	return excess, nil
}

// CountPeopleInGroups counts distinct current members across a set of
// groups, for the public stats.
func (db *Database) CountPeopleInGroups(groupIds []uint) (int, error) {
	if len(groupIds) == 0 {
		return 0, nil
	}

	var count int64
	err := db.Conn.Model(&Membership{}).
		Distinct("person_id").
		Where("group_id IN ? AND left = ?", groupIds, false).
		Count(&count).Error

	if err != nil {
		log.Error().Err(err).Msg("Error counting people in groups")
		return 0, err
	}

	return int(count), nil
}
