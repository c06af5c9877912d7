package db

import "time"

// TotalCounts carries the row counts shown on the admin panel.
type TotalCounts struct {
	Nodes          int64
	Groups         int64
	People         int64
	Polls          int64
	Photos         int64
	LastPollSentAt *time.Time
}

func (database *Database) Totals() (*TotalCounts, error) {
	totals := TotalCounts{}

	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&Node{}, &totals.Nodes},
		{&Group{}, &totals.Groups},
		{&Person{}, &totals.People},
		{&Poll{}, &totals.Polls},
		{&MeetupPhoto{}, &totals.Photos},
	}

	for _, count := range counts {
		if err := database.Conn.Model(count.model).Count(count.dest).Error; err != nil {
			return nil, err
		}
	}

	var latest Poll
	result := database.Conn.Order("created_at DESC").Limit(1).Find(&latest)

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected > 0 {
		totals.LastPollSentAt = &latest.CreatedAt
	}

	return &totals, nil
}
