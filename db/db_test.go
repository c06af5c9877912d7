package db

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm/logger"
)

func openTestDb(t *testing.T) *Database {
	t.Helper()

	db := Database{}
	path := filepath.Join(t.TempDir(), "test.db")

	if !db.OpenPath(path, logger.Default.LogMode(logger.Silent)) {
		t.Fatal("opening test database failed")
	}

	t.Cleanup(db.Close)

	return &db
}

func TestMessageIngestionIsIdempotent(t *testing.T) {
	db := openTestDb(t)

	group, err := db.UpsertGroup(-100123, "Testville Chat")
	if err != nil {
		t.Fatal(err)
	}

	person, err := db.UpsertPerson(42, false, "Ada", "ada")
	if err != nil {
		t.Fatal(err)
	}

	when := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	// Deliver the same message three times
	for i := 0; i < 3; i++ {
		firstSeen, err := db.RecordMessage(&Message{
			TelegramId: 555,
			GroupId:    group.Id,
			PersonId:   &person.Id,
			Date:       when,
			Text:       "hello world",
		})

		if err != nil {
			t.Fatal(err)
		}

		if firstSeen != (i == 0) {
			t.Errorf("delivery %d: firstSeen = %v", i, firstSeen)
		}

		if firstSeen {
			if err := db.IncrementActivity(person.Id, group.Id, ActivityDate(when)); err != nil {
				t.Fatal(err)
			}
		}
	}

	var messageCount int64
	db.Conn.Model(&Message{}).Count(&messageCount)

	if messageCount != 1 {
		t.Errorf("message rows = %d, want 1", messageCount)
	}

	activity := ActivityDay{}
	err = db.Conn.First(&activity, "person_id = ? AND group_id = ?", person.Id, group.Id).Error

	if err != nil {
		t.Fatal(err)
	}

	if activity.MessageCount != 1 {
		t.Errorf("activity count = %d, want 1", activity.MessageCount)
	}
}

func TestActivityIncrementAccumulates(t *testing.T) {
	db := openTestDb(t)

	for i := 0; i < 5; i++ {
		if err := db.IncrementActivity(1, 2, "2026-08-31"); err != nil {
			t.Fatal(err)
		}
	}

	activity := ActivityDay{}
	if err := db.Conn.First(&activity, "date = ?", "2026-08-31").Error; err != nil {
		t.Fatal(err)
	}

	if activity.MessageCount != 5 {
		t.Errorf("activity count = %d, want 5", activity.MessageCount)
	}

	var rows int64
	db.Conn.Model(&ActivityDay{}).Count(&rows)

	if rows != 1 {
		t.Errorf("activity rows = %d, want 1", rows)
	}
}

func TestPollAnswerLifecycle(t *testing.T) {
	db := openTestDb(t)

	poll, err := db.UpsertPoll("poll-1", nil, "Who's coming?", 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	person, err := db.UpsertPerson(42, false, "Ada", "ada")
	if err != nil {
		t.Fatal(err)
	}

	// Vote yes, change to no, then retract
	if err := db.UpsertPollAnswer(poll, person, true); err != nil {
		t.Fatal(err)
	}

	if err := db.UpsertPollAnswer(poll, person, false); err != nil {
		t.Fatal(err)
	}

	var rows int64
	db.Conn.Model(&PollAnswer{}).Count(&rows)

	if rows != 1 {
		t.Fatalf("answer rows after vote change = %d, want 1", rows)
	}

	answer := PollAnswer{}
	db.Conn.First(&answer, "poll_id = ?", poll.Id)

	if answer.Yes {
		t.Error("vote change not applied")
	}

	if err := db.DeletePollAnswer(poll, person); err != nil {
		t.Fatal(err)
	}

	db.Conn.Model(&PollAnswer{}).Count(&rows)

	if rows != 0 {
		t.Errorf("answer rows after retraction = %d, want 0", rows)
	}
}

func TestMembershipUpsertNeverDuplicates(t *testing.T) {
	db := openTestDb(t)

	group, _ := db.UpsertGroup(-100123, "Testville Chat")
	person, _ := db.UpsertPerson(42, false, "Ada", "ada")

	when := time.Now().UTC()

	// Join, message, leave, rejoin
	_ = db.UpsertMembership(group, person, false, nil)
	_ = db.UpsertMembership(group, person, false, &when)
	_ = db.UpsertMembership(group, person, true, nil)
	_ = db.UpsertMembership(group, person, false, nil)

	var rows int64
	db.Conn.Model(&Membership{}).Count(&rows)

	if rows != 1 {
		t.Fatalf("membership rows = %d, want 1", rows)
	}

	membership := Membership{}
	db.Conn.First(&membership)

	if membership.Left {
		t.Error("rejoin did not clear the left flag")
	}

	if membership.LastMessageAt == nil {
		t.Error("last message timestamp was lost across upserts")
	}
}

func TestUpsertPersonPreservesProfile(t *testing.T) {
	db := openTestDb(t)

	person, err := db.UpsertPerson(42, false, "Ada", "ada")
	if err != nil {
		t.Fatal(err)
	}

	person.Bio = "building things"
	person.Privacy = false

	if err := db.SavePerson(person); err != nil {
		t.Fatal(err)
	}

	// A later sighting with a new display name must not clobber the profile
	updated, err := db.UpsertPerson(42, false, "Ada L.", "ada")
	if err != nil {
		t.Fatal(err)
	}

	if updated.FirstName != "Ada L." {
		t.Errorf("first name = %q, want %q", updated.FirstName, "Ada L.")
	}

	if updated.Bio != "building things" {
		t.Errorf("bio was clobbered: %q", updated.Bio)
	}

	if updated.Privacy {
		t.Error("privacy setting was clobbered")
	}
}

func TestPhotoEviction(t *testing.T) {
	db := openTestDb(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		err := db.CreatePhoto(&MeetupPhoto{
			NodeId:         1,
			TelegramFileId: string(rune('a' + i)),
			ImageData:      []byte{0xff},
			Created:        base.AddDate(0, 0, i),
		})

		if err != nil {
			t.Fatal(err)
		}
	}

	evicted, err := db.EvictOldestPhotos(5)
	if err != nil {
		t.Fatal(err)
	}

	if evicted != 2 {
		t.Fatalf("evicted = %d, want 2", evicted)
	}

	var remaining []MeetupPhoto
	db.Conn.Order("created ASC").Find(&remaining)

	if len(remaining) != 5 {
		t.Fatalf("remaining photos = %d, want 5", len(remaining))
	}

	// Oldest two are gone
	if remaining[0].TelegramFileId != "c" {
		t.Errorf("oldest survivor = %q, want %q", remaining[0].TelegramFileId, "c")
	}

	// Below the retention cap nothing goes
	evicted, err = db.EvictOldestPhotos(5)
	if err != nil {
		t.Fatal(err)
	}

	if evicted != 0 {
		t.Errorf("second sweep evicted %d, want 0", evicted)
	}
}

func TestIsMemberOfAnyNode(t *testing.T) {
	db := openTestDb(t)

	group, _ := db.UpsertGroup(-100123, "Testville Chat")
	person, _ := db.UpsertPerson(42, false, "Ada", "ada")
	_ = db.UpsertMembership(group, person, false, nil)

	// Group has no node yet
	isMember, err := db.IsMemberOfAnyNode(person)
	if err != nil {
		t.Fatal(err)
	}

	if isMember {
		t.Error("member of a nodeless group counted as node member")
	}

	node := Node{Name: "Testville", GroupId: &group.Id}
	if err := db.Conn.Create(&node).Error; err != nil {
		t.Fatal(err)
	}

	isMember, err = db.IsMemberOfAnyNode(person)
	if err != nil {
		t.Fatal(err)
	}

	if !isMember {
		t.Error("node membership not detected")
	}

	// Leaving revokes it
	_ = db.UpsertMembership(group, person, true, nil)

	isMember, _ = db.IsMemberOfAnyNode(person)

	if isMember {
		t.Error("left member still counted as node member")
	}
}
