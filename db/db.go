package db

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	Conn *gorm.DB
	Size float32 // Db size in megabytes
}

func (db *Database) Open(dbFolder string) bool {
	// Current working directory
	wd, _ := os.Getwd()

	// Verify the path exists
	relDbFolder := filepath.Join(wd, dbFolder)

	// Create folders
	if _, err := os.Stat(relDbFolder); os.IsNotExist(err) {
		log.Info().Msgf("Database folder [%s] does not exist: creating", relDbFolder)
		err = os.Mkdir(relDbFolder, os.ModePerm)

		if err != nil {
			log.Fatal().Err(err).Msg("Error creating database folder")
		}
	}

	// Database path
	dbName := "hackabot.db"
	relDbPath := filepath.Join(relDbFolder, dbName)

	// Verify the database file exists
	if _, err := os.Stat(relDbPath); os.IsNotExist(err) {
		log.Info().Msg("Database file does not exist: creating")

		// Create SQLite file
		file, err := os.Create(relDbPath)

		if err != nil {
			log.Fatal().Err(err).Msg("Error creating database file")
		}

		log.Info().Msg("Database file created")
		file.Close()
	}

	// Open DB connection
	log.Debug().Msgf("Opening sqlite3 database at %s", relDbPath)

	gormZerolog := logger.New(
		&log.Logger, // IO.writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,       // Disable color
		},
	)

	return db.OpenPath(relDbPath, gormZerolog)
}

// OpenPath opens a database at an explicit path or DSN. Tests use this with
// an in-memory sqlite DSN.
func (db *Database) OpenPath(path string, gormLogger logger.Interface) bool {
	var err error
	db.Conn, err = gorm.Open(sqlite.Open(path), &gorm.Config{
		CreateBatchSize: 100,
		Logger:          gormLogger,
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
		return false
	}

	// Run auto-migration: creates tables that don't exist and adds missing cols
	err = db.Conn.AutoMigrate(
		&Group{}, &Person{}, &Membership{}, &Node{}, &Event{},
		&Poll{}, &PollAnswer{}, &ActivityDay{}, &Message{}, &MeetupPhoto{},
	)

	if err != nil {
		log.Fatal().Err(err).Msg("Running auto-migration failed")
	}

	log.Info().Msg("Database ready")

	return true
}

func (db *Database) Close() {
	sqlDb, err := db.Conn.DB()

	if err != nil {
		log.Error().Err(err).Msg("Error getting sql.DB handle")
		return
	}

	if err := sqlDb.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}
}

// SetSize refreshes the database's size-on-disk in megabytes, for the
// admin panel.
func (db *Database) SetSize(dbFolder string) {
	wd, _ := os.Getwd()
	fileInfo, err := os.Stat(filepath.Join(wd, dbFolder, "hackabot.db"))

	if err != nil {
		log.Error().Err(err).Msg("Getting database file-size failed")
		return
	}

	db.Size = float32(fileInfo.Size()) / 1024 / 1024
}
