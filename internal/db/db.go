package db

import (
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The database driver
	"github.com/rs/zerolog/log"
)

// DB is the global database connection.
var DB *sqlx.DB

// InitDB initializes the database connection.
func InitDB() {
	var err error
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	DB, err = sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err = DB.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	log.Info().Msg("Database connection established")
}
