package main

import (
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"watchlink/internal/db"
	"watchlink/internal/notify"
	"watchlink/internal/worker"
	"watchlink/pkg/events"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment")
	}
	configureLogging()

	log.Info().Str("commit", CommitSHA).Msg("Starting watchlink worker")

	db.InitDB()

	notifyClient := notify.NewClient(notify.Config{
		ClientID:     os.Getenv("NOTIFY_CLIENT_ID"),
		ClientSecret: os.Getenv("NOTIFY_CLIENT_SECRET"),
		AuthBaseURL:  envOr("NOTIFY_AUTH_URL", "https://notify-bot.line.me"),
		APIBaseURL:   envOr("NOTIFY_API_URL", "https://notify-api.line.me"),
	}, nil)

	handler := worker.NewTaskHandler(notifyClient)

	redisAddr := envOr("REDIS_ADDR", "127.0.0.1:6379")
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				events.DefaultQueue: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(events.TypeChannelMessage, handler.HandleChannelMessageTask)

	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("Worker stopped")
	}
}

func configureLogging() {
	level, err := zerolog.ParseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
