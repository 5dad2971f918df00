package main

import (
	"encoding/base64"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"watchlink/internal/catalog"
	"watchlink/internal/db"
	"watchlink/internal/handlers"
	"watchlink/internal/metrics"
	"watchlink/internal/middleware"
	"watchlink/internal/notify"
	"watchlink/internal/service"
	"watchlink/internal/state"
	"watchlink/pkg/events"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment")
	}
	configureLogging()

	log.Info().Str("commit", CommitSHA).Msg("Starting watchlink server")

	db.InitDB()

	redisAddr := envOr("REDIS_ADDR", "127.0.0.1:6379")
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer asynqClient.Close()

	codec := newStateCodec()
	notifyClient := notify.NewClient(notify.Config{
		ClientID:     mustEnv("NOTIFY_CLIENT_ID"),
		ClientSecret: mustEnv("NOTIFY_CLIENT_SECRET"),
		AuthBaseURL:  envOr("NOTIFY_AUTH_URL", "https://notify-bot.line.me"),
		APIBaseURL:   envOr("NOTIFY_API_URL", "https://notify-api.line.me"),
		CallbackURL:  mustEnv("BASE_URL") + "/notify/callback",
	}, codec)

	catalogClient := catalog.NewClient(envOr("CATALOG_BASE_URL", "https://www.costco.com.tw/rest/v2/taiwan"))
	products := catalog.NewCache(catalogClient, 10*1024*1024, 15*time.Minute)

	publisher := events.NewPublisher(asynqClient)
	channels := service.NewChannelService(notifyClient, products, publisher, asynqClient)
	h := handlers.New(notifyClient, catalogClient, channels)

	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/notify/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/api/products/search", h.SearchProduct).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	limiter := middleware.NewRateLimiterMiddleware(rate.Limit(5), 10)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware, limiter.Middleware)
	api.HandleFunc("/notify/link-url", h.GetLinkURL).Methods(http.MethodGet)
	api.HandleFunc("/channels", h.GetChannels).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}", h.GetChannel).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}", h.PatchChannel).Methods(http.MethodPatch)
	api.HandleFunc("/channels/{id}", h.DeleteChannel).Methods(http.MethodDelete)
	api.HandleFunc("/channels/{id}/message", h.PostChannelMessage).Methods(http.MethodPost)

	port := envOr("PORT", "8080")
	log.Info().Str("port", port).Msg("Listening")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func newStateCodec() *state.Codec {
	key, err := base64.StdEncoding.DecodeString(mustEnv("STATE_KEY"))
	if err != nil {
		log.Fatal().Err(err).Msg("STATE_KEY is not valid base64")
	}
	codec, err := state.NewCodec(key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build state codec")
	}
	return codec
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

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatal().Str("key", key).Msg("Required environment variable is not set")
	}
	return v
}
