package middleware

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	initdata "github.com/telegram-mini-apps/init-data-golang"
)

type contextKey string

// UserContextKey is the key for the authenticated user identity in the context.
const UserContextKey = contextKey("user")

var telegramBotToken string

// SetTestToken overrides the bot token used for validation. Test use only.
func SetTestToken(token string) { telegramBotToken = token }

func botToken() string {
	if telegramBotToken != "" {
		return telegramBotToken
	}
	return os.Getenv("TELEGRAM_BOT_TOKEN")
}

// UserID extracts the authenticated user identity from a request context.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserContextKey).(string)
	return id, ok
}

// AuthMiddleware validates the Telegram Mini App initData and stores the
// user identity string in the request context. Channel ownership is keyed on
// that identity.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "tma" {
			http.Error(w, "Authorization header format must be 'tma <initData>'", http.StatusUnauthorized)
			return
		}

		token := botToken()
		if token == "" {
			log.Error().Msg("TELEGRAM_BOT_TOKEN is not set")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		raw := parts[1]
		if err := initdata.Validate(raw, token, 0); err != nil {
			log.Warn().Err(err).Msg("Invalid init data")
			http.Error(w, "Invalid init data", http.StatusUnauthorized)
			return
		}

		data, err := initdata.Parse(raw)
		if err != nil {
			log.Warn().Err(err).Msg("Error parsing init data")
			http.Error(w, "Error parsing init data", http.StatusBadRequest)
			return
		}

		userID := strconv.FormatInt(data.User.ID, 10)
		ctx := context.WithValue(r.Context(), UserContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
