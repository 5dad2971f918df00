package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"watchlink/internal/db"
	"watchlink/pkg/events"
)

// MessageSender pushes a text message into a linked chat room.
type MessageSender interface {
	SendMessage(ctx context.Context, token, text string) bool
}

type TaskHandler struct {
	sender MessageSender
}

func NewTaskHandler(sender MessageSender) *TaskHandler {
	return &TaskHandler{sender: sender}
}

// HandleChannelMessageTask delivers a queued message to the channel's chat
// room. A channel that no longer exists drops the task instead of retrying,
// since revocation races with in-flight messages.
func (h *TaskHandler) HandleChannelMessageTask(ctx context.Context, t *asynq.Task) error {
	var p events.ChannelMessagePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	channel, err := db.GetChannelByID(p.ChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn().Str("channel", p.ChannelID).Msg("Dropping message for revoked channel")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get channel %s: %w", p.ChannelID, err)
	}

	if !h.sender.SendMessage(ctx, channel.Token, p.Text) {
		return fmt.Errorf("message delivery to channel %s rejected", p.ChannelID)
	}

	log.Debug().Str("channel", p.ChannelID).Msg("Delivered channel message")
	return nil
}
