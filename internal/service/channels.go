// Package service owns the channel lifecycle: provisioning after an OAuth
// link, watch-list reconciliation against the product reverse index, and full
// teardown on revoke.
package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"watchlink/internal/catalog"
	"watchlink/internal/db"
	"watchlink/internal/metrics"
	"watchlink/internal/models"
	"watchlink/internal/notify"
	"watchlink/pkg/events"
)

// NotifyClient is the provider capability the service depends on.
type NotifyClient interface {
	FetchIdentity(ctx context.Context, token string) (*notify.ChannelIdentity, error)
	SendMessage(ctx context.Context, token, text string) bool
	Revoke(ctx context.Context, token string)
}

// EventPublisher emits integration events. Publish failures are non-fatal
// for every caller here: local state is the source of truth and the event
// stream is an asynchronous mirror.
type EventPublisher interface {
	Publish(task *asynq.Task) error
}

type ChannelService struct {
	notify    NotifyClient
	products  catalog.Lookuper
	publisher EventPublisher
	enqueuer  events.TaskEnqueuer
}

func NewChannelService(notifyClient NotifyClient, products catalog.Lookuper, publisher EventPublisher, enqueuer events.TaskEnqueuer) *ChannelService {
	return &ChannelService{
		notify:    notifyClient,
		products:  products,
		publisher: publisher,
		enqueuer:  enqueuer,
	}
}

// CreateChannel provisions a channel record for a freshly exchanged access
// token. If the token's identity cannot be fetched the token is revoked
// before failing: a channel must never exist with an unknown identity.
func (s *ChannelService) CreateChannel(ctx context.Context, ownerID, token string) (*models.Channel, error) {
	identity, err := s.notify.FetchIdentity(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("Channel identity lookup errored")
	}
	if identity == nil || identity.Target == "" || identity.TargetType == "" {
		s.notify.Revoke(ctx, token)
		return nil, ErrIdentityLookupFailed
	}

	channel := &models.Channel{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		RoomName: identity.Target,
		RoomType: identity.TargetType,
		Token:    token,
	}

	created, err := db.CreateChannel(channel)
	if err != nil {
		s.notify.Revoke(ctx, token)
		return nil, err
	}

	log.Info().Str("owner", ownerID).Str("channel", created.ID).Msg("Created new channel")
	return created, nil
}

// ListChannels returns the caller's channels with watch-list codes resolved
// to display names.
func (s *ChannelService) ListChannels(ctx context.Context, userID string) ([]models.ChannelView, error) {
	channels, err := db.GetChannelsByOwner(userID)
	if err != nil {
		return nil, err
	}

	var codes []string
	for _, ch := range channels {
		codes = append(codes, ch.WatchList...)
	}
	names, err := db.GetWatchedProductNames(codes)
	if err != nil {
		return nil, err
	}

	views := make([]models.ChannelView, 0, len(channels))
	for _, ch := range channels {
		views = append(views, toView(ch, names))
	}
	return views, nil
}

func (s *ChannelService) GetChannel(ctx context.Context, userID, channelID string) (*models.ChannelView, error) {
	channel, err := s.getOwnedChannel(userID, channelID)
	if err != nil {
		return nil, err
	}

	names, err := db.GetWatchedProductNames(channel.WatchList)
	if err != nil {
		return nil, err
	}

	view := toView(channel, names)
	return &view, nil
}

// SendTestMessage pushes a caller-supplied message to the channel. The
// boolean result mirrors the provider's best-effort delivery.
func (s *ChannelService) SendTestMessage(ctx context.Context, userID, channelID, text string) (bool, error) {
	channel, err := s.getOwnedChannel(userID, channelID)
	if err != nil {
		return false, err
	}
	return s.notify.SendMessage(ctx, channel.Token, text), nil
}

// UpdateChannel applies a partial update: flag toggles publish their own
// subscribe/unsubscribe events, a new watch list is reconciled against the
// reverse index. The channel row is persisted before any flag event goes
// out, so no consumer can observe a subscription that was never recorded.
func (s *ChannelService) UpdateChannel(ctx context.Context, userID, channelID string, update models.ChannelUpdate) error {
	channel, err := s.getOwnedChannel(userID, channelID)
	if err != nil {
		return err
	}

	var flagEvents []*asynq.Task

	if update.NewDiscount != nil {
		channel.NotifyNewDiscount = *update.NewDiscount
		task, err := flagEvent(*update.NewDiscount, channel.Token, events.KindNewDiscount)
		if err != nil {
			return err
		}
		flagEvents = append(flagEvents, task)
	}

	if update.NewBestPrice != nil {
		channel.NotifyNewBestPrice = *update.NewBestPrice
		task, err := flagEvent(*update.NewBestPrice, channel.Token, events.KindNewBestPrice)
		if err != nil {
			return err
		}
		flagEvents = append(flagEvents, task)
	}

	if update.WatchList != nil {
		accepted, err := s.reconcileWatchList(ctx, &channel, update.WatchList)
		if err != nil {
			return err
		}
		channel.WatchList = accepted
	}

	if err := db.UpdateChannel(&channel); err != nil {
		return err
	}

	for _, task := range flagEvents {
		s.publish(task)
	}

	s.enqueueSummaryMessage(&channel)
	return nil
}

// RevokeChannel tears a channel down: every watched code is reconciled away
// (reverse index reduced, orphans deleted, unsubscribes published), one
// remove-all event is published, the record is deleted and the provider
// token revoked best-effort.
func (s *ChannelService) RevokeChannel(ctx context.Context, userID, channelID string) error {
	channel, err := s.getOwnedChannel(userID, channelID)
	if err != nil {
		return err
	}

	if _, err := s.reconcileWatchList(ctx, &channel, nil); err != nil {
		return err
	}

	task, err := events.NewRemoveSubscriberEvent(channel.Token)
	if err != nil {
		return err
	}
	s.publish(task)

	if err := db.DeleteChannel(channel.ID); err != nil {
		return err
	}

	s.notify.Revoke(ctx, channel.Token)
	log.Info().Str("owner", userID).Str("channel", channel.ID).Msg("Revoked channel")
	return nil
}

// reconcileWatchList moves the channel's watch list to the desired set and
// returns the codes actually accepted. Codes in both sets are untouched.
// Store mutations for a code always complete before its event is published.
func (s *ChannelService) reconcileWatchList(ctx context.Context, channel *models.Channel, desired []string) (pq.StringArray, error) {
	current := make(map[string]bool, len(channel.WatchList))
	for _, code := range channel.WatchList {
		current[code] = true
	}

	want := make(map[string]bool, len(desired))
	ordered := make([]string, 0, len(desired))
	for _, code := range desired {
		if code == "" || want[code] {
			continue
		}
		want[code] = true
		ordered = append(ordered, code)
	}

	for _, code := range channel.WatchList {
		if want[code] {
			continue
		}
		if err := s.removeWatcher(code, channel.ID); err != nil {
			return nil, err
		}

		// The unsubscribe event goes out even when no reverse-index
		// record existed: replays of partial prior state must converge.
		task, err := events.NewRemoveSubscriptionEvent(channel.Token, events.KindInventoryCheck, code)
		if err != nil {
			return nil, err
		}
		s.publish(task)
		metrics.ReconcileOps.WithLabelValues(metrics.OpUnsubscribe).Inc()
	}

	accepted := make(pq.StringArray, 0, len(ordered))
	for _, code := range ordered {
		if current[code] {
			accepted = append(accepted, code)
			continue
		}

		ok, err := s.addWatcher(ctx, code, channel.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// A product that cannot be named is not watchable.
			log.Warn().Str("code", code).Str("channel", channel.ID).Msg("Skipping unresolvable product code")
			metrics.ReconcileOps.WithLabelValues(metrics.OpSkipped).Inc()
			continue
		}

		accepted = append(accepted, code)
		task, err := events.NewRegisterSubscriptionEvent(channel.Token, events.KindInventoryCheck, code)
		if err != nil {
			return nil, err
		}
		s.publish(task)
		metrics.ReconcileOps.WithLabelValues(metrics.OpSubscribe).Inc()
	}

	return accepted, nil
}

func (s *ChannelService) removeWatcher(code, channelID string) error {
	product, err := db.GetWatchedProduct(code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if !product.HasWatcher(channelID) {
		return nil
	}
	if remaining := product.RemoveWatcher(channelID); remaining == 0 {
		return db.DeleteWatchedProduct(code)
	}
	return db.UpdateWatchedProductWatchers(code, product.Watchers)
}

// addWatcher puts the channel into the code's watcher set, creating the
// record on first watch. Returns false when the code cannot be resolved to a
// display name; that failure is non-fatal and only skips this code.
func (s *ChannelService) addWatcher(ctx context.Context, code, channelID string) (bool, error) {
	product, err := db.GetWatchedProduct(code)
	if err == nil {
		product.AddWatcher(channelID)
		return true, db.UpdateWatchedProductWatchers(code, product.Watchers)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	name, err := s.products.Lookup(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("Catalog lookup errored")
		return false, nil
	}
	if name == "" {
		return false, nil
	}

	return true, db.CreateWatchedProduct(&models.WatchedProduct{
		Code:     code,
		Name:     name,
		Watchers: pq.StringArray{channelID},
	})
}

func (s *ChannelService) getOwnedChannel(userID, channelID string) (models.Channel, error) {
	channel, err := db.GetChannelByID(channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return channel, ErrChannelNotFound
	}
	if err != nil {
		return channel, err
	}
	if channel.OwnerID != userID {
		return channel, ErrChannelNotFound
	}
	return channel, nil
}

func (s *ChannelService) publish(task *asynq.Task) {
	if err := s.publisher.Publish(task); err != nil {
		log.Warn().Err(err).Str("type", task.Type()).Msg("Failed to publish integration event")
	}
}

func (s *ChannelService) enqueueSummaryMessage(channel *models.Channel) {
	var sb strings.Builder
	sb.WriteString("Watch settings updated\n")
	sb.WriteString("New discount alerts: " + mark(channel.NotifyNewDiscount) + "\n")
	sb.WriteString("New best price alerts: " + mark(channel.NotifyNewBestPrice) + "\n")
	sb.WriteString("Watched products:\n")
	for _, code := range channel.WatchList {
		sb.WriteString("#" + code + "\n")
	}

	task, err := events.NewChannelMessageTask(channel.ID, sb.String())
	if err != nil {
		log.Error().Err(err).Msg("Error creating message task")
		return
	}
	if _, err := s.enqueuer.Enqueue(task, asynq.Queue(events.DefaultQueue)); err != nil {
		log.Warn().Err(err).Str("channel", channel.ID).Msg("Failed to enqueue summary message")
	}
}

func flagEvent(enabled bool, token, kind string) (*asynq.Task, error) {
	if enabled {
		return events.NewRegisterSubscriptionEvent(token, kind, "")
	}
	return events.NewRemoveSubscriptionEvent(token, kind, "")
}

func mark(enabled bool) string {
	if enabled {
		return "✔"
	}
	return "✘"
}

func toView(channel models.Channel, names map[string]string) models.ChannelView {
	watchList := make(map[string]string, len(channel.WatchList))
	for _, code := range channel.WatchList {
		name, ok := names[code]
		if !ok {
			name = "unknown"
		}
		watchList[code] = name
	}

	return models.ChannelView{
		ID:        channel.ID,
		RoomName:  channel.RoomName,
		RoomType:  channel.RoomType,
		CreatedAt: channel.CreatedAt,
		Subscriptions: models.SubscriptionsView{
			NewDiscount:  channel.NotifyNewDiscount,
			NewBestPrice: channel.NotifyNewBestPrice,
			WatchList:    watchList,
		},
	}
}
