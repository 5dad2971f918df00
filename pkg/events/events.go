package events

import (
	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

// Task types double as the event-type attribute seen by consumers.
const (
	TypeRegisterSubscription = "subscription:register"
	TypeRemoveSubscription   = "subscription:remove"
	TypeRemoveSubscriber     = "subscriber:remove"
	TypeChannelMessage       = "channel:message"
)

// Subscription kinds understood by the subscription microservice.
const (
	KindInventoryCheck = "InventoryCheck"
	KindNewDiscount    = "NewDiscount"
	KindNewBestPrice   = "NewBestPrice"
)

// SubscriberTypeChannel tags events as originating from a linked channel.
const SubscriberTypeChannel = "channel"

// Queue names. Integration events are consumed by the external subscription
// service; the default queue is consumed by this service's own worker.
const (
	IntegrationQueue = "integration"
	DefaultQueue     = "default"
)

// SubscriptionEventPayload is the wire body for subscribe, unsubscribe and
// remove-all events. Code is present only for per-product subscriptions.
type SubscriptionEventPayload struct {
	SubscriberType   string `json:"subscriberType"`
	Subscriber       string `json:"subscriber"`
	SubscriptionType string `json:"subscriptionType,omitempty"`
	Code             string `json:"code,omitempty"`
}

func NewRegisterSubscriptionEvent(token, kind, code string) (*asynq.Task, error) {
	payload, err := json.Marshal(SubscriptionEventPayload{
		SubscriberType:   SubscriberTypeChannel,
		Subscriber:       token,
		SubscriptionType: kind,
		Code:             code,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRegisterSubscription, payload), nil
}

func NewRemoveSubscriptionEvent(token, kind, code string) (*asynq.Task, error) {
	payload, err := json.Marshal(SubscriptionEventPayload{
		SubscriberType:   SubscriberTypeChannel,
		Subscriber:       token,
		SubscriptionType: kind,
		Code:             code,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRemoveSubscription, payload), nil
}

// NewRemoveSubscriberEvent drops every subscription held by the token in one
// event, used at channel teardown.
func NewRemoveSubscriberEvent(token string) (*asynq.Task, error) {
	payload, err := json.Marshal(SubscriptionEventPayload{
		SubscriberType: SubscriberTypeChannel,
		Subscriber:     token,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRemoveSubscriber, payload), nil
}

// ChannelMessagePayload asks the worker to push a text message to a channel.
type ChannelMessagePayload struct {
	ChannelID string
	Text      string
}

func NewChannelMessageTask(channelID, text string) (*asynq.Task, error) {
	payload, err := json.Marshal(ChannelMessagePayload{ChannelID: channelID, Text: text})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeChannelMessage, payload), nil
}
