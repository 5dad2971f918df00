package models

import "time"

// SubscriptionsView renders a channel's subscriptions with watch-list codes
// mapped to their display names.
type SubscriptionsView struct {
	NewDiscount  bool              `json:"newDiscount"`
	NewBestPrice bool              `json:"newBestPrice"`
	WatchList    map[string]string `json:"watchList"`
}

// ChannelView is the API representation of a channel. The access token is
// never exposed.
type ChannelView struct {
	ID            string            `json:"id"`
	RoomName      string            `json:"roomName"`
	RoomType      string            `json:"roomType"`
	CreatedAt     time.Time         `json:"createdAt"`
	Subscriptions SubscriptionsView `json:"subscriptions"`
}

// ChannelUpdate is a partial channel update. Nil fields are left untouched.
type ChannelUpdate struct {
	NewDiscount  *bool    `json:"newDiscount"`
	NewBestPrice *bool    `json:"newBestPrice"`
	WatchList    []string `json:"watchList"`
}
