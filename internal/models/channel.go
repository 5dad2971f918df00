package models

import (
	"time"

	"github.com/lib/pq"
)

// Channel represents one linked notification destination. A channel is
// visible and mutable only by its owner.
type Channel struct {
	ID                 string         `db:"id"`
	OwnerID            string         `db:"owner_id"`
	RoomName           string         `db:"room_name"`
	RoomType           string         `db:"room_type"`
	Token              string         `db:"token"`
	NotifyNewDiscount  bool           `db:"notify_new_discount"`
	NotifyNewBestPrice bool           `db:"notify_new_best_price"`
	WatchList          pq.StringArray `db:"watch_list"`
	CreatedAt          time.Time      `db:"created_at"`
}
