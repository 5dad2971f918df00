package db

import (
	"watchlink/internal/models"

	"github.com/rs/zerolog/log"
)

func CreateChannel(ch *models.Channel) (*models.Channel, error) {
	query := `
		INSERT INTO channels (id, owner_id, room_name, room_type, token, notify_new_discount, notify_new_best_price, watch_list)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, owner_id, room_name, room_type, token, notify_new_discount, notify_new_best_price, watch_list, created_at
	`
	created := &models.Channel{}
	err := DB.Get(created, query,
		ch.ID, ch.OwnerID, ch.RoomName, ch.RoomType, ch.Token,
		ch.NotifyNewDiscount, ch.NotifyNewBestPrice, ch.WatchList)
	if err != nil {
		log.Error().Err(err).Str("owner", ch.OwnerID).Msg("Error creating channel")
		return nil, err
	}
	return created, nil
}

func GetChannelByID(id string) (models.Channel, error) {
	channel := models.Channel{}
	err := DB.Get(&channel, "SELECT * FROM channels WHERE id = $1", id)
	return channel, err
}

func GetChannelsByOwner(ownerID string) ([]models.Channel, error) {
	query := `
		SELECT id, owner_id, room_name, room_type, token, notify_new_discount, notify_new_best_price, watch_list, created_at
		FROM channels
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	var channels []models.Channel
	err := DB.Select(&channels, query, ownerID)
	if err != nil {
		log.Error().Err(err).Str("owner", ownerID).Msg("Error getting channels")
		return nil, err
	}
	return channels, nil
}

func UpdateChannel(ch *models.Channel) error {
	query := `
		UPDATE channels
		SET notify_new_discount = $2, notify_new_best_price = $3, watch_list = $4
		WHERE id = $1
	`
	_, err := DB.Exec(query, ch.ID, ch.NotifyNewDiscount, ch.NotifyNewBestPrice, ch.WatchList)
	if err != nil {
		log.Error().Err(err).Str("channel", ch.ID).Msg("Error updating channel")
		return err
	}
	return nil
}

func DeleteChannel(id string) error {
	_, err := DB.Exec("DELETE FROM channels WHERE id = $1", id)
	if err != nil {
		log.Error().Err(err).Str("channel", id).Msg("Error deleting channel")
		return err
	}
	return nil
}
