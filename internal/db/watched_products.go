package db

import (
	"watchlink/internal/models"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

func GetWatchedProduct(code string) (models.WatchedProduct, error) {
	product := models.WatchedProduct{}
	err := DB.Get(&product, "SELECT * FROM watched_products WHERE code = $1", code)
	return product, err
}

func CreateWatchedProduct(p *models.WatchedProduct) error {
	query := `
		INSERT INTO watched_products (code, name, watchers)
		VALUES ($1, $2, $3)
	`
	_, err := DB.Exec(query, p.Code, p.Name, p.Watchers)
	if err != nil {
		log.Error().Err(err).Str("code", p.Code).Msg("Error creating watched product")
		return err
	}
	return nil
}

func UpdateWatchedProductWatchers(code string, watchers pq.StringArray) error {
	_, err := DB.Exec("UPDATE watched_products SET watchers = $2 WHERE code = $1", code, watchers)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Error updating watched product")
		return err
	}
	return nil
}

func DeleteWatchedProduct(code string) error {
	_, err := DB.Exec("DELETE FROM watched_products WHERE code = $1", code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Error deleting watched product")
		return err
	}
	return nil
}

// GetWatchedProductNames resolves display names for a set of codes in one
// query. Codes without a record are absent from the result map.
func GetWatchedProductNames(codes []string) (map[string]string, error) {
	names := make(map[string]string, len(codes))
	if len(codes) == 0 {
		return names, nil
	}

	rows, err := DB.Queryx("SELECT code, name FROM watched_products WHERE code = ANY($1)", pq.Array(codes))
	if err != nil {
		log.Error().Err(err).Msg("Error resolving watched product names")
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, err
		}
		names[code] = name
	}
	return names, rows.Err()
}
