package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// SearchProduct proxies a catalog metadata lookup so the dashboard can
// preview a product before watching it.
func (h *Handlers) SearchProduct(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	info, err := h.products.Fetch(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Catalog fetch errored")
		http.Error(w, "Catalog unavailable", http.StatusBadGateway)
		return
	}
	if info == nil {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, info)
}
