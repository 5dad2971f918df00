package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"watchlink/internal/catalog"
	"watchlink/internal/service"
	"watchlink/internal/state"
)

// Linker is the OAuth surface of the provider client used by the linking
// endpoints.
type Linker interface {
	BuildAuthorizationURL(redirectURL, user string) (string, error)
	DecodeState(token string) (state.State, error)
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// ProductFetcher proxies catalog metadata lookups.
type ProductFetcher interface {
	Fetch(ctx context.Context, code string) (*catalog.ProductInformation, error)
}

type Handlers struct {
	linker   Linker
	products ProductFetcher
	channels *service.ChannelService
}

func New(linker Linker, products ProductFetcher, channels *service.ChannelService) *Handlers {
	return &Handlers{
		linker:   linker,
		products: products,
		channels: channels,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

func (h *Handlers) serviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrChannelNotFound) {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}
	log.Error().Err(err).Msg("Request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
