package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"watchlink/internal/middleware"
	"watchlink/internal/models"
)

func (h *Handlers) GetChannels(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	views, err := h.channels.ListChannels(r.Context(), userID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handlers) GetChannel(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	channelID := mux.Vars(r)["id"]

	view, err := h.channels.GetChannel(r.Context(), userID, channelID)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) PatchChannel(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	channelID := mux.Vars(r)["id"]

	var update models.ChannelUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if update.NewDiscount == nil && update.NewBestPrice == nil && update.WatchList == nil {
		http.Error(w, "Nothing to update", http.StatusBadRequest)
		return
	}

	if err := h.channels.UpdateChannel(r.Context(), userID, channelID, update); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	channelID := mux.Vars(r)["id"]

	if err := h.channels.RevokeChannel(r.Context(), userID, channelID); err != nil {
		h.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) PostChannelMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	channelID := mux.Vars(r)["id"]

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sent, err := h.channels.SendTestMessage(r.Context(), userID, channelID, body.Message)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if !sent {
		http.Error(w, "Message delivery failed", http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
