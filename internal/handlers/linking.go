package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"watchlink/internal/middleware"
)

// GetLinkURL returns the provider authorization URL that starts the linking
// flow for the authenticated user.
func (h *Handlers) GetLinkURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "redirect_uri is required", http.StatusBadRequest)
		return
	}

	authURL, err := h.linker.BuildAuthorizationURL(redirectURI, userID)
	if err != nil {
		log.Error().Err(err).Msg("Error building authorization URL")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// Callback consumes the provider's OAuth redirect: it authenticates the
// state token, exchanges the code, provisions the channel and sends the
// browser back to the caller's redirect target. It is the only anonymous
// endpoint in the linking flow.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	stateParam := r.URL.Query().Get("state")
	if code == "" || stateParam == "" {
		http.Error(w, "code and state are required", http.StatusBadRequest)
		return
	}

	decoded, err := h.linker.DecodeState(stateParam)
	if err != nil {
		// Equivalent to a forged or corrupted callback: abort with no
		// side effects.
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	token, err := h.linker.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Msg("Token exchange errored")
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}
	if token == "" {
		http.Error(w, "Token exchange failed", http.StatusBadRequest)
		return
	}

	if _, err := h.channels.CreateChannel(r.Context(), decoded.User, token); err != nil {
		// The provisioning path has already revoked the token; the
		// browser still goes back to the caller.
		log.Error().Err(err).Str("user", decoded.User).Msg("Channel provisioning failed")
	}

	http.Redirect(w, r, decoded.RedirectURL, http.StatusFound)
}
