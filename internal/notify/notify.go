// Package notify talks to the messaging-bot notification provider: it builds
// authorization URLs, exchanges authorization codes for channel access tokens
// and performs the token-scoped status, push and revoke calls.
package notify

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"watchlink/internal/state"
)

// StateCodec seals caller context into the OAuth state parameter. The
// encryption primitive behind it is swappable without touching the linker.
type StateCodec interface {
	Encode(redirectURL, user string) (string, error)
	Decode(token string) (state.State, error)
}

// Config is immutable provider configuration, loaded once at process start.
type Config struct {
	ClientID     string
	ClientSecret string
	// AuthBaseURL hosts the authorize and token endpoints.
	AuthBaseURL string
	// APIBaseURL hosts the token-scoped status, notify and revoke endpoints.
	APIBaseURL string
	// CallbackURL is this service's public callback endpoint. The token
	// exchange requires the exact URL used at authorization time.
	CallbackURL string
}

// ChannelIdentity is the provider's description of the destination a channel
// access token is bound to.
type ChannelIdentity struct {
	Target     string `json:"target"`
	TargetType string `json:"targetType"`
}

type Client struct {
	cfg        Config
	codec      StateCodec
	httpClient *http.Client
}

func NewClient(cfg Config, codec StateCodec) *Client {
	return &Client{
		cfg:   cfg,
		codec: codec,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BuildAuthorizationURL constructs the provider authorization URL with the
// caller context sealed into the state parameter.
func (c *Client) BuildAuthorizationURL(redirectURL, user string) (string, error) {
	st, err := c.codec.Encode(redirectURL, user)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("scope", "notify")
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.cfg.CallbackURL)
	q.Set("state", st)

	return c.cfg.AuthBaseURL + "/oauth/authorize?" + q.Encode(), nil
}

// DecodeState recovers the caller context from an OAuth callback's state
// parameter.
func (c *Client) DecodeState(token string) (state.State, error) {
	return c.codec.Decode(token)
}

// ExchangeCode trades an authorization code for a channel access token. An
// empty token with a nil error means the provider rejected the exchange; that
// is a normal outcome, not a fault.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.CallbackURL)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Bytes("body", body).Msg("Token exchange rejected")
		return "", nil
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	return payload.AccessToken, nil
}

// FetchIdentity queries the display identity bound to a channel access token.
// A nil identity with a nil error means the provider reports the token as
// unusable; the caller should revoke it.
func (c *Client) FetchIdentity(ctx context.Context, token string) (*ChannelIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("Channel identity lookup failed")
		return nil, nil
	}

	identity := &ChannelIdentity{}
	if err := json.NewDecoder(resp.Body).Decode(identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// SendMessage pushes a text message to the linked channel. Delivery failures
// are reported as false, never as an error.
func (c *Client) SendMessage(ctx context.Context, token, text string) bool {
	form := url.Values{}
	form.Set("message", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/api/notify", strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Message delivery failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("Message delivery rejected")
		return false
	}
	return true
}

// Revoke invalidates a channel access token at the provider. Failures are
// logged, not escalated: local cleanup proceeds regardless.
func (c *Client) Revoke(ctx context.Context, token string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/api/revoke", nil)
	if err != nil {
		log.Error().Err(err).Msg("Error building revoke request")
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Token revoke failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Warn().Int("status", resp.StatusCode).Bytes("body", body).Msg("Token revoke rejected")
	}
}
