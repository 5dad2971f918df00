package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidState marks a state token that cannot be authenticated or is
// missing required fields after decoding. Callers must treat it as a forged
// or corrupted OAuth callback and abort the flow.
var ErrInvalidState = errors.New("invalid state token")

// State is the caller context carried through the OAuth redirect. It is never
// persisted; it exists only inside the sealed token.
type State struct {
	RedirectURL string    `json:"redirectUrl"`
	User        string    `json:"user"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// Codec seals and opens state tokens with AES-GCM under a fixed process-wide
// key. No expiry is enforced here; IssuedAt is carried so a caller can apply
// its own window.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec from raw key material (16, 24 or 32 bytes).
func NewCodec(key []byte) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encode seals the redirect target and user identity into an opaque token.
func (c *Codec) Encode(redirectURL, user string) (string, error) {
	if redirectURL == "" || user == "" {
		return "", errors.New("redirect url and user are required")
	}

	plaintext, err := json.Marshal(State{
		RedirectURL: redirectURL,
		User:        user,
		IssuedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return c.seal(plaintext)
}

func (c *Codec) seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token produced by Encode. Any failure to decode,
// authenticate, or populate the required fields yields ErrInvalidState.
func (c *Codec) Decode(token string) (State, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return State{}, ErrInvalidState
	}
	if len(data) < c.aead.NonceSize() {
		return State{}, ErrInvalidState
	}

	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return State{}, ErrInvalidState
	}

	var s State
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return State{}, ErrInvalidState
	}
	if s.RedirectURL == "" || s.User == "" {
		return State{}, ErrInvalidState
	}
	return s, nil
}
