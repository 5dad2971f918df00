package service

import "errors"

var (
	// ErrChannelNotFound covers both a missing channel and a channel owned
	// by another user, so existence is never leaked.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrIdentityLookupFailed means the exchanged token is unusable. The
	// token has already been revoked when this is returned.
	ErrIdentityLookupFailed = errors.New("channel identity lookup failed")
)
