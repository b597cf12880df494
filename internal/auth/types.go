package auth

import "errors"

// Common errors returned by the authentication subsystem.
var (
	ErrDisabled         = errors.New("authentication disabled")
	ErrMissingToken     = errors.New("missing bearer token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrNoKeysConfigured = errors.New("no api keys configured")
)

// Mode selects how incoming requests are authenticated.
type Mode string

const (
	// ModeDisabled lets every request through. Intended for local development.
	ModeDisabled Mode = "disabled"
	// ModeAPIKey requires a bearer API key on every request.
	ModeAPIKey Mode = "api_key"
)

// Subject captures the authenticated caller passed to request handlers via
// context.
type Subject struct {
	// KeyFingerprint is a short hash prefix identifying the API key used.
	// The raw key is never stored or logged.
	KeyFingerprint string
}
