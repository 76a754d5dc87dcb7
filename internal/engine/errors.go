package engine

import (
	"errors"
)

// Every failure surfaced by the engine wraps exactly one of these sentinels,
// so callers can dispatch with errors.Is and the HTTP layer can attach a
// stable kind tag. Nothing is retried inside the engine; retry policy belongs
// to the caller.
var (
	ErrValidation     = errors.New("invalid request")
	ErrNotFound       = errors.New("launch state not found")
	ErrStateInvariant = errors.New("state invariant violated")
	ErrState          = errors.New("operation not legal in current lifecycle phase")
	ErrAuthorization  = errors.New("not authorized")
	ErrDecode         = errors.New("account data decode failed")
	ErrNetwork        = errors.New("network request failed")
	ErrExpiry         = errors.New("recency marker expired before confirmation")
)

// Kind returns the stable tag for an engine error, or "internal" for
// anything that escaped the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStateInvariant):
		return "state_invariant"
	case errors.Is(err, ErrState):
		return "lifecycle_state"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrExpiry):
		return "expiry"
	default:
		return "internal"
	}
}
