package session

import (
	"context"
	"errors"

	"github.com/jakechorley/incident-desk/pkg/core/model"
)

// ErrNotFound is returned when a token is unknown or has expired
var ErrNotFound = errors.New("session not found")

// Store maps opaque bearer tokens to the principal that logged in
type Store interface {
	// Create stores principal under a new token and returns the token
	Create(ctx context.Context, principal model.Principal) (string, error)
	Get(ctx context.Context, token string) (model.Principal, error)
	Delete(ctx context.Context, token string) error
}
