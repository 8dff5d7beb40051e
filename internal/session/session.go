// Package session maps opaque session tokens to user ids.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/zeebo/errs"
)

var (
	// Error is the class of store failures other than a missing session.
	Error = errs.Class("session")

	ErrNotFound = errors.New("session not found")
)

// Store is injected into the auth service; it never lives in package state.
type Store interface {
	// Get returns the user id of token, or ErrNotFound once it expired or was
	// deleted.
	Get(ctx context.Context, token string) (int, error)
	Set(ctx context.Context, token string, userID int, ttl time.Duration) error
	// Delete is a no-op for an unknown token.
	Delete(ctx context.Context, token string) error
}
