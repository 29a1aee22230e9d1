// Package identity persists the username -> {public key, status} mapping
// that admission and authentication decisions are made against.
package identity

import (
	"context"

	"github.com/nymstr/nymstr-groupd/internal/groupd/models"
)

// Repository is the durable identity store.
//
// InsertPending returns common.ErrConflict when the username is taken.
// Lookup returns common.ErrNotFound for unknown usernames.
// MarkApproved returns common.ErrNotFound or common.ErrAlreadyApproved
// when the pending -> approved transition cannot be made.
type Repository interface {
	InsertPending(ctx context.Context, username, publicKey string) error
	Lookup(ctx context.Context, username string) (*models.User, error)
	MarkApproved(ctx context.Context, username string) error
}
