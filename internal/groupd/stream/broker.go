// Package stream adapts the group message stream: append-only ciphertext
// entries with broker-assigned, lexicographically ordered IDs. The broker is
// the single source of truth for message ordering; nothing here reorders or
// filters entries.
package stream

import (
	"context"

	"github.com/nymstr/nymstr-groupd/internal/groupd/models"
)

// Broker is the append + range-read surface of the message stream.
type Broker interface {
	// Append durably adds a ciphertext entry and returns its entry ID.
	Append(ctx context.Context, ciphertext string) (string, error)

	// ReadAfter returns all entries strictly after lastSeenID, ascending.
	// An empty lastSeenID reads from the beginning (or the broker's
	// retention horizon).
	ReadAfter(ctx context.Context, lastSeenID string) ([]models.StreamEntry, error)
}
