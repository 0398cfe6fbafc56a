package ledger

import (
	"context"
	"time"
)

// Store is the persistent, authoritative home of blocks. Implementations
// live in pkg/store (SQLite, Postgres, in-memory).
type Store interface {
	// FindLatest returns the most recent block of the stream in append
	// order, or (nil, nil) when the stream has no blocks yet.
	FindLatest(ctx context.Context, streamID string) (*Block, error)

	// FindDuplicate returns a block with the same identifying tuple whose
	// timestamp is at or after since, or (nil, nil) when none exists.
	FindDuplicate(ctx context.Context, streamID string, event EventName, role ActorRole, actorID string, since time.Time) (*Block, error)

	// Insert persists the block and assigns its ID and Seq. When the
	// stream's current head hash does not equal expectedPrevHash (empty
	// string meaning "no blocks yet"), the insert fails with
	// ErrHeadConflict and nothing is written. This precondition keeps
	// concurrent writers from forking the chain even across processes.
	Insert(ctx context.Context, b *Block, expectedPrevHash string) (*Block, error)

	// FindAll returns every block of the stream ordered by append order.
	FindAll(ctx context.Context, streamID string, ascending bool) ([]*Block, error)
}
