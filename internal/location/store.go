package location

import (
	"context"

	"github.com/askwhyharsh/liveradar/internal/geo"
)

// Store is the shared, multi-writer location store. Writes are
// last-writer-wins per user; reads tolerate eventual consistency.
type Store interface {
	// Upsert replaces the user's record. A record with Visible=false
	// retracts the user from discovery.
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, userID string) (*Record, error)
	Remove(ctx context.Context, userID string) error
	// QueryBox returns discoverable records inside box, at most limit of them
	// (limit <= 0 means no cap).
	QueryBox(ctx context.Context, box geo.Box, limit int) ([]Record, error)
}

// ChangeFeed delivers store mutations to interested watchers.
type ChangeFeed interface {
	// Watch calls fn for every change whose cell falls under one of prefixes
	// (all changes when prefixes is empty) until cancel is called. fn runs on
	// the feed's goroutine and must not block.
	Watch(prefixes []string, fn func(Change)) (cancel func())
}

// Sweeper removes index entries whose records have expired.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
