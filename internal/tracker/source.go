package tracker

import (
	"context"
	"time"

	"github.com/askwhyharsh/liveradar/internal/location"
)

// AcquireOptions are handed to the position source.
type AcquireOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// PositionSource is the device geolocation capability.
type PositionSource interface {
	// Available reports whether positions can be acquired at all.
	Available() bool
	// Current returns a single position.
	Current(ctx context.Context, opts AcquireOptions) (location.LiveLocation, error)
	// Watch delivers continuous positions or failures until cancel is called.
	// cancel is idempotent; no callback runs after it returns.
	Watch(opts AcquireOptions, onFix func(location.LiveLocation), onErr func(error)) (cancel func(), err error)
}

// Writer persists the tracked user's position.
type Writer interface {
	Sync(loc location.LiveLocation)
	MarkInvisible()
}
