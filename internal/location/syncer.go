package location

import (
	"context"
	"sync"
	"time"

	"github.com/askwhyharsh/liveradar/internal/metrics"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

const (
	writePosition = "position"
	writeHidden   = "hidden"
)

// SyncerConfig controls how a Syncer writes.
type SyncerConfig struct {
	TTL          time.Duration
	WriteTimeout time.Duration
}

// Syncer publishes one user's position to the store without ever blocking
// the caller. It owns a single writer goroutine and a one-slot mailbox: a
// newer write replaces an unwritten older one, so a retraction can never be
// overtaken by a stale position.
type Syncer struct {
	store   Store
	userID  string
	cfg     SyncerConfig
	metrics *metrics.Collector
	logger  logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending *Record
	closed  bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewSyncer(store Store, userID string, cfg SyncerConfig, m *metrics.Collector, log logger.Logger) *Syncer {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	s := &Syncer{
		store:   store,
		userID:  userID,
		cfg:     cfg,
		metrics: m,
		logger:  log.With("user_id", userID),
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Sync queues a visible write of loc.
func (s *Syncer) Sync(loc LiveLocation) {
	rec := NewRecord(s.userID, loc, s.now(), s.cfg.TTL)
	s.enqueue(rec)
}

// MarkInvisible queues the not-visible, not-active marker that retracts any
// previously published position.
func (s *Syncer) MarkInvisible() {
	s.enqueue(HiddenRecord(s.userID, s.now(), s.cfg.TTL))
}

// Close writes whatever is still queued and stops the writer.
func (s *Syncer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
	})
	<-s.done
}

func (s *Syncer) enqueue(rec Record) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = &rec
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Syncer) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.quit:
			s.drain()
			return
		}
	}
}

func (s *Syncer) drain() {
	for {
		s.mu.Lock()
		rec := s.pending
		s.pending = nil
		s.mu.Unlock()

		if rec == nil {
			return
		}
		s.write(*rec)
	}
}

func (s *Syncer) write(rec Record) {
	kind := writePosition
	if !rec.Visible {
		kind = writeHidden
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	err := s.store.Upsert(ctx, rec)
	s.metrics.SyncWrite(kind, err)
	if err != nil {
		// the next sync cycle rewrites the position
		s.logger.Error("Failed to sync location", "kind", kind, "error", err)
	}
}
