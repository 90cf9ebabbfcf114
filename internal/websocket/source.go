package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

// ClientSource is the position source backing one websocket connection. The
// client pushes fixes and failures; a watchdog reports a timeout when no fix
// arrives within the acquisition timeout.
type ClientSource struct {
	mu      sync.Mutex
	closed  bool
	watch   *sourceWatch
	waiters map[chan fixResult]struct{}

	// serializes callbacks so cancel can wait out one in progress
	deliverMu sync.Mutex
}

type sourceWatch struct {
	onFix   func(location.LiveLocation)
	onErr   func(error)
	timeout time.Duration
	timer   *time.Timer
}

type fixResult struct {
	loc location.LiveLocation
	err error
}

func NewClientSource() *ClientSource {
	return &ClientSource{
		waiters: make(map[chan fixResult]struct{}),
	}
}

func (s *ClientSource) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Current waits for the next fix or failure the client reports.
func (s *ClientSource) Current(ctx context.Context, opts tracker.AcquireOptions) (location.LiveLocation, error) {
	ch := make(chan fixResult, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return location.LiveLocation{}, apperrors.ErrSourceUnavailable
	}
	s.waiters[ch] = struct{}{}
	s.mu.Unlock()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		return res.loc, res.err
	case <-timeout:
		s.dropWaiter(ch)
		return location.LiveLocation{}, tracker.NewPositionError(tracker.Timeout, nil)
	case <-ctx.Done():
		s.dropWaiter(ch)
		return location.LiveLocation{}, ctx.Err()
	}
}

// Watch replaces any previous watch.
func (s *ClientSource) Watch(opts tracker.AcquireOptions, onFix func(location.LiveLocation), onErr func(error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.ErrSourceUnavailable
	}
	s.stopWatchLocked()

	w := &sourceWatch{onFix: onFix, onErr: onErr, timeout: opts.Timeout}
	if w.timeout > 0 {
		w.timer = time.AfterFunc(w.timeout, func() { s.expire(w) })
	}
	s.watch = w

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if s.watch == w {
				s.stopWatchLocked()
			}
			s.mu.Unlock()

			s.deliverMu.Lock()
			s.deliverMu.Unlock()
		})
	}
	return cancel, nil
}

// Push hands a client-reported fix to the watch and any pending Current. A
// fix nobody is waiting for is dropped with ErrNotTracking.
func (s *ClientSource) Push(loc location.LiveLocation) error {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrSourceUnavailable
	}
	if s.watch == nil && len(s.waiters) == 0 {
		s.mu.Unlock()
		return apperrors.ErrNotTracking
	}
	waiters := s.takeWaitersLocked()
	w := s.watch
	if w != nil && w.timer != nil {
		w.timer.Reset(w.timeout)
	}
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- fixResult{loc: loc}
	}
	if w != nil {
		w.onFix(loc)
	}
	return nil
}

// Fail reports a client-side acquisition failure.
func (s *ClientSource) Fail(err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	waiters := s.takeWaitersLocked()
	w := s.watch
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- fixResult{err: err}
	}
	if w != nil {
		w.onErr(err)
	}
}

// Close makes the source unavailable and fails pending Current calls.
func (s *ClientSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopWatchLocked()
	waiters := s.takeWaitersLocked()
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- fixResult{err: apperrors.ErrSourceUnavailable}
	}
}

func (s *ClientSource) expire(w *sourceWatch) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.watch != w {
		s.mu.Unlock()
		return
	}
	// keep reporting for as long as the client stays silent
	w.timer.Reset(w.timeout)
	s.mu.Unlock()

	w.onErr(tracker.NewPositionError(tracker.Timeout, nil))
}

func (s *ClientSource) stopWatchLocked() {
	if s.watch == nil {
		return
	}
	if s.watch.timer != nil {
		s.watch.timer.Stop()
	}
	s.watch = nil
}

func (s *ClientSource) takeWaitersLocked() []chan fixResult {
	waiters := make([]chan fixResult, 0, len(s.waiters))
	for ch := range s.waiters {
		waiters = append(waiters, ch)
	}
	s.waiters = make(map[chan fixResult]struct{})
	return waiters
}

func (s *ClientSource) dropWaiter(ch chan fixResult) {
	s.mu.Lock()
	delete(s.waiters, ch)
	s.mu.Unlock()
}
