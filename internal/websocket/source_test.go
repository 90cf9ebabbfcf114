package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

var alex = location.LiveLocation{Latitude: 52.5200, Longitude: 13.4050, Accuracy: 5}

type sourceEvents struct {
	mu    sync.Mutex
	fixes []location.LiveLocation
	errs  []error
}

func (e *sourceEvents) onFix(loc location.LiveLocation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixes = append(e.fixes, loc)
}

func (e *sourceEvents) onErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *sourceEvents) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fixes), len(e.errs)
}

func TestClientSource_PushReachesWatch(t *testing.T) {
	s := NewClientSource()
	events := &sourceEvents{}

	cancel, err := s.Watch(tracker.AcquireOptions{}, events.onFix, events.onErr)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, s.Push(alex))
	s.Fail(tracker.NewPositionError(tracker.PositionUnavailable, nil))

	fixes, errs := events.counts()
	assert.Equal(t, 1, fixes)
	assert.Equal(t, 1, errs)
}

func TestClientSource_WatchdogReportsTimeout(t *testing.T) {
	s := NewClientSource()
	events := &sourceEvents{}

	cancel, err := s.Watch(tracker.AcquireOptions{Timeout: 20 * time.Millisecond}, events.onFix, events.onErr)
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool {
		_, errs := events.counts()
		return errs >= 1
	}, time.Second, 5*time.Millisecond)

	events.mu.Lock()
	pe := tracker.Classify(events.errs[0])
	events.mu.Unlock()
	assert.Equal(t, tracker.Timeout, pe.Code)
}

func TestClientSource_FixesHoldOffWatchdog(t *testing.T) {
	s := NewClientSource()
	events := &sourceEvents{}

	cancel, err := s.Watch(tracker.AcquireOptions{Timeout: 150 * time.Millisecond}, events.onFix, events.onErr)
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 5; i++ {
		s.Push(alex)
		time.Sleep(30 * time.Millisecond)
	}

	fixes, errs := events.counts()
	assert.Equal(t, 5, fixes)
	assert.Zero(t, errs)
}

func TestClientSource_NoCallbacksAfterCancel(t *testing.T) {
	s := NewClientSource()
	events := &sourceEvents{}

	cancel, err := s.Watch(tracker.AcquireOptions{Timeout: 10 * time.Millisecond}, events.onFix, events.onErr)
	require.NoError(t, err)
	cancel()
	cancel()

	fixesBefore, errsBefore := events.counts()
	assert.ErrorIs(t, s.Push(alex), apperrors.ErrNotTracking)
	time.Sleep(40 * time.Millisecond)

	fixes, errs := events.counts()
	assert.Equal(t, fixesBefore, fixes)
	assert.Equal(t, errsBefore, errs)
}

func TestClientSource_CurrentWaitsForNextFix(t *testing.T) {
	s := NewClientSource()

	got := make(chan location.LiveLocation, 1)
	go func() {
		loc, err := s.Current(context.Background(), tracker.AcquireOptions{Timeout: time.Second})
		if err == nil {
			got <- loc
		}
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters) == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Push(alex))

	select {
	case loc := <-got:
		assert.Equal(t, alex, loc)
	case <-time.After(time.Second):
		t.Fatal("Current did not return the pushed fix")
	}
}

func TestClientSource_CurrentTimesOut(t *testing.T) {
	s := NewClientSource()

	_, err := s.Current(context.Background(), tracker.AcquireOptions{Timeout: 10 * time.Millisecond})

	var pe *tracker.PositionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, tracker.Timeout, pe.Code)
}

func TestClientSource_Close(t *testing.T) {
	s := NewClientSource()

	done := make(chan error, 1)
	go func() {
		_, err := s.Current(context.Background(), tracker.AcquireOptions{})
		done <- err
	}()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters) == 1
	}, time.Second, time.Millisecond)

	s.Close()

	assert.ErrorIs(t, <-done, apperrors.ErrSourceUnavailable)
	assert.False(t, s.Available())

	_, err := s.Watch(tracker.AcquireOptions{}, func(location.LiveLocation) {}, func(error) {})
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	assert.ErrorIs(t, s.Push(alex), apperrors.ErrSourceUnavailable)
}

func TestClientSource_UnrequestedFixIsRejected(t *testing.T) {
	s := NewClientSource()
	assert.ErrorIs(t, s.Push(alex), apperrors.ErrNotTracking)

	events := &sourceEvents{}
	cancel, err := s.Watch(tracker.AcquireOptions{}, events.onFix, events.onErr)
	require.NoError(t, err)
	require.NoError(t, s.Push(alex))
	cancel()

	assert.ErrorIs(t, s.Push(alex), apperrors.ErrNotTracking)
	fixes, _ := events.counts()
	assert.Equal(t, 1, fixes)
}
