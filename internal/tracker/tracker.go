package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/metrics"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// Config tunes acquisition filtering and cadence.
type Config struct {
	Tier               visibility.AccessTier
	MinMovement        float64 // meters
	CadenceHigh        time.Duration
	CadenceBalanced    time.Duration
	CadenceLow         time.Duration
	AcquisitionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tier:               visibility.TierStandard,
		MinMovement:        5,
		CadenceHigh:        10 * time.Second,
		CadenceBalanced:    30 * time.Second,
		CadenceLow:         60 * time.Second,
		AcquisitionTimeout: 30 * time.Second,
	}
}

// Listener receives every state change in the order it happened. accepted is
// true when the change is a newly accepted position. Listeners run on the
// goroutine that produced the change and must not call back into the Tracker.
type Listener func(state State, accepted bool)

// Tracker owns the lifecycle of continuous position acquisition for one user.
type Tracker struct {
	source  PositionSource
	writer  Writer
	cfg     Config
	metrics *metrics.Collector
	logger  logger.Logger
	now     func() time.Time

	mu          sync.Mutex
	emitMu      sync.Mutex
	state       State
	background  bool
	gen         uint64
	fresh       bool // no fix accepted since the last Start
	cancelWatch func()
	stopTicker  chan struct{}
	listener    Listener
}

func New(source PositionSource, writer Writer, cfg Config, m *metrics.Collector, log logger.Logger) *Tracker {
	def := DefaultConfig()
	if cfg.MinMovement <= 0 {
		cfg.MinMovement = def.MinMovement
	}
	if cfg.CadenceHigh <= 0 {
		cfg.CadenceHigh = def.CadenceHigh
	}
	if cfg.CadenceBalanced <= 0 {
		cfg.CadenceBalanced = def.CadenceBalanced
	}
	if cfg.CadenceLow <= 0 {
		cfg.CadenceLow = def.CadenceLow
	}
	if cfg.AcquisitionTimeout <= 0 {
		cfg.AcquisitionTimeout = def.AcquisitionTimeout
	}
	if cfg.Tier == "" {
		cfg.Tier = visibility.TierStandard
	}

	t := &Tracker{
		source:  source,
		writer:  writer,
		cfg:     cfg,
		metrics: m,
		logger:  log,
		now:     time.Now,
	}
	t.state = State{
		Tier:  cfg.Tier,
		Flags: visibility.Flags{GlobalReach: cfg.Tier == visibility.TierPrivileged},
	}
	t.state.Mode = t.modeLocked()
	return t
}

// WithClock replaces the tracker's time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// OnChange installs the listener. Call it before Start.
func (t *Tracker) OnChange(fn Listener) {
	t.mu.Lock()
	t.listener = fn
	t.mu.Unlock()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Start begins continuous acquisition. It does nothing if already tracking
// and returns ErrSourceUnavailable when the source cannot deliver positions.
func (t *Tracker) Start() error {
	t.mu.Lock()
	if t.state.Tracking {
		t.mu.Unlock()
		return nil
	}
	if !t.source.Available() {
		t.mu.Unlock()
		return apperrors.ErrSourceUnavailable
	}

	t.gen++
	gen := t.gen
	t.fresh = true
	t.state.Tracking = true
	t.state.Error = nil
	t.state.Mode = t.modeLocked()
	t.armTickerLocked()
	t.metrics.TrackerStarted()
	t.logger.Info("Tracking started", "mode", t.state.Mode)
	t.releaseAndEmit(false)

	opts := AcquireOptions{HighAccuracy: true, Timeout: t.cfg.AcquisitionTimeout}
	cancel, err := t.source.Watch(opts,
		func(loc location.LiveLocation) { t.handleFix(gen, loc) },
		func(err error) { t.handleError(gen, err) },
	)

	t.mu.Lock()
	if gen != t.gen {
		// stopped while the watch was being set up
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}
	if err != nil {
		pe := Classify(err)
		t.gen++
		t.state.Tracking = false
		t.state.Error = pe
		t.disarmTickerLocked()
		t.metrics.TrackerStopped()
		t.metrics.AcquisitionError(string(pe.Code))
		t.releaseAndEmit(false)
		return pe
	}
	t.cancelWatch = cancel
	t.mu.Unlock()
	return nil
}

// Stop cancels acquisition and the sync timer before returning.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.state.Tracking {
		t.mu.Unlock()
		return
	}

	t.gen++
	t.state.Tracking = false
	cancel := t.cancelWatch
	t.cancelWatch = nil
	t.disarmTickerLocked()
	t.metrics.TrackerStopped()
	t.logger.Info("Tracking stopped", "accepted", t.state.Accepted, "suppressed", t.state.Suppressed)
	t.releaseAndEmit(false)

	if cancel != nil {
		cancel()
	}
}

// SetInvisible toggles invisibility for privileged users. Turning it on
// writes the retraction marker; turning it off republishes the current
// position. In-memory tracking is unaffected either way.
func (t *Tracker) SetInvisible(enabled bool) error {
	t.mu.Lock()
	if t.state.Tier != visibility.TierPrivileged {
		t.mu.Unlock()
		return apperrors.ErrNotPrivileged
	}
	if t.state.Flags.Invisible == enabled {
		t.mu.Unlock()
		return nil
	}

	t.state.Flags.Invisible = enabled
	if enabled {
		t.writer.MarkInvisible()
	} else if t.state.Tracking && t.state.Location != nil {
		t.writer.Sync(*t.state.Location)
	}
	t.logger.Info("Invisibility changed", "invisible", enabled)
	t.releaseAndEmit(false)
	return nil
}

// SetBackground switches to the low cadence while the client is backgrounded.
func (t *Tracker) SetBackground(background bool) {
	t.mu.Lock()
	if t.background == background {
		t.mu.Unlock()
		return
	}

	t.background = background
	mode := t.modeLocked()
	if mode != t.state.Mode {
		t.state.Mode = mode
		if t.state.Tracking {
			t.disarmTickerLocked()
			t.armTickerLocked()
		}
	}
	t.releaseAndEmit(false)
}

// Locate requests a one-shot position and feeds it through the same filter
// as continuous fixes.
func (t *Tracker) Locate(ctx context.Context) (location.LiveLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.AcquisitionTimeout)
	defer cancel()

	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()

	loc, err := t.source.Current(ctx, AcquireOptions{HighAccuracy: true, Timeout: t.cfg.AcquisitionTimeout})
	if err != nil {
		pe := Classify(err)
		t.handleError(gen, pe)
		return location.LiveLocation{}, pe
	}

	t.handleFix(gen, loc)
	return loc, nil
}

func (t *Tracker) handleFix(gen uint64, loc location.LiveLocation) {
	t.mu.Lock()
	if gen != t.gen || !t.state.Tracking {
		t.mu.Unlock()
		return
	}

	now := t.now()
	if loc.Timestamp.IsZero() {
		loc.Timestamp = now
	}

	if !t.shouldAcceptLocked(loc, now) {
		t.state.Suppressed++
		t.metrics.Fix(false)
		t.mu.Unlock()
		return
	}

	t.fresh = false
	t.state.Location = &loc
	t.state.LastUpdate = now
	t.state.Error = nil
	t.state.Accepted++
	if !t.state.Flags.Invisible {
		t.writer.Sync(loc)
	}
	t.metrics.Fix(true)
	t.releaseAndEmit(true)
}

func (t *Tracker) handleError(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.gen || !t.state.Tracking {
		t.mu.Unlock()
		return
	}

	pe := Classify(err)
	t.state.Error = pe
	t.metrics.AcquisitionError(string(pe.Code))
	t.logger.Warn("Position acquisition failed", "code", pe.Code, "error", err)
	t.releaseAndEmit(false)
}

// shouldAcceptLocked applies the movement and staleness filter. The first
// fix after every Start is always accepted, even when it repeats the
// position kept from an earlier run.
func (t *Tracker) shouldAcceptLocked(loc location.LiveLocation, now time.Time) bool {
	prev := t.state.Location
	if prev == nil || t.fresh {
		return true
	}
	if prev.DistanceTo(loc) > t.cfg.MinMovement {
		return true
	}
	return now.Sub(t.state.LastUpdate) >= t.cadence(t.state.Mode)
}

// tick re-syncs the last accepted position so its expiry keeps moving.
func (t *Tracker) tick(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || !t.state.Tracking || t.state.Flags.Invisible || t.state.Location == nil {
		return
	}
	t.writer.Sync(*t.state.Location)
}

func (t *Tracker) armTickerLocked() {
	stop := make(chan struct{})
	t.stopTicker = stop
	go t.runTicker(t.gen, t.cadence(t.state.Mode), stop)
}

func (t *Tracker) disarmTickerLocked() {
	if t.stopTicker != nil {
		close(t.stopTicker)
		t.stopTicker = nil
	}
}

func (t *Tracker) runTicker(gen uint64, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.tick(gen)
		case <-stop:
			return
		}
	}
}

func (t *Tracker) modeLocked() Mode {
	switch {
	case t.background:
		return ModeLow
	case t.cfg.Tier == visibility.TierPremium, t.cfg.Tier == visibility.TierPrivileged:
		return ModeHigh
	default:
		return ModeBalanced
	}
}

func (t *Tracker) cadence(mode Mode) time.Duration {
	switch mode {
	case ModeHigh:
		return t.cfg.CadenceHigh
	case ModeLow:
		return t.cfg.CadenceLow
	default:
		return t.cfg.CadenceBalanced
	}
}

// releaseAndEmit must be called with mu held. It hands the snapshot to the
// listener after releasing mu, taking emitMu first so listeners observe
// changes in the order they were applied.
func (t *Tracker) releaseAndEmit(accepted bool) {
	snapshot := t.state.clone()
	fn := t.listener
	t.emitMu.Lock()
	t.mu.Unlock()

	if fn != nil {
		fn(snapshot, accepted)
	}
	t.emitMu.Unlock()
}
