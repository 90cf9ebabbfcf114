package radar

import (
	"context"
	"sync"

	"github.com/askwhyharsh/liveradar/internal/discovery"
	"github.com/askwhyharsh/liveradar/internal/geo"
	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/tracker"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// Finder runs one discovery query. Failures come back as an empty result.
type Finder interface {
	Nearby(ctx context.Context, req discovery.Request) []discovery.RadarUser
}

type Config struct {
	Radius     visibility.RadiusConfig
	MaxResults int
}

type (
	StateListener  func(tracker.State)
	NearbyListener func([]discovery.RadarUser)
)

// Engine couples one user's tracker to discovery and fans both out to
// listeners. Listeners are called synchronously, one at a time, in the order
// events were applied, and must not call back into the Engine.
type Engine struct {
	userID  string
	tracker *tracker.Tracker
	finder  Finder
	feed    location.ChangeFeed
	cfg     Config
	logger  logger.Logger

	mu     sync.Mutex
	emitMu sync.Mutex

	state   tracker.State
	gen     uint64
	seq     uint64
	flying  bool
	pending bool

	queryCtx    context.Context
	cancelQuery context.CancelFunc

	watchCancel   func()
	watchPrefixes []string

	stateListeners  map[int]StateListener
	nearbyListeners map[int]NearbyListener
	nextID          int
	latest          []discovery.RadarUser
}

func NewEngine(userID string, t *tracker.Tracker, finder Finder, feed location.ChangeFeed, cfg Config, log logger.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		userID:          userID,
		tracker:         t,
		finder:          finder,
		feed:            feed,
		cfg:             cfg,
		logger:          log.With("user_id", userID),
		state:           t.State(),
		queryCtx:        ctx,
		cancelQuery:     cancel,
		stateListeners:  make(map[int]StateListener),
		nearbyListeners: make(map[int]NearbyListener),
		latest:          []discovery.RadarUser{},
	}
	t.OnChange(e.onTrackerChange)
	return e
}

func (e *Engine) Start() error {
	return e.tracker.Start()
}

// Stop halts tracking. Once it returns no nearby listener is called until
// tracking starts again.
func (e *Engine) Stop() {
	e.tracker.Stop()

	e.mu.Lock()
	// covers an engine whose tracker was already idle
	e.gen++
	e.mu.Unlock()

	// wait out a delivery that passed its checks before the stop
	e.emitMu.Lock()
	e.emitMu.Unlock()
}

func (e *Engine) SetInvisible(enabled bool) error {
	return e.tracker.SetInvisible(enabled)
}

func (e *Engine) SetBackground(background bool) {
	e.tracker.SetBackground(background)
}

func (e *Engine) Locate(ctx context.Context) error {
	_, err := e.tracker.Locate(ctx)
	return err
}

func (e *Engine) State() tracker.State {
	return e.tracker.State()
}

// SearchRadius is the effective radius for the tracked user's tier and flags.
func (e *Engine) SearchRadius() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searchRadiusLocked()
}

// Latest returns the most recently delivered nearby result.
func (e *Engine) Latest() []discovery.RadarUser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// SubscribeState registers fn and immediately hands it the current state.
func (e *Engine) SubscribeState(fn StateListener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.stateListeners[id] = fn
	snapshot := e.state

	e.emitMu.Lock()
	e.mu.Unlock()
	fn(snapshot)
	e.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.stateListeners, id)
			e.mu.Unlock()
		})
	}
}

// SubscribeNearby registers fn, runs a discovery query right away and
// attaches to the store's change feed. The first result reaches fn before
// SubscribeNearby returns unless a newer query overtook it. Removing the last
// nearby listener detaches from the feed.
func (e *Engine) SubscribeNearby(fn NearbyListener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.nearbyListeners[id] = fn
	e.rewatchLocked()

	if !e.canQueryLocked() {
		e.emitMu.Lock()
		e.mu.Unlock()
		fn([]discovery.RadarUser{})
		e.emitMu.Unlock()
	} else {
		seq, gen, ctx, req := e.issueLocked()
		e.mu.Unlock()
		e.deliver(seq, gen, e.finder.Nearby(ctx, req))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.nearbyListeners, id)
			if len(e.nearbyListeners) == 0 {
				e.unwatchLocked()
			}
			e.mu.Unlock()
		})
	}
}

// onTrackerChange runs under the tracker's ordered emission.
func (e *Engine) onTrackerChange(state tracker.State, accepted bool) {
	e.mu.Lock()
	wasTracking := e.state.Tracking
	e.state = state

	if state.Tracking != wasTracking {
		e.gen++
		if state.Tracking {
			e.queryCtx, e.cancelQuery = context.WithCancel(context.Background())
		} else {
			e.cancelQuery()
			e.unwatchLocked()
			e.latest = []discovery.RadarUser{}
		}
	}

	requery := false
	if accepted && len(e.nearbyListeners) > 0 {
		e.rewatchLocked()
		requery = true
	}

	listeners := make([]StateListener, 0, len(e.stateListeners))
	for _, fn := range e.stateListeners {
		listeners = append(listeners, fn)
	}

	e.emitMu.Lock()
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
	e.emitMu.Unlock()

	if requery {
		e.requestQuery()
	}
}

func (e *Engine) onStoreChange(change location.Change) {
	if change.UserID == e.userID {
		return
	}
	e.requestQuery()
}

// requestQuery starts a background query, or marks one pending when a query
// is already in flight. A pending query runs once with the latest position.
func (e *Engine) requestQuery() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.canQueryLocked() {
		return
	}
	if e.flying {
		e.pending = true
		return
	}
	e.flying = true
	go e.runQueries()
}

func (e *Engine) runQueries() {
	for {
		e.mu.Lock()
		if !e.canQueryLocked() {
			e.flying = false
			e.pending = false
			e.mu.Unlock()
			return
		}
		e.pending = false
		seq, gen, ctx, req := e.issueLocked()
		e.mu.Unlock()

		e.deliver(seq, gen, e.finder.Nearby(ctx, req))

		e.mu.Lock()
		if !e.pending {
			e.flying = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
	}
}

// deliver fans a result out unless a newer query has been issued or tracking
// stopped or restarted since it was issued.
func (e *Engine) deliver(seq, gen uint64, users []discovery.RadarUser) {
	e.mu.Lock()
	if gen != e.gen || seq != e.seq || !e.state.Tracking {
		e.mu.Unlock()
		e.logger.Debug("Discarding stale nearby result", "seq", seq)
		return
	}

	e.latest = users
	listeners := make([]NearbyListener, 0, len(e.nearbyListeners))
	for _, fn := range e.nearbyListeners {
		listeners = append(listeners, fn)
	}

	e.emitMu.Lock()
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(users)
	}
	e.emitMu.Unlock()
}

func (e *Engine) canQueryLocked() bool {
	return e.state.Tracking && e.state.Location != nil && len(e.nearbyListeners) > 0
}

func (e *Engine) issueLocked() (uint64, uint64, context.Context, discovery.Request) {
	e.seq++
	req := discovery.Request{
		UserID: e.userID,
		Origin: *e.state.Location,
		Radius: e.searchRadiusLocked(),
		Limit:  e.cfg.MaxResults,
	}
	return e.seq, e.gen, e.queryCtx, req
}

func (e *Engine) searchRadiusLocked() float64 {
	return e.cfg.Radius.SearchRadius(e.state.Tier, e.state.Flags)
}

// rewatchLocked points the feed watch at the cells around the current
// position, replacing the watch only when the cells changed.
func (e *Engine) rewatchLocked() {
	if !e.state.Tracking || e.state.Location == nil || len(e.nearbyListeners) == 0 {
		e.unwatchLocked()
		return
	}

	loc := e.state.Location
	prefixes := geo.WatchPrefixes(loc.Latitude, loc.Longitude, e.searchRadiusLocked())
	if e.watchCancel != nil && samePrefixes(prefixes, e.watchPrefixes) {
		return
	}

	e.unwatchLocked()
	e.watchPrefixes = prefixes
	e.watchCancel = e.feed.Watch(prefixes, e.onStoreChange)
}

func (e *Engine) unwatchLocked() {
	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
		e.watchPrefixes = nil
	}
}

func samePrefixes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
