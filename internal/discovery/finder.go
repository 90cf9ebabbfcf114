package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/askwhyharsh/liveradar/internal/geo"
	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/metrics"
	"github.com/askwhyharsh/liveradar/internal/profile"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

const breakerName = "location-store"

// Config tunes the discovery query.
type Config struct {
	Radius       visibility.RadiusConfig
	ActiveWindow time.Duration
	QueryTimeout time.Duration
	MaxResults   int
}

func DefaultConfig() Config {
	return Config{
		Radius:       visibility.DefaultRadiusConfig(),
		ActiveWindow: 5 * time.Minute,
		QueryTimeout: 5 * time.Second,
		MaxResults:   50,
	}
}

// Request describes one discovery query.
type Request struct {
	UserID string
	Origin location.LiveLocation
	Radius float64
	// Limit overrides Config.MaxResults when positive.
	Limit int
}

// Finder runs nearby discovery against the shared location store.
type Finder struct {
	store    location.Store
	profiles profile.Lookup
	cfg      Config
	breaker  *gobreaker.CircuitBreaker[[]location.Record]
	metrics  *metrics.Collector
	logger   logger.Logger
	now      func() time.Time
}

func NewFinder(store location.Store, profiles profile.Lookup, cfg Config, m *metrics.Collector, log logger.Logger) *Finder {
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 5 * time.Minute
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}

	m.Breaker(breakerName, 0)
	breaker := gobreaker.NewCircuitBreaker[[]location.Record](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a caller abandoning its query says nothing about the store
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			m.Breaker(name, breakerStateValue(to))
		},
	})

	return &Finder{
		store:    store,
		profiles: profiles,
		cfg:      cfg,
		breaker:  breaker,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock replaces the finder's time source.
func (f *Finder) WithClock(now func() time.Time) *Finder {
	f.now = now
	return f
}

// Nearby is Query with failures degraded to an empty result.
func (f *Finder) Nearby(ctx context.Context, req Request) []RadarUser {
	users, err := f.Query(ctx, req)
	if err != nil {
		f.logger.Warn("Nearby query failed", "user_id", req.UserID, "error", err)
		return []RadarUser{}
	}
	return users
}

// Query prefilters the store by bounding box, recomputes every candidate
// against the origin, drops self and anything at or beyond the radius, joins
// profiles, ranks privileged users first then by distance, and truncates.
func (f *Finder) Query(ctx context.Context, req Request) ([]RadarUser, error) {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.QueryTimeout)
	defer cancel()

	// privilege is only known after the profile join, so every candidate in
	// the box is ranked before the result is truncated
	box := geo.BoundingBox(req.Origin.Latitude, req.Origin.Longitude, req.Radius)
	records, err := f.breaker.Execute(func() ([]location.Record, error) {
		return f.store.QueryBox(ctx, box, 0)
	})
	if err != nil {
		f.metrics.QueryFailed(failureReason(err))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}

	users := f.project(req, records)
	f.join(ctx, req.UserID, users)
	Rank(users)

	limit := f.cfg.MaxResults
	if req.Limit > 0 {
		limit = req.Limit
	}
	if len(users) > limit {
		users = users[:limit]
	}

	f.metrics.Query(time.Since(started), len(users))
	return users, nil
}

func (f *Finder) project(req Request, records []location.Record) []RadarUser {
	now := f.now()
	users := make([]RadarUser, 0, len(records))

	for _, rec := range records {
		if rec.UserID == req.UserID || !rec.Discoverable(now) {
			continue
		}

		distance := geo.Distance(req.Origin.Latitude, req.Origin.Longitude, rec.Latitude, rec.Longitude)
		if distance >= req.Radius {
			continue
		}

		bearing := geo.Bearing(req.Origin.Latitude, req.Origin.Longitude, rec.Latitude, rec.Longitude)
		p := f.cfg.Radius.Assess(distance, bearing, req.Radius)
		if p.Tier == visibility.TierHidden {
			continue
		}

		users = append(users, RadarUser{
			UserID:        rec.UserID,
			Distance:      distance,
			Bearing:       bearing,
			DistanceLabel: geo.FormatDistance(distance),
			Blur:          p.Blur,
			Opacity:       p.Opacity,
			Tier:          p.Tier,
			IsActive:      now.Sub(rec.UpdatedAt) <= f.cfg.ActiveWindow,
			X:             p.X,
			Y:             p.Y,
		})
	}

	return users
}

// join fills display metadata. A failed lookup leaves it empty.
func (f *Finder) join(ctx context.Context, requester string, users []RadarUser) {
	if len(users) == 0 || f.profiles == nil {
		return
	}

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.UserID
	}

	profiles, err := f.profiles.Profiles(ctx, ids)
	if err != nil {
		f.logger.Warn("Profile lookup failed", "user_id", requester, "error", err)
		f.metrics.QueryFailed("profiles")
		return
	}

	for i := range users {
		p, ok := profiles[users[i].UserID]
		if !ok {
			continue
		}
		users[i].DisplayName = p.DisplayName
		users[i].Handle = p.Handle
		users[i].AvatarURL = p.AvatarURL
		users[i].Verified = p.Verified
		users[i].Privileged = p.Privileged()
	}
}

// Rank orders privileged users ahead of everyone else, each group by
// ascending distance. Equal keys keep their input order.
func Rank(users []RadarUser) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Privileged != users[j].Privileged {
			return users[i].Privileged
		}
		return users[i].Distance < users[j].Distance
	})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "store"
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
