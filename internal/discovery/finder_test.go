package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askwhyharsh/liveradar/internal/geo"
	"github.com/askwhyharsh/liveradar/internal/location"
	"github.com/askwhyharsh/liveradar/internal/metrics"
	"github.com/askwhyharsh/liveradar/internal/profile"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

var (
	origin = location.LiveLocation{Latitude: 52.5200, Longitude: 13.4050, Accuracy: 5}
	now    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func at(dLat, dLon float64) location.LiveLocation {
	return location.LiveLocation{Latitude: origin.Latitude + dLat, Longitude: origin.Longitude + dLon}
}

func seed(t *testing.T, store location.Store, records ...location.Record) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, store.Upsert(context.Background(), r))
	}
}

func newTestFinder(store location.Store, profiles profile.Lookup, m *metrics.Collector) *Finder {
	return NewFinder(store, profiles, DefaultConfig(), m, logger.Nop()).WithClock(func() time.Time { return now })
}

type failingStore struct {
	location.Store
	err   error
	calls int
}

func (s *failingStore) QueryBox(context.Context, geo.Box, int) ([]location.Record, error) {
	s.calls++
	return nil, s.err
}

type failingLookup struct{}

func (failingLookup) Profiles(context.Context, []string) (map[string]profile.Profile, error) {
	return nil, errors.New("profiles down")
}

func ids(users []RadarUser) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.UserID
	}
	return out
}

func TestQuery_PrivilegedFirstThenDistance(t *testing.T) {
	store := location.NewMemoryStore().WithClock(func() time.Time { return now })
	seed(t, store,
		location.NewRecord("plain-far", at(0.03, 0), now, time.Minute),
		location.NewRecord("vip-far", at(0.02, 0), now, time.Minute),
		location.NewRecord("plain-near", at(0.001, 0), now, time.Minute),
		location.NewRecord("vip-near", at(0.01, 0), now, time.Minute),
		location.NewRecord("plain-mid", at(0.005, 0), now, time.Minute),
	)
	profiles := profile.NewMemoryDirectory(
		profile.Profile{UserID: "vip-far", Tier: visibility.TierPrivileged},
		profile.Profile{UserID: "vip-near", Tier: visibility.TierPrivileged, DisplayName: "Vi"},
		profile.Profile{UserID: "plain-near", Tier: visibility.TierPremium, Handle: "pn"},
	)

	users, err := newTestFinder(store, profiles, nil).Query(context.Background(), Request{
		UserID: "me", Origin: origin, Radius: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vip-near", "vip-far", "plain-near", "plain-mid", "plain-far"}, ids(users))

	seenPlain := false
	for i, u := range users {
		if !u.Privileged {
			seenPlain = true
		} else {
			assert.False(t, seenPlain, "privileged user after a plain one at %d", i)
		}
	}
	assert.Equal(t, "Vi", users[0].DisplayName)
	assert.Equal(t, "pn", users[2].Handle)
}

func TestQuery_DropsSelfOutOfRadiusAndHidden(t *testing.T) {
	store := location.NewMemoryStore().WithClock(func() time.Time { return now })
	seed(t, store,
		location.NewRecord("me", origin, now, time.Minute),
		location.NewRecord("inside", at(0.01, 0), now, time.Minute),
		// inside the bounding box corner, outside the circle
		location.NewRecord("corner", at(0.04, 0.065), now, time.Minute),
		location.NewRecord("ghost", at(0.001, 0), now, time.Minute),
		location.HiddenRecord("ghost", now, time.Minute),
		location.NewRecord("stale", at(0.002, 0), now.Add(-time.Hour), time.Minute),
	)

	users, err := newTestFinder(store, nil, nil).Query(context.Background(), Request{
		UserID: "me", Origin: origin, Radius: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"inside"}, ids(users))

	u := users[0]
	assert.InDelta(t, 1112, u.Distance, 5)
	assert.InDelta(t, 0, u.Bearing, 0.01)
	assert.Equal(t, "1.1 km", u.DistanceLabel)
	assert.Equal(t, visibility.TierNear, u.Tier)
	assert.True(t, u.IsActive)
	assert.InDelta(t, 0.5, u.X, 1e-6)
	assert.Less(t, u.Y, 0.5)
}

func TestQuery_BerlinNeighbours(t *testing.T) {
	store := location.NewMemoryStore().WithClock(func() time.Time { return now })
	seed(t, store, location.NewRecord("other", location.LiveLocation{Latitude: 52.5210, Longitude: 13.4060}, now, time.Minute))

	users, err := newTestFinder(store, nil, nil).Query(context.Background(), Request{
		UserID: "me", Origin: origin, Radius: visibility.DefaultRadiusConfig().Standard,
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.InDelta(t, 130, users[0].Distance, 2)
	assert.Equal(t, visibility.TierImmediate, users[0].Tier)
	assert.Equal(t, 0.0, users[0].Blur)
	assert.Equal(t, 1.0, users[0].Opacity)
}

func TestQuery_InactiveAfterWindow(t *testing.T) {
	store := location.NewMemoryStore().WithClock(func() time.Time { return now })
	seed(t, store, location.NewRecord("idle", at(0.001, 0), now.Add(-6*time.Minute), 10*time.Minute))

	users, err := newTestFinder(store, nil, nil).Query(context.Background(), Request{
		UserID: "me", Origin: origin, Radius: 5000,
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.False(t, users[0].IsActive)
}

func TestQuery_Limit(t *testing.T) {
	store := location.NewMemoryStore().WithClock(func() time.Time { return now })
	for i, id := range []string{"a", "b", "c", "d"} {
		seed(t, store, location.NewRecord(id, at(float64(i+1)*0.001, 0), now, time.Minute))
	}

	users, err := newTestFinder(store, nil, nil).Query(context.Background(), Request{
		UserID: "me", Origin: origin, Radius: 5000, Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(users))
}

// limitSpy records the limit the finder hands the store.
type limitSpy struct {
	location.Store
	limits []int
}

func (s *limitSpy) QueryBox(ctx context.Context, box geo.Box, limit int) ([]location.Record, error) {
	s.limits = append(s.limits, limit)
	return s.Store.QueryBox(ctx, box, limit)
}

func TestQuery_FarPrivilegedSurvivesCrowd(t *testing.T) {
	store := location.NewMemoryStore().WithClock(func() time.Time { return now })
	crowd := 3 * DefaultConfig().MaxResults
	for i := 0; i < crowd; i++ {
		seed(t, store, location.NewRecord(fmt.Sprintf("plain-%03d", i), at(float64(i)*0.00001+0.0001, 0), now, time.Minute))
	}
	seed(t, store, location.NewRecord("vip-edge", at(0.04, 0), now, time.Minute))
	profiles := profile.NewMemoryDirectory(profile.Profile{UserID: "vip-edge", Tier: visibility.TierPrivileged})

	spy := &limitSpy{Store: store}
	users, err := newTestFinder(spy, profiles, nil).Query(context.Background(), Request{
		UserID: "me", Origin: origin, Radius: 5000,
	})
	require.NoError(t, err)
	require.Len(t, users, DefaultConfig().MaxResults)
	assert.Equal(t, "vip-edge", users[0].UserID)
	assert.True(t, users[0].Privileged)
	assert.Equal(t, "plain-000", users[1].UserID)
	assert.Equal(t, []int{0}, spy.limits, "every candidate in the box reaches ranking")
}

func TestQuery_ProfileFailureKeepsCandidates(t *testing.T) {
	store := location.NewMemoryStore().WithClock(func() time.Time { return now })
	seed(t, store, location.NewRecord("u1", at(0.001, 0), now, time.Minute))

	users, err := newTestFinder(store, failingLookup{}, nil).Query(context.Background(), Request{
		UserID: "me", Origin: origin, Radius: 5000,
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].DisplayName)
	assert.False(t, users[0].Privileged)
}

func TestNearby_StoreFailureIsEmpty(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	store := &failingStore{err: errors.New("connection reset")}
	f := newTestFinder(store, nil, m)

	users := f.Nearby(context.Background(), Request{UserID: "me", Origin: origin, Radius: 5000})
	assert.NotNil(t, users)
	assert.Empty(t, users)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryFailures.WithLabelValues("store")))
}

func TestQuery_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	store := &failingStore{err: errors.New("connection reset")}
	f := newTestFinder(store, nil, nil)
	req := Request{UserID: "me", Origin: origin, Radius: 5000}

	for i := 0; i < 5; i++ {
		_, err := f.Query(context.Background(), req)
		require.Error(t, err)
	}

	_, err := f.Query(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Equal(t, 5, store.calls)
}

func TestRank_Stable(t *testing.T) {
	users := []RadarUser{
		{UserID: "a", Distance: 10},
		{UserID: "b", Distance: 10},
		{UserID: "c", Distance: 5, Privileged: true},
		{UserID: "d", Distance: 1},
	}
	Rank(users)
	assert.Equal(t, []string{"c", "d", "a", "b"}, ids(users))
}
