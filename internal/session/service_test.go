package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askwhyharsh/liveradar/internal/profile"
	"github.com/askwhyharsh/liveradar/internal/storage"
	"github.com/askwhyharsh/liveradar/internal/visibility"
	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// kvRedis implements the string commands sessions use.
type kvRedis struct {
	storage.RedisClient

	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newKVRedis() *kvRedis {
	return &kvRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (r *kvRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		r.data[key] = string(v)
	case string:
		r.data[key] = v
	}
	r.ttls[key] = ttl
	return nil
}

func (r *kvRedis) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (r *kvRedis) Del(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.data, k)
	}
	return nil
}

func (r *kvRedis) Exists(_ context.Context, keys ...string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := r.data[k]; ok {
			n++
		}
	}
	return n, nil
}

func TestCreate_NewUserGetsStandardProfile(t *testing.T) {
	rdb := newKVRedis()
	dir := profile.NewMemoryDirectory()
	svc := NewService(rdb, dir, time.Hour)

	sess, err := svc.Create(context.Background(), CreateRequest{UserID: "alice", DisplayName: "Alice", IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	_, err = uuid.Parse(sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, "alice", sess.UserID)
	assert.Equal(t, visibility.TierStandard, sess.Tier)
	assert.Equal(t, time.Hour, rdb.ttls["session:"+sess.ID])

	p, err := profile.Get(context.Background(), dir, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, visibility.TierStandard, p.Tier)
}

func TestCreate_TierComesFromProfile(t *testing.T) {
	dir := profile.NewMemoryDirectory(profile.Profile{UserID: "vip", DisplayName: "Vip", Tier: visibility.TierPrivileged})
	svc := NewService(newKVRedis(), dir, time.Hour)

	sess, err := svc.Create(context.Background(), CreateRequest{UserID: "vip", DisplayName: "Someone Else"})
	require.NoError(t, err)
	assert.Equal(t, visibility.TierPrivileged, sess.Tier)
	assert.Equal(t, "Vip", sess.DisplayName)
}

func TestGet(t *testing.T) {
	svc := NewService(newKVRedis(), profile.NewMemoryDirectory(), time.Hour)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{UserID: "alice"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, got.UserID)
	assert.Equal(t, created.Tier, got.Tier)

	_, err = svc.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrInvalidSessionID)

	_, err = svc.Get(ctx, uuid.New().String())
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestUpdateLastSeenAndDelete(t *testing.T) {
	svc := NewService(newKVRedis(), profile.NewMemoryDirectory(), time.Hour)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{UserID: "alice"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.UpdateLastSeen(ctx, created.ID))
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSeen.After(created.LastSeen))

	ok, err := svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.Delete(ctx, created.ID))
	ok, err = svc.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Resolve(t *testing.T) {
	svc := NewService(newKVRedis(), profile.NewMemoryDirectory(), time.Hour)
	m := NewManager(svc, logger.Nop())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{UserID: "alice"})
	require.NoError(t, err)

	sess, err := m.Resolve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.UserID)

	err = m.ValidateSession(ctx, uuid.New().String())
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
