package location

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/askwhyharsh/liveradar/internal/storage"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// RedisFeed fans Redis pub/sub change notifications out to local watchers.
// One pattern subscription serves every watcher in the process.
type RedisFeed struct {
	redis    storage.RedisClient
	watchers *watcherSet
	logger   logger.Logger
}

func NewRedisFeed(redisClient storage.RedisClient, log logger.Logger) *RedisFeed {
	return &RedisFeed{
		redis:    redisClient,
		watchers: newWatcherSet(),
		logger:   log,
	}
}

func (f *RedisFeed) Watch(prefixes []string, fn func(Change)) func() {
	return f.watchers.add(prefixes, fn)
}

// Run consumes the change channels until ctx is cancelled.
func (f *RedisFeed) Run(ctx context.Context) error {
	pubsub := f.redis.PSubscribe(ctx, changeChannel+"*")
	defer pubsub.Close()

	f.logger.Info("Location change feed started")
	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				f.logger.Warn("Dropping malformed change", "channel", msg.Channel, "error", err)
				continue
			}
			f.watchers.dispatch(change)
		case <-ctx.Done():
			f.logger.Info("Location change feed stopped")
			return ctx.Err()
		}
	}
}
