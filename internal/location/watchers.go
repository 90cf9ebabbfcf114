package location

import (
	"sync"

	"github.com/askwhyharsh/liveradar/internal/geo"
)

type watcher struct {
	prefixes []string
	fn       func(Change)
}

// watcherSet is the registry shared by the memory store and the Redis feed.
type watcherSet struct {
	mu       sync.RWMutex
	watchers map[int]*watcher
	nextID   int
}

func newWatcherSet() *watcherSet {
	return &watcherSet{watchers: make(map[int]*watcher)}
}

func (s *watcherSet) add(prefixes []string, fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = &watcher{prefixes: append([]string(nil), prefixes...), fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

func (s *watcherSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

// dispatch calls every matching watcher outside the lock so watchers may
// cancel themselves.
func (s *watcherSet) dispatch(change Change) {
	s.mu.RLock()
	matched := make([]func(Change), 0, len(s.watchers))
	for _, w := range s.watchers {
		if geo.MatchesAny(change.Cell, w.prefixes) {
			matched = append(matched, w.fn)
		}
	}
	s.mu.RUnlock()

	for _, fn := range matched {
		fn(change)
	}
}
