// Package throttle flags identities that send requests faster than a fixed
// minimum inter-arrival time. It is advisory: callers log or count throttled
// requests but still serve them.
package throttle

import (
	"hash/fnv"
	"time"

	"github.com/algorand/go-deadlock"
	cache "github.com/patrickmn/go-cache"
)

// DefaultInterval is the minimum spacing between two requests of one key.
const DefaultInterval = 400 * time.Millisecond

const stripes = 64

// Throttle remembers when each key was last seen. Entries expire after a few
// intervals so idle identities do not accumulate.
type Throttle struct {
	interval time.Duration
	seen     *cache.Cache
	now      func() time.Time
	// stripe i serializes the read-then-write of the keys hashing to i
	locks [stripes]deadlock.Mutex
}

// New returns a throttle with the given interval; zero means DefaultInterval.
func New(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ttl := 4 * interval
	return &Throttle{
		interval: interval,
		seen:     cache.New(ttl, 2*ttl),
		now:      time.Now,
	}
}

func (t *Throttle) lock(key string) *deadlock.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.locks[h.Sum32()%stripes]
}

// Interval returns the configured minimum spacing.
func (t *Throttle) Interval() time.Duration { return t.interval }

// Admit records an arrival for key and reports whether it came sooner than
// the interval after the previous one. The timestamp is refreshed either way.
func (t *Throttle) Admit(key string) (throttled bool) {
	mu := t.lock(key)
	mu.Lock()
	defer mu.Unlock()

	now := t.now()
	if prev, ok := t.seen.Get(key); ok {
		throttled = now.Sub(prev.(time.Time)) < t.interval
	}
	t.seen.Set(key, now, cache.DefaultExpiration)
	return throttled
}
