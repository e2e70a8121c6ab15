package consensus

import "github.com/algorand/go-deadlock"

// Intent aggregates the responses to one logical request.
type Intent[K comparable, R any] struct {
	mu          deadlock.Mutex
	responses   map[K]R
	occurrences map[K]int
	majority    K
	seen        bool
	decided     bool
	locked      bool
}

// NewIntent returns an empty tally.
func NewIntent[K comparable, R any]() *Intent[K, R] {
	return &Intent[K, R]{
		responses:   make(map[K]R),
		occurrences: make(map[K]int),
	}
}

// AddResponse counts resp under key. It returns true on the single call
// that first brings the leading bucket to Quorum(total); every other call,
// including all calls after the decision has been read, returns false.
//
// Only the first response of each bucket is kept. Later responses with the
// same key are counted but not compared with it.
func (in *Intent[K, R]) AddResponse(key K, resp R, total int) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.locked {
		return false
	}
	if _, ok := in.responses[key]; !ok {
		in.responses[key] = resp
	}
	in.occurrences[key]++

	if in.decided {
		return false
	}
	// strictly greater: on a tie the bucket seen first keeps the lead
	if !in.seen || in.occurrences[key] > in.occurrences[in.majority] {
		in.majority = key
		in.seen = true
	}
	if in.occurrences[in.majority] >= Quorum(total) {
		in.decided = true
		return true
	}
	return false
}

// Majority returns the representative of the decided bucket and locks the
// intent. ok is false, and nothing is locked, if no decision exists yet.
func (in *Intent[K, R]) Majority() (resp R, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.decided {
		return resp, false
	}
	in.locked = true
	return in.responses[in.majority], true
}

// MajorityKey returns the currently leading key.
func (in *Intent[K, R]) MajorityKey() (key K, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.majority, in.seen
}

// Decided reports whether a quorum has been reached.
func (in *Intent[K, R]) Decided() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.decided
}

// Count returns how many responses were recorded under key.
func (in *Intent[K, R]) Count(key K) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.occurrences[key]
}
