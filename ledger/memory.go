package ledger

import (
	"github.com/algorand/go-deadlock"
	"github.com/pkg/errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("ledger store closed")

// MemoryStore keeps the ledger in process. Records survive only as long as
// the value does; it backs tests and throwaway replicas.
type MemoryStore struct {
	mu      deadlock.RWMutex
	records []Record
	closed  bool
}

// NewMemoryStore returns an empty store, optionally seeded with records.
func NewMemoryStore(seed ...Record) *MemoryStore {
	s := &MemoryStore{records: make([]Record, 0, len(seed))}
	s.records = append(s.records, seed...)
	return s
}

// Append adds rec at the end of the log.
func (s *MemoryStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	// both stores accept exactly the records the line codec accepts
	line, err := rec.MarshalLine()
	if err != nil {
		return err
	}
	if _, err := ParseLine(string(line[:len(line)-1])); err != nil {
		return errors.Wrap(err, "invalid record")
	}
	s.records = append(s.records, rec)
	return nil
}

// Replay applies every record in order.
func (s *MemoryStore) Replay(apply func(Record) error) error {
	for _, rec := range s.Records() {
		if err := apply(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records returns a copy of the log.
func (s *MemoryStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
