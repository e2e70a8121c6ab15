package ledger

// Store is an append-only, replayable log of records.
type Store interface {
	// Append durably writes rec. The effect of rec must not be acknowledged
	// to anyone before Append returns nil.
	Append(rec Record) error

	// Replay calls apply for every stored record in append order.
	// An error from apply stops the replay and is returned.
	Replay(apply func(Record) error) error

	Close() error
}
