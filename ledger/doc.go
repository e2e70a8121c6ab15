// Package ledger implements the append-only operation log that is the source
// of truth for a replica's account state.
//
// # Core Components
//
// Record: one applied operation (create, add, accept or reject).
//
// Store: durable append plus forward-only replay. FileStore keeps one text
// file per replica; MemoryStore keeps records in process.
//
// # Durability
//
// Append returns only after the record has been flushed, so callers can
// release a response once Append succeeds (write-then-ack). At startup the
// whole log is replayed in order onto an empty account table.
//
// # Crash Recovery
//
// A trailing fragment without its newline terminator is the remains of an
// interrupted write: it is discarded and the file truncated to the last
// complete record. A complete line that does not parse is not recoverable and
// Replay fails.
package ledger
