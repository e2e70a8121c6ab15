// Package consensus turns the answers of several independent replicas into
// one trusted answer.
//
// # Core Components
//
// Intent: the per-request tally. Responses are bucketed by a response key
// (the status for writes, the state version for reads); the first response
// seen for a key represents its bucket. Once a bucket reaches the quorum the
// intent reports a decision exactly once, and reading the decision locks it.
//
// Coordinator: sends one logical request to every replica concurrently,
// discards replies whose replica signature does not verify, feeds the rest
// to an Intent and returns as soon as a decision exists.
//
// # Byzantine Fault Tolerance
//
// The quorum is a strict majority of the configured replicas, so two
// conflicting answers can never both be decided for one request. There is no
// ordering protocol among replicas: operations are self-certifying (signed,
// nonce-sequenced), and the coordinator only votes on their outcomes.
package consensus
