// Package replica is the authenticated protocol engine of one bank replica.
//
// A Replica owns an account table, the ledger it was rebuilt from, a signing
// key and a throttle. Every request is checked in a fixed order and answered
// with a status; only SUCCESS mutates state, and only after the matching
// ledger record has been durably appended. Every response is signed with the
// replica key so that a client can later prove what the replica said.
//
// Replica implements api.Replica, so it can be served over HTTP by the
// network package or queried in-process by a consensus.Coordinator.
package replica
