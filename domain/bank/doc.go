// Package bank holds the account and transaction state machine of a replica.
//
// Accounts are keyed by public key. The table is guarded by a read/write lock
// for membership only; each account has its own mutex, so operations on
// unrelated accounts proceed concurrently. Operations that touch two
// accounts lock them in byte order of their keys.
//
// A transfer debits the source immediately and waits in the destination's
// pending queue until the destination accepts (crediting it) or rejects it.
package bank
