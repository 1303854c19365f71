// Package host is the minimal execution layer the registry runs on.
//
// It owns native balances and the transaction journal. Components keep their
// own tables and record an undo closure with Tx.Journal for every mutation, so
// a failed transaction (or a failed nested call, via Snapshot and
// RevertToSnapshot) unwinds every table at once.
//
// Transactions are strictly sequential: Chain.Execute holds the chain lock for
// the whole transaction, and reentrant calls made by resolver hooks run inside
// the same Tx with Tx.Call.
package host
