package tn_attestation

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/trufnetwork/attestation-registry/internal/host"
)

// reservations holds UIDs claimed by operations that have validated a request
// but not committed it yet. A resolver hook that re-enters the ledger sees
// them and cannot allocate or revoke the same UID twice.
type reservations struct {
	uids map[common.Hash]struct{}
}

func newReservations() reservations {
	return reservations{uids: make(map[common.Hash]struct{})}
}

func (r reservations) held(uid common.Hash) bool {
	_, ok := r.uids[uid]
	return ok
}

// claim marks uid as in flight. Reverting the transaction drops the claim.
func (r reservations) claim(tx *host.Tx, uid common.Hash) {
	r.uids[uid] = struct{}{}
	tx.Journal(func() { delete(r.uids, uid) })
}

// release drops the claim once the record is committed.
func (r reservations) release(tx *host.Tx, uid common.Hash) {
	delete(r.uids, uid)
	tx.Journal(func() { r.uids[uid] = struct{}{} })
}
