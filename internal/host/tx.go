package host

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Tx is an in-flight transaction. It is only valid inside the closure passed
// to Chain.Execute or Chain.View.
type Tx struct {
	ctx     context.Context
	id      uuid.UUID
	chain   *Chain
	origin  common.Address
	height  uint64
	time    uint64
	journal []func()
	events  []Event
	dirty   map[common.Address]struct{}
}

// Context returns the context the transaction was started with.
func (tx *Tx) Context() context.Context { return tx.ctx }

// ID returns the transaction id.
func (tx *Tx) ID() uuid.UUID { return tx.id }

// Origin returns the account that signed the outer transaction.
func (tx *Tx) Origin() common.Address { return tx.origin }

// Height returns the block height the transaction executes in.
func (tx *Tx) Height() uint64 { return tx.height }

// Time returns the block timestamp in unix seconds.
func (tx *Tx) Time() uint64 { return tx.time }

// Journal records undo, which runs if the change it belongs to is reverted.
func (tx *Tx) Journal(undo func()) {
	tx.journal = append(tx.journal, undo)
}

// Snapshot returns an identifier for the current state.
func (tx *Tx) Snapshot() int {
	return len(tx.journal)
}

// RevertToSnapshot undoes every change made after the snapshot was taken, in
// reverse order.
func (tx *Tx) RevertToSnapshot(id int) {
	if id < 0 || id > len(tx.journal) {
		panic(fmt.Sprintf("revert to invalid snapshot %d (journal has %d entries)", id, len(tx.journal)))
	}
	for i := len(tx.journal) - 1; i >= id; i-- {
		tx.journal[i]()
	}
	tx.journal = tx.journal[:id]
}

// Emit queues ev for delivery after commit.
func (tx *Tx) Emit(ev Event) {
	n := len(tx.events)
	tx.events = append(tx.events, ev)
	tx.Journal(func() { tx.events = tx.events[:n] })
}

// Events returns the events emitted so far.
func (tx *Tx) Events() []Event {
	return tx.events
}

// BalanceOf returns the current balance of addr, including uncommitted
// changes made by this transaction.
func (tx *Tx) BalanceOf(addr common.Address) *big.Int {
	return new(big.Int).Set(tx.chain.balanceLocked(addr))
}

// Transfer moves amount of native value from one account to another.
func (tx *Tx) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer amount %s", amount)
	}
	fromBal := tx.chain.balanceLocked(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBal, amount)
	}
	if from == to {
		return nil
	}
	tx.setBalance(from, new(big.Int).Sub(fromBal, amount))
	tx.setBalance(to, new(big.Int).Add(tx.chain.balanceLocked(to), amount))
	return nil
}

// Call transfers value from caller to callee and returns the message the
// callee should act on. It is how a hook re-enters another component within
// the same transaction.
func (tx *Tx) Call(from, to common.Address, value *big.Int) (Msg, error) {
	if value == nil {
		value = new(big.Int)
	}
	if err := tx.Transfer(from, to, value); err != nil {
		return Msg{}, err
	}
	return Msg{Sender: from, Value: new(big.Int).Set(value)}, nil
}

// touched returns the current balance of every account whose balance was
// written during the transaction, including ones later reverted.
func (tx *Tx) touched() map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(tx.dirty))
	for addr := range tx.dirty {
		out[addr] = tx.BalanceOf(addr)
	}
	return out
}

func (tx *Tx) setBalance(addr common.Address, bal *big.Int) {
	balances := tx.chain.balances
	prev, existed := balances[addr]
	balances[addr] = bal
	tx.dirty[addr] = struct{}{}
	tx.Journal(func() {
		if existed {
			balances[addr] = prev
		} else {
			delete(balances, addr)
		}
	})
}
