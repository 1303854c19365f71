// Package token is a minimal fungible token living on the host journal. The
// escrow resolver pulls from it with TransferFrom.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trufnetwork/attestation-registry/internal/host"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

type allowanceKey struct {
	owner, spender common.Address
}

// Token keeps balances and allowances. All mutations are journaled on the
// transaction they run in.
type Token struct {
	address    common.Address
	symbol     string
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

// New returns an empty token deployed at address.
func New(address common.Address, symbol string) *Token {
	return &Token{
		address:    address,
		symbol:     symbol,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }

// BalanceOf returns the balance of owner.
func (t *Token) BalanceOf(owner common.Address) *big.Int {
	if bal, ok := t.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Allowance returns how much spender may still pull from owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Mint creates amount new tokens for to.
func (t *Token) Mint(tx *host.Tx, to common.Address, amount *big.Int) {
	t.setBalance(tx, to, new(big.Int).Add(t.BalanceOf(to), amount))
}

// Approve lets spender pull up to amount from owner.
func (t *Token) Approve(tx *host.Tx, owner, spender common.Address, amount *big.Int) {
	key := allowanceKey{owner, spender}
	prev, existed := t.allowances[key]
	t.allowances[key] = new(big.Int).Set(amount)
	tx.Journal(func() {
		if existed {
			t.allowances[key] = prev
		} else {
			delete(t.allowances, key)
		}
	})
}

// Transfer moves amount from `from` to `to`.
func (t *Token) Transfer(tx *host.Tx, from, to common.Address, amount *big.Int) error {
	bal := t.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, bal, t.symbol, amount)
	}
	t.setBalance(tx, from, bal.Sub(bal, amount))
	t.setBalance(tx, to, new(big.Int).Add(t.BalanceOf(to), amount))
	return nil
}

// TransferFrom moves amount from owner to `to` on behalf of spender, spending
// the allowance.
func (t *Token) TransferFrom(tx *host.Tx, spender, owner, to common.Address, amount *big.Int) error {
	allowance := t.Allowance(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may pull %s %s from %s, needs %s",
			ErrInsufficientAllowance, spender, allowance, t.symbol, owner, amount)
	}
	if err := t.Transfer(tx, owner, to, amount); err != nil {
		return err
	}
	t.Approve(tx, owner, spender, allowance.Sub(allowance, amount))
	return nil
}

func (t *Token) setBalance(tx *host.Tx, owner common.Address, bal *big.Int) {
	prev, existed := t.balances[owner]
	t.balances[owner] = bal
	tx.Journal(func() {
		if existed {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
}
