package tn_resolver

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// ErrRejected is returned by a hook that declines an attestation or
// revocation.
var ErrRejected = errors.New("rejected by resolver")

// Resolver is invoked by the ledger on every attest and revoke under a schema
// that binds it.
type Resolver interface {
	// Address is the account the resolver custodies value in.
	Address() common.Address

	// IsPayable reports whether the resolver accepts forwarded value.
	IsPayable() bool

	// OnAttest validates att. value has already been credited to Address().
	OnAttest(tx *host.Tx, att types.Attestation, value *big.Int) error

	// OnRevoke validates the revocation of att. value has already been
	// credited to Address().
	OnRevoke(tx *host.Tx, att types.Attestation, value *big.Int) error
}

// rejectValue is the default for non-payable resolvers.
func rejectValue(value *big.Int) error {
	if value != nil && value.Sign() != 0 {
		return fmt.Errorf("%w: resolver is not payable (got %s)", ErrRejected, value)
	}
	return nil
}

// Directory maps resolver addresses to implementations. Schemas bind a
// resolver by address.
type Directory struct {
	resolvers map[common.Address]Resolver
}

// NewDirectory returns a directory holding resolvers.
func NewDirectory(resolvers ...Resolver) (*Directory, error) {
	d := &Directory{resolvers: make(map[common.Address]Resolver)}
	for _, r := range resolvers {
		if err := d.Register(r); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds r. Addresses are unique and the zero address is reserved for
// "no resolver".
func (d *Directory) Register(r Resolver) error {
	addr := r.Address()
	if addr == (common.Address{}) {
		return fmt.Errorf("resolver cannot use the zero address")
	}
	if _, exists := d.resolvers[addr]; exists {
		return fmt.Errorf("resolver %s already registered", addr)
	}
	d.resolvers[addr] = r
	return nil
}

// Lookup returns the resolver deployed at addr.
func (d *Directory) Lookup(addr common.Address) (Resolver, bool) {
	r, ok := d.resolvers[addr]
	return r, ok
}

// Addresses returns the registered addresses in ascending order.
func (d *Directory) Addresses() []common.Address {
	out := make([]common.Address, 0, len(d.resolvers))
	for addr := range d.resolvers {
		out = append(out, addr)
	}
	slices.SortFunc(out, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}
