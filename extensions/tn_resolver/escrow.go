package tn_resolver

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/token"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// TokenEscrow pulls a fixed token amount from the attester into its own
// custody for every attestation. The attester must have approved the
// resolver beforehand.
type TokenEscrow struct {
	address common.Address
	token   *token.Token
	amount  *big.Int
}

func NewTokenEscrow(address common.Address, tok *token.Token, amount *big.Int) *TokenEscrow {
	return &TokenEscrow{address: address, token: tok, amount: new(big.Int).Set(amount)}
}

func (r *TokenEscrow) Address() common.Address { return r.address }
func (r *TokenEscrow) IsPayable() bool         { return false }

func (r *TokenEscrow) OnAttest(tx *host.Tx, att types.Attestation, value *big.Int) error {
	if err := rejectValue(value); err != nil {
		return err
	}
	if err := r.token.TransferFrom(tx, r.address, att.Attester, r.address, r.amount); err != nil {
		return fmt.Errorf("%w: escrow pull: %w", ErrRejected, err)
	}
	return nil
}

func (r *TokenEscrow) OnRevoke(tx *host.Tx, att types.Attestation, value *big.Int) error {
	return rejectValue(value)
}
