package tn_resolver

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trufnetwork/attestation-registry/extensions/tn_schema"
	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/token"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

var (
	resolverAddr = common.HexToAddress("0x000000000000000000000000000000000000beef")
	attester     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	recipient    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	ledgerAddr   = common.HexToAddress("0x4200000000000000000000000000000000000021")
)

func run(t *testing.T, chain *host.Chain, fn func(tx *host.Tx) error) error {
	t.Helper()
	_, err := chain.Execute(context.Background(), attester, ledgerAddr, nil, func(tx *host.Tx, msg host.Msg) error {
		return fn(tx)
	})
	return err
}

func sampleAttestation() types.Attestation {
	return types.Attestation{
		UID:       common.HexToHash("0x01"),
		Schema:    common.HexToHash("0x02"),
		Attester:  attester,
		Recipient: recipient,
		Revocable: true,
	}
}

func TestDirectory(t *testing.T) {
	a := NewNoOp(common.HexToAddress("0x02"))
	b := NewNoOp(common.HexToAddress("0x01"))
	dir, err := NewDirectory(a, b)
	require.NoError(t, err)

	got, ok := dir.Lookup(a.Address())
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []common.Address{b.Address(), a.Address()}, dir.Addresses())

	require.Error(t, dir.Register(NewNoOp(a.Address())))
	require.Error(t, dir.Register(NewNoOp(common.Address{})))
	_, ok = dir.Lookup(common.HexToAddress("0x03"))
	assert.False(t, ok)
}

func TestNoOpRejectsValue(t *testing.T) {
	r := NewNoOp(resolverAddr)
	assert.False(t, r.IsPayable())
	require.NoError(t, r.OnAttest(nil, sampleAttestation(), nil))
	require.NoError(t, r.OnRevoke(nil, sampleAttestation(), big.NewInt(0)))
	require.ErrorIs(t, r.OnAttest(nil, sampleAttestation(), big.NewInt(1)), ErrRejected)
	require.ErrorIs(t, r.OnRevoke(nil, sampleAttestation(), big.NewInt(1)), ErrRejected)
}

func TestRecipientPredicate(t *testing.T) {
	r := NewRecipient(resolverAddr, recipient)
	require.NoError(t, r.OnAttest(nil, sampleAttestation(), nil))

	other := sampleAttestation()
	other.Recipient = attester
	require.ErrorIs(t, r.OnAttest(nil, other, nil), ErrRejected)
	require.NoError(t, r.OnRevoke(nil, other, nil))
}

func TestFieldPredicate(t *testing.T) {
	const schema = "uint256 score, bool like"
	r, err := NewFieldPredicate(resolverAddr, schema, "like", func(v any) bool {
		like, ok := v.(bool)
		return ok && like
	})
	require.NoError(t, err)

	att := sampleAttestation()
	att.Data, err = tn_schema.EncodeData(schema, big.NewInt(7), true)
	require.NoError(t, err)
	require.NoError(t, r.OnAttest(nil, att, nil))

	att.Data, err = tn_schema.EncodeData(schema, big.NewInt(7), false)
	require.NoError(t, err)
	require.ErrorIs(t, r.OnAttest(nil, att, nil), ErrRejected)

	att.Data = []byte{0x01}
	require.ErrorIs(t, r.OnAttest(nil, att, nil), ErrRejected)

	_, err = NewFieldPredicate(resolverAddr, schema, "missing", nil)
	require.Error(t, err)
}

func TestTokenEscrow(t *testing.T) {
	chain := host.NewChain()
	tok := token.New(common.HexToAddress("0xffff"), "TKN")
	r := NewTokenEscrow(resolverAddr, tok, big.NewInt(10))

	require.NoError(t, run(t, chain, func(tx *host.Tx) error {
		tok.Mint(tx, attester, big.NewInt(15))
		return nil
	}))

	t.Run("without allowance the pull fails", func(t *testing.T) {
		err := run(t, chain, func(tx *host.Tx) error { return r.OnAttest(tx, sampleAttestation(), nil) })
		require.ErrorIs(t, err, ErrRejected)
		require.ErrorIs(t, err, token.ErrInsufficientAllowance)
	})

	t.Run("approved pull moves tokens into custody", func(t *testing.T) {
		require.NoError(t, run(t, chain, func(tx *host.Tx) error {
			tok.Approve(tx, attester, resolverAddr, big.NewInt(10))
			return r.OnAttest(tx, sampleAttestation(), nil)
		}))
		assert.Equal(t, int64(5), tok.BalanceOf(attester).Int64())
		assert.Equal(t, int64(10), tok.BalanceOf(resolverAddr).Int64())
	})

	t.Run("revoke never transfers", func(t *testing.T) {
		require.NoError(t, run(t, chain, func(tx *host.Tx) error { return r.OnRevoke(tx, sampleAttestation(), nil) }))
		assert.Equal(t, int64(10), tok.BalanceOf(resolverAddr).Int64())
	})
}

func TestPayingIncentive(t *testing.T) {
	chain := host.NewChain()
	chain.Fund(resolverAddr, big.NewInt(1000))
	r := NewPayingIncentive(resolverAddr, big.NewInt(100), nil)
	assert.True(t, r.IsPayable())

	t.Run("attest pays the attester", func(t *testing.T) {
		require.NoError(t, run(t, chain, func(tx *host.Tx) error { return r.OnAttest(tx, sampleAttestation(), nil) }))
		assert.Equal(t, int64(900), chain.Balance(resolverAddr).Int64())
		assert.Equal(t, int64(100), chain.Balance(attester).Int64())
	})

	t.Run("attest with value is rejected", func(t *testing.T) {
		err := run(t, chain, func(tx *host.Tx) error { return r.OnAttest(tx, sampleAttestation(), big.NewInt(1)) })
		require.ErrorIs(t, err, ErrRejected)
	})

	t.Run("revoke below incentive is insufficient", func(t *testing.T) {
		err := run(t, chain, func(tx *host.Tx) error { return r.OnRevoke(tx, sampleAttestation(), big.NewInt(99)) })
		require.ErrorIs(t, err, errs.ErrInsufficientValue)
	})

	t.Run("revoke refunds the surplus", func(t *testing.T) {
		chain.Fund(attester, big.NewInt(50))
		// The ledger credits the forwarded value before calling the hook.
		require.NoError(t, run(t, chain, func(tx *host.Tx) error {
			if err := tx.Transfer(attester, resolverAddr, big.NewInt(150)); err != nil {
				return err
			}
			return r.OnRevoke(tx, sampleAttestation(), big.NewInt(150))
		}))
		assert.Equal(t, int64(1000), chain.Balance(resolverAddr).Int64())
		assert.Equal(t, int64(50), chain.Balance(attester).Int64())
	})

	t.Run("empty balance fails the attestation", func(t *testing.T) {
		poor := NewPayingIncentive(common.HexToAddress("0xdead"), big.NewInt(1), nil)
		err := run(t, chain, func(tx *host.Tx) error { return poor.OnAttest(tx, sampleAttestation(), nil) })
		require.ErrorIs(t, err, host.ErrInsufficientBalance)
	})
}
