package tn_attestation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// callLedger mimics a contract call from the resolver back into the ledger:
// the value moves with the call and is returned if the callee fails.
func callLedger(tx *host.Tx, from common.Address, value *big.Int, fn func(msg host.Msg) error) error {
	snap := tx.Snapshot()
	msg, err := tx.Call(from, ledgerAddr, value)
	if err != nil {
		return err
	}
	if err := fn(msg); err != nil {
		tx.RevertToSnapshot(snap)
		return err
	}
	return nil
}

func TestReentrantResolverKeepsBatchAccounting(t *testing.T) {
	resolver := &stubResolver{addr: common.HexToAddress("0x0000000000000000000000000000000000000a0a"), payable: true}
	f := newFixture(t, resolver)
	f.chain.Fund(alice, big.NewInt(100))
	outer := f.register(t, "string note", resolver.addr, true)
	inner := f.register(t, "bytes32 ref", common.Address{}, true)

	var innerUIDs []common.Hash
	resolver.onAttest = func(tx *host.Tx, att types.Attestation, value *big.Int) error {
		// Keep the forwarded value and call back with a new attestation.
		return callLedger(tx, resolver.addr, nil, func(msg host.Msg) error {
			uid, err := f.ledger.Attest(tx, msg, types.AttestationRequest{
				Schema: inner,
				Data:   types.AttestationRequestData{Recipient: att.Attester, RefUID: att.UID},
			})
			innerUIDs = append(innerUIDs, uid)
			return err
		})
	}

	data := withValue(request(outer, true), 5).Data
	var uids []common.Hash
	_, err := f.exec(alice, 10, func(tx *host.Tx, msg host.Msg) error {
		var err error
		uids, err = f.ledger.MultiAttest(tx, msg, []types.MultiAttestationRequest{{
			Schema: outer,
			Data:   []types.AttestationRequestData{data, data},
		}})
		return err
	})
	require.NoError(t, err)

	require.Len(t, uids, 2)
	require.Len(t, innerUIDs, 2)
	assert.Equal(t, 4, f.ledger.Count())
	for i, uid := range innerUIDs {
		att := f.ledger.GetAttestation(uid)
		assert.Equal(t, resolver.addr, att.Attester)
		assert.Equal(t, uids[i], att.RefUID)
	}

	// The inner attests carried no value, so the resolver keeps both shares.
	assert.Equal(t, int64(90), f.balance(alice))
	assert.Equal(t, int64(10), f.balance(resolver.addr))
	assert.Zero(t, f.balance(ledgerAddr))
}

func TestMultiAttestHooksRunBeforeAnyCommit(t *testing.T) {
	gate := &stubResolver{addr: common.HexToAddress("0x0000000000000000000000000000000000000a0a")}
	f := newFixture(t, gate)
	open := f.register(t, "string note", common.Address{}, true)
	gated := f.register(t, "string note", gate.addr, true)

	// The first group's UID is fixed by its content and the block time.
	first := request(open, true).Data
	firstUID := AttestationUID(types.Attestation{
		Schema:    open,
		Time:      now,
		Recipient: first.Recipient,
		Attester:  alice,
		Revocable: first.Revocable,
		Data:      first.Data,
	}, 0)

	var (
		stored []bool
		reject error
	)
	gate.onAttest = func(tx *host.Tx, att types.Attestation, value *big.Int) error {
		stored = append(stored, f.ledger.IsAttestationValid(firstUID))
		return reject
	}

	multi := func() ([]common.Hash, host.Receipt, error) {
		var uids []common.Hash
		receipt, err := f.exec(alice, 0, func(tx *host.Tx, msg host.Msg) error {
			var err error
			uids, err = f.ledger.MultiAttest(tx, msg, []types.MultiAttestationRequest{
				{Schema: open, Data: []types.AttestationRequestData{first}},
				{Schema: gated, Data: []types.AttestationRequestData{request(gated, true).Data}},
			})
			return err
		})
		return uids, receipt, err
	}

	t.Run("rejected hook", func(t *testing.T) {
		reject = errs.ErrAccessDenied
		defer func() { reject, stored = nil, nil }()

		_, receipt, err := multi()
		require.ErrorIs(t, err, errs.ErrAccessDenied)
		assert.Equal(t, []bool{false}, stored)
		assert.Empty(t, receipt.Events)
		assert.Zero(t, f.ledger.Count())
	})

	uids, receipt, err := multi()
	require.NoError(t, err)
	require.Len(t, uids, 2)
	assert.Equal(t, firstUID, uids[0])
	assert.Equal(t, []bool{false}, stored)
	assert.Len(t, receipt.Events, 2)
	assert.True(t, f.ledger.IsAttestationValid(firstUID))
}

func TestMultiRevokeHooksRunBeforeAnyCommit(t *testing.T) {
	gate := &stubResolver{addr: common.HexToAddress("0x0000000000000000000000000000000000000a0a")}
	f := newFixture(t, gate)
	open := f.register(t, "string note", common.Address{}, true)
	gated := f.register(t, "string note", gate.addr, true)

	first, err := f.attest(alice, 0, request(open, true))
	require.NoError(t, err)
	second, err := f.attest(alice, 0, request(gated, true))
	require.NoError(t, err)

	var revoked []bool
	gate.onRevoke = func(tx *host.Tx, att types.Attestation, value *big.Int) error {
		revoked = append(revoked, f.ledger.GetAttestation(first).Revoked())
		return nil
	}

	_, err = f.exec(alice, 0, func(tx *host.Tx, msg host.Msg) error {
		return f.ledger.MultiRevoke(tx, msg, []types.MultiRevocationRequest{
			{Schema: open, Data: []types.RevocationRequestData{{UID: first}}},
			{Schema: gated, Data: []types.RevocationRequestData{{UID: second}}},
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, revoked)
	assert.True(t, f.ledger.GetAttestation(first).Revoked())
	assert.True(t, f.ledger.GetAttestation(second).Revoked())
}

func TestReentrantFailureLeavesNoTrace(t *testing.T) {
	resolver := &stubResolver{addr: common.HexToAddress("0x0000000000000000000000000000000000000a0a"), payable: true}
	f := newFixture(t, resolver)
	f.chain.Fund(alice, big.NewInt(100))
	outer := f.register(t, "string note", resolver.addr, true)
	inner := f.register(t, "bytes32 ref", common.Address{}, true)

	var innerErr error
	resolver.onAttest = func(tx *host.Tx, att types.Attestation, value *big.Int) error {
		innerErr = callLedger(tx, resolver.addr, value, func(msg host.Msg) error {
			// Value cannot go to a schema without a resolver.
			_, err := f.ledger.Attest(tx, msg, types.AttestationRequest{
				Schema: inner,
				Data:   types.AttestationRequestData{Recipient: bob, Value: big.NewInt(1)},
			})
			return err
		})
		return nil
	}

	receipt, err := f.exec(alice, 5, func(tx *host.Tx, msg host.Msg) error {
		_, err := f.ledger.Attest(tx, msg, withValue(request(outer, true), 5))
		return err
	})
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, errs.ErrNotPayable)

	assert.Equal(t, 1, f.ledger.Count())
	assert.Len(t, receipt.Events, 1)
	assert.Equal(t, int64(95), f.balance(alice))
	assert.Equal(t, int64(5), f.balance(resolver.addr))
	assert.Zero(t, f.balance(ledgerAddr))
}

func TestReentrantRevokeOfPendingUID(t *testing.T) {
	resolver := &stubResolver{addr: common.HexToAddress("0x0000000000000000000000000000000000000a0a")}
	f := newFixture(t, resolver)
	schema := f.register(t, "string note", resolver.addr, true)

	uid, err := f.attest(resolver.addr, 0, request(schema, true))
	require.NoError(t, err)

	var innerErr error
	resolver.onRevoke = func(tx *host.Tx, att types.Attestation, value *big.Int) error {
		innerErr = callLedger(tx, resolver.addr, nil, func(msg host.Msg) error {
			return f.ledger.Revoke(tx, msg, types.RevocationRequest{Schema: schema, Data: types.RevocationRequestData{UID: att.UID}})
		})
		return nil
	}

	require.NoError(t, f.revoke(resolver.addr, 0, types.RevocationRequest{Schema: schema, Data: types.RevocationRequestData{UID: uid}}))
	require.ErrorIs(t, innerErr, errs.ErrAlreadyRevoked)
	assert.True(t, f.ledger.GetAttestation(uid).Revoked())
}

func TestReserve(t *testing.T) {
	payable := &stubResolver{payable: true}
	plain := &stubResolver{}

	remaining := big.NewInt(10)
	require.NoError(t, reserve(remaining, big.NewInt(0), nil, errs.ErrInvalidAttestation))
	require.NoError(t, reserve(remaining, big.NewInt(4), payable, errs.ErrInvalidAttestation))
	assert.Equal(t, int64(6), remaining.Int64())

	err := reserve(remaining, big.NewInt(7), payable, errs.ErrInvalidAttestation)
	require.ErrorIs(t, err, errs.ErrInsufficientValue)
	assert.Equal(t, int64(6), remaining.Int64())

	require.ErrorIs(t, reserve(remaining, big.NewInt(1), plain, errs.ErrInvalidRevocation), errs.ErrNotPayable)
	require.ErrorIs(t, reserve(remaining, big.NewInt(-1), payable, errs.ErrInvalidRevocation), errs.ErrInvalidRevocation)
}

func TestExactValue(t *testing.T) {
	values := []*big.Int{big.NewInt(2), nil, big.NewInt(3)}

	got, err := exactValue(big.NewInt(5), values, errs.ErrInvalidRevocation)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Int64())

	_, err = exactValue(big.NewInt(4), values, errs.ErrInvalidRevocation)
	assert.Equal(t, errs.KindInsufficientValue, errs.Kind(err))

	_, err = exactValue(big.NewInt(6), values, errs.ErrInvalidRevocation)
	assert.Equal(t, errs.KindInvalidRevocation, errs.Kind(err))

	got, err = exactValue(nil, nil, errs.ErrInvalidAttestation)
	require.NoError(t, err)
	assert.Zero(t, got.Sign())
}
