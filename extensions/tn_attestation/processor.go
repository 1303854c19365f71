package tn_attestation

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trufnetwork/attestation-registry/extensions/tn_resolver"
	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// pendingRecord is an attestation that passed validation and holds its share
// of the forwarded value, waiting for the resolver hook.
type pendingRecord struct {
	att   types.Attestation
	value *big.Int
}

// batch is one validated group of requests sharing a schema and an actor.
// Nothing in it is visible to readers of the ledger until commit.
type batch struct {
	schema   common.Hash
	actor    common.Address
	resolver tn_resolver.Resolver
	pending  []pendingRecord
}

// Every operation works in three passes over all of its batches: prepare
// (validate and reserve), forward value and call the resolver, commit.
// Records are only stored once every hook of every batch accepted.

// prepareAttest validates one attestation group on behalf of attester.
// remaining is the value still unclaimed by the calling operation; every
// request with a value is charged against it.
func (l *Ledger) prepareAttest(tx *host.Tx, schemaUID common.Hash, data []types.AttestationRequestData, attester common.Address, remaining *big.Int) (*batch, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty batch for schema %s", errs.ErrInvalidAttestation, schemaUID)
	}

	schema := l.schemas.GetSchema(schemaUID)
	if !schema.Exists() {
		return nil, fmt.Errorf("%w %s", errs.ErrInvalidSchema, schemaUID)
	}
	resolver, err := l.resolverFor(schema, errs.ErrInvalidAttestation)
	if err != nil {
		return nil, err
	}

	now := tx.Time()
	b := &batch{schema: schemaUID, actor: attester, resolver: resolver, pending: make([]pendingRecord, 0, len(data))}
	for i, d := range data {
		if d.ExpirationTime != types.NoExpirationTime && d.ExpirationTime <= now {
			return nil, fmt.Errorf("attestation %d: %w (%d <= %d)", i, errs.ErrInvalidExpirationTime, d.ExpirationTime, now)
		}
		if d.Revocable && !schema.Revocable {
			return nil, fmt.Errorf("attestation %d: %w: schema %s is irrevocable", i, errs.ErrInvalidAttestation, schemaUID)
		}
		value := new(big.Int).Set(types.ValueOf(d.Value))
		if err := reserve(remaining, value, resolver, errs.ErrInvalidAttestation); err != nil {
			return nil, fmt.Errorf("attestation %d: %w", i, err)
		}

		att := types.Attestation{
			Schema:         schemaUID,
			Time:           now,
			ExpirationTime: d.ExpirationTime,
			RefUID:         d.RefUID,
			Recipient:      d.Recipient,
			Attester:       attester,
			Revocable:      d.Revocable,
			Data:           bytes.Clone(d.Data),
			Value:          value,
		}
		att.UID = l.allocateUID(tx, att)
		b.pending = append(b.pending, pendingRecord{att: att, value: value})
	}
	return b, nil
}

// prepareRevoke validates one revocation group on behalf of revoker.
func (l *Ledger) prepareRevoke(tx *host.Tx, schemaUID common.Hash, data []types.RevocationRequestData, revoker common.Address, remaining *big.Int) (*batch, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty batch for schema %s", errs.ErrInvalidRevocation, schemaUID)
	}

	schema := l.schemas.GetSchema(schemaUID)
	if !schema.Exists() {
		return nil, fmt.Errorf("%w: unknown schema %s", errs.ErrInvalidRevocation, schemaUID)
	}
	resolver, err := l.resolverFor(schema, errs.ErrInvalidRevocation)
	if err != nil {
		return nil, err
	}

	b := &batch{schema: schemaUID, actor: revoker, resolver: resolver, pending: make([]pendingRecord, 0, len(data))}
	for i, d := range data {
		att, ok := l.db[d.UID]
		switch {
		case !ok:
			return nil, fmt.Errorf("revocation %d: %w: %s", i, errs.ErrNotFound, d.UID)
		case att.Schema != schemaUID:
			return nil, fmt.Errorf("revocation %d: %w: %s belongs to schema %s", i, errs.ErrInvalidRevocation, d.UID, att.Schema)
		case !att.Revocable:
			return nil, fmt.Errorf("revocation %d: %w: %s", i, errs.ErrIrrevocable, d.UID)
		case att.Revoked() || l.revoking.held(d.UID):
			return nil, fmt.Errorf("revocation %d: %w: %s", i, errs.ErrAlreadyRevoked, d.UID)
		case att.Attester != revoker:
			return nil, fmt.Errorf("revocation %d: %w: %s did not attest %s", i, errs.ErrAccessDenied, revoker, d.UID)
		}

		value := new(big.Int).Set(types.ValueOf(d.Value))
		if err := reserve(remaining, value, resolver, errs.ErrInvalidRevocation); err != nil {
			return nil, fmt.Errorf("revocation %d: %w", i, err)
		}

		l.revoking.claim(tx, d.UID)
		att = att.Clone()
		att.RevocationTime = max(tx.Time(), att.Time, 1)
		b.pending = append(b.pending, pendingRecord{att: att, value: value})
	}
	return b, nil
}

// attestAll runs the hooks of every prepared batch, then stores every record.
func (l *Ledger) attestAll(tx *host.Tx, batches []*batch) ([]common.Hash, error) {
	for _, b := range batches {
		if b.resolver == nil {
			continue
		}
		for _, p := range b.pending {
			if err := l.forward(tx, b.resolver, p.value); err != nil {
				return nil, err
			}
			if err := b.resolver.OnAttest(tx, p.att.Clone(), p.value); err != nil {
				return nil, fmt.Errorf("%w: resolver rejected %s: %w", errs.ErrInvalidAttestation, p.att.UID, err)
			}
		}
	}

	var uids []common.Hash
	for _, b := range batches {
		for _, p := range b.pending {
			l.put(tx, p.att)
			l.attesting.release(tx, p.att.UID)
			tx.Emit(Attested{Recipient: p.att.Recipient, Attester: b.actor, UID: p.att.UID, Schema: b.schema})
			l.logger.Debugw("attested", "uid", p.att.UID, "schema", b.schema, "attester", b.actor, "tx", tx.ID())
			uids = append(uids, p.att.UID)
		}
	}
	return uids, nil
}

// revokeAll is attestAll for revocations. It returns the number revoked.
func (l *Ledger) revokeAll(tx *host.Tx, batches []*batch) (int, error) {
	for _, b := range batches {
		if b.resolver == nil {
			continue
		}
		for _, p := range b.pending {
			if err := l.forward(tx, b.resolver, p.value); err != nil {
				return 0, err
			}
			if err := b.resolver.OnRevoke(tx, p.att.Clone(), p.value); err != nil {
				return 0, fmt.Errorf("%w: resolver rejected revocation of %s: %w", errs.ErrInvalidRevocation, p.att.UID, err)
			}
		}
	}

	n := 0
	for _, b := range batches {
		for _, p := range b.pending {
			l.put(tx, p.att)
			l.revoking.release(tx, p.att.UID)
			tx.Emit(Revoked{Recipient: p.att.Recipient, Attester: p.att.Attester, UID: p.att.UID, Schema: b.schema})
			l.logger.Debugw("revoked", "uid", p.att.UID, "schema", b.schema, "revoker", b.actor, "tx", tx.ID())
			n++
		}
	}
	return n, nil
}

// forward moves a reserved value from the ledger into resolver custody.
func (l *Ledger) forward(tx *host.Tx, resolver tn_resolver.Resolver, value *big.Int) error {
	if err := tx.Transfer(l.address, resolver.Address(), value); err != nil {
		return fmt.Errorf("forward value to resolver: %w", err)
	}
	return nil
}

// acceptsValue rejects any value sent with a single call whose schema has no
// payable resolver.
func acceptsValue(b *batch, sent *big.Int, base error) error {
	if types.ValueOf(sent).Sign() == 0 || (b.resolver != nil && b.resolver.IsPayable()) {
		return nil
	}
	return fmt.Errorf("%w: sent %s", errs.NotPayable(base), sent)
}

// reserve charges value against remaining. Value may only go to a payable
// resolver.
func reserve(remaining, value *big.Int, resolver tn_resolver.Resolver, base error) error {
	switch value.Sign() {
	case -1:
		return fmt.Errorf("%w: negative value %s", base, value)
	case 0:
		return nil
	}
	if resolver == nil || !resolver.IsPayable() {
		return errs.NotPayable(base)
	}
	if value.Cmp(remaining) > 0 {
		return fmt.Errorf("%w: request needs %s, %s left", errs.ErrInsufficientValue, value, remaining)
	}
	remaining.Sub(remaining, value)
	return nil
}

func (l *Ledger) resolverFor(schema types.SchemaRecord, base error) (tn_resolver.Resolver, error) {
	if !schema.HasResolver() {
		return nil, nil
	}
	r, ok := l.resolvers.Lookup(schema.Resolver)
	if !ok {
		return nil, fmt.Errorf("%w: resolver %s of schema %s is not deployed", base, schema.Resolver, schema.UID)
	}
	return r, nil
}

func (l *Ledger) allocateUID(tx *host.Tx, att types.Attestation) common.Hash {
	for bump := uint32(0); ; bump++ {
		uid := AttestationUID(att, bump)
		if _, taken := l.db[uid]; taken || l.attesting.held(uid) || uid == types.EmptyUID {
			continue
		}
		l.attesting.claim(tx, uid)
		return uid
	}
}

func (l *Ledger) put(tx *host.Tx, att types.Attestation) {
	prev, existed := l.db[att.UID]
	l.db[att.UID] = att
	tx.Journal(func() {
		if existed {
			l.db[att.UID] = prev
		} else {
			delete(l.db, att.UID)
		}
	})
}
