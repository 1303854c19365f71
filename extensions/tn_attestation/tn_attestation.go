package tn_attestation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/trufnetwork/attestation-registry/extensions/tn_attestation/metrics"
	"github.com/trufnetwork/attestation-registry/extensions/tn_eip712"
	"github.com/trufnetwork/attestation-registry/extensions/tn_resolver"
	"github.com/trufnetwork/attestation-registry/extensions/tn_schema"
	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// Operation names used in logs and metric labels.
const (
	OpAttest                  = "attest"
	OpMultiAttest             = "multi_attest"
	OpAttestByDelegation      = "attest_by_delegation"
	OpMultiAttestByDelegation = "multi_attest_by_delegation"
	OpRevoke                  = "revoke"
	OpMultiRevoke             = "multi_revoke"
	OpRevokeByDelegation      = "revoke_by_delegation"
	OpMultiRevokeByDelegation = "multi_revoke_by_delegation"
)

// Attested is emitted for every created attestation.
type Attested struct {
	Recipient common.Address
	Attester  common.Address
	UID       common.Hash
	Schema    common.Hash
}

func (Attested) EventName() string { return "Attested" }

// Revoked is emitted for every revoked attestation.
type Revoked struct {
	Recipient common.Address
	Attester  common.Address
	UID       common.Hash
	Schema    common.Hash
}

func (Revoked) EventName() string { return "Revoked" }

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetrics overrides the metrics recorder.
func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger sets the ledger logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Ledger stores attestations and routes forwarded value to schema resolvers.
// It must only be used inside host transactions, which serialise access.
type Ledger struct {
	address   common.Address
	schemas   *tn_schema.Registry
	resolvers *tn_resolver.Directory
	verifier  *tn_eip712.Verifier
	metrics   metrics.MetricsRecorder
	logger    *zap.SugaredLogger

	db        map[common.Hash]types.Attestation
	attesting reservations
	revoking  reservations
}

// NewLedger returns an empty ledger at address. The verifier's domain must
// name the ledger as its verifying contract.
func NewLedger(address common.Address, schemas *tn_schema.Registry, resolvers *tn_resolver.Directory, verifier *tn_eip712.Verifier, opts ...Option) (*Ledger, error) {
	if schemas == nil || verifier == nil {
		return nil, fmt.Errorf("ledger needs a schema registry and a verifier")
	}
	if vc := verifier.Domain().VerifyingContract; vc != address {
		return nil, fmt.Errorf("verifier is bound to %s, ledger lives at %s", vc, address)
	}
	if resolvers == nil {
		resolvers, _ = tn_resolver.NewDirectory()
	}

	l := &Ledger{
		address:   address,
		schemas:   schemas,
		resolvers: resolvers,
		verifier:  verifier,
		logger:    zap.NewNop().Sugar(),
		db:        make(map[common.Hash]types.Attestation),
		attesting: newReservations(),
		revoking:  newReservations(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("tn_attestation")
	if l.metrics == nil {
		l.metrics = metrics.NewMetricsRecorder(l.logger)
	}
	return l, nil
}

// Address returns the account that receives forwarded value.
func (l *Ledger) Address() common.Address { return l.address }

// Schemas returns the registry the ledger validates against.
func (l *Ledger) Schemas() *tn_schema.Registry { return l.schemas }

// Verifier returns the delegated signature verifier.
func (l *Ledger) Verifier() *tn_eip712.Verifier { return l.verifier }

// Attest creates a single attestation with msg.Sender as the attester.
// msg.Value must cover the request value; any excess is refunded. A schema
// without a payable resolver takes no value at all.
func (l *Ledger) Attest(tx *host.Tx, msg host.Msg, req types.AttestationRequest) (common.Hash, error) {
	var uid common.Hash
	err := l.atomic(tx, OpAttest, func() error {
		var err error
		uid, err = l.attestOne(tx, msg, OpAttest, req.Schema, req.Data, msg.Sender)
		return err
	})
	return uid, err
}

// MultiAttest creates every attestation of every request atomically.
// msg.Value must equal the sum of the request values.
func (l *Ledger) MultiAttest(tx *host.Tx, msg host.Msg, reqs []types.MultiAttestationRequest) ([]common.Hash, error) {
	var uids []common.Hash
	err := l.atomic(tx, OpMultiAttest, func() error {
		remaining, err := exactValue(msg.Value, attestationValues(lo.FlatMap(reqs, func(r types.MultiAttestationRequest, _ int) []types.AttestationRequestData {
			return r.Data
		})), errs.ErrInvalidAttestation)
		if err != nil {
			return err
		}

		batches := make([]*batch, 0, len(reqs))
		for i, req := range reqs {
			b, err := l.prepareAttest(tx, req.Schema, req.Data, msg.Sender, remaining)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			batches = append(batches, b)
		}
		if uids, err = l.attestAll(tx, batches); err != nil {
			return err
		}
		l.recordAttested(tx, OpMultiAttest, len(uids), msg.Value, remaining)
		return nil
	})
	return uids, err
}

// AttestByDelegation creates an attestation signed by req.Attester and
// submitted by msg.Sender, who pays the value and receives any refund.
func (l *Ledger) AttestByDelegation(tx *host.Tx, msg host.Msg, req types.DelegatedAttestationRequest) (common.Hash, error) {
	var uid common.Hash
	err := l.atomic(tx, OpAttestByDelegation, func() error {
		if err := l.verifier.VerifyAttest(tx, req); err != nil {
			return err
		}
		var err error
		uid, err = l.attestOne(tx, msg, OpAttestByDelegation, req.Schema, req.Data, req.Attester)
		return err
	})
	return uid, err
}

// MultiAttestByDelegation is MultiAttest for pre-signed requests. Each
// request carries one signature per attestation.
func (l *Ledger) MultiAttestByDelegation(tx *host.Tx, msg host.Msg, reqs []types.MultiDelegatedAttestationRequest) ([]common.Hash, error) {
	var uids []common.Hash
	err := l.atomic(tx, OpMultiAttestByDelegation, func() error {
		remaining, err := exactValue(msg.Value, attestationValues(lo.FlatMap(reqs, func(r types.MultiDelegatedAttestationRequest, _ int) []types.AttestationRequestData {
			return r.Data
		})), errs.ErrInvalidAttestation)
		if err != nil {
			return err
		}

		batches := make([]*batch, 0, len(reqs))
		for i, req := range reqs {
			if len(req.Signatures) != len(req.Data) {
				return fmt.Errorf("request %d: %w: %d signatures for %d attestations", i, errs.ErrInvalidSignature, len(req.Signatures), len(req.Data))
			}
			for j, d := range req.Data {
				err := l.verifier.VerifyAttest(tx, types.DelegatedAttestationRequest{
					Schema:    req.Schema,
					Data:      d,
					Signature: req.Signatures[j],
					Attester:  req.Attester,
				})
				if err != nil {
					return fmt.Errorf("request %d attestation %d: %w", i, j, err)
				}
			}
			b, err := l.prepareAttest(tx, req.Schema, req.Data, req.Attester, remaining)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			batches = append(batches, b)
		}
		if uids, err = l.attestAll(tx, batches); err != nil {
			return err
		}
		l.recordAttested(tx, OpMultiAttestByDelegation, len(uids), msg.Value, remaining)
		return nil
	})
	return uids, err
}

// Revoke revokes a single attestation made by msg.Sender.
// msg.Value must cover the request value; any excess is refunded.
func (l *Ledger) Revoke(tx *host.Tx, msg host.Msg, req types.RevocationRequest) error {
	return l.atomic(tx, OpRevoke, func() error {
		return l.revokeOne(tx, msg, OpRevoke, req.Schema, req.Data, msg.Sender)
	})
}

// MultiRevoke revokes every attestation of every request atomically.
// msg.Value must equal the sum of the request values.
func (l *Ledger) MultiRevoke(tx *host.Tx, msg host.Msg, reqs []types.MultiRevocationRequest) error {
	return l.atomic(tx, OpMultiRevoke, func() error {
		remaining, err := exactValue(msg.Value, revocationValues(lo.FlatMap(reqs, func(r types.MultiRevocationRequest, _ int) []types.RevocationRequestData {
			return r.Data
		})), errs.ErrInvalidRevocation)
		if err != nil {
			return err
		}

		batches := make([]*batch, 0, len(reqs))
		for i, req := range reqs {
			b, err := l.prepareRevoke(tx, req.Schema, req.Data, msg.Sender, remaining)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			batches = append(batches, b)
		}
		n, err := l.revokeAll(tx, batches)
		if err != nil {
			return err
		}
		l.recordRevoked(tx, OpMultiRevoke, n, msg.Value, remaining)
		return nil
	})
}

// RevokeByDelegation revokes an attestation on behalf of req.Revoker, who
// signed the request.
func (l *Ledger) RevokeByDelegation(tx *host.Tx, msg host.Msg, req types.DelegatedRevocationRequest) error {
	return l.atomic(tx, OpRevokeByDelegation, func() error {
		if err := l.verifier.VerifyRevoke(tx, req); err != nil {
			return err
		}
		return l.revokeOne(tx, msg, OpRevokeByDelegation, req.Schema, req.Data, req.Revoker)
	})
}

// MultiRevokeByDelegation is MultiRevoke for pre-signed requests.
func (l *Ledger) MultiRevokeByDelegation(tx *host.Tx, msg host.Msg, reqs []types.MultiDelegatedRevocationRequest) error {
	return l.atomic(tx, OpMultiRevokeByDelegation, func() error {
		remaining, err := exactValue(msg.Value, revocationValues(lo.FlatMap(reqs, func(r types.MultiDelegatedRevocationRequest, _ int) []types.RevocationRequestData {
			return r.Data
		})), errs.ErrInvalidRevocation)
		if err != nil {
			return err
		}

		batches := make([]*batch, 0, len(reqs))
		for i, req := range reqs {
			if len(req.Signatures) != len(req.Data) {
				return fmt.Errorf("request %d: %w: %d signatures for %d revocations", i, errs.ErrInvalidSignature, len(req.Signatures), len(req.Data))
			}
			for j, d := range req.Data {
				err := l.verifier.VerifyRevoke(tx, types.DelegatedRevocationRequest{
					Schema:    req.Schema,
					Data:      d,
					Signature: req.Signatures[j],
					Revoker:   req.Revoker,
				})
				if err != nil {
					return fmt.Errorf("request %d revocation %d: %w", i, j, err)
				}
			}
			b, err := l.prepareRevoke(tx, req.Schema, req.Data, req.Revoker, remaining)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			batches = append(batches, b)
		}
		n, err := l.revokeAll(tx, batches)
		if err != nil {
			return err
		}
		l.recordRevoked(tx, OpMultiRevokeByDelegation, n, msg.Value, remaining)
		return nil
	})
}

// attestOne is the body shared by the single attest calls. The sender pays
// and gets the refund; attester is who the record names.
func (l *Ledger) attestOne(tx *host.Tx, msg host.Msg, op string, schemaUID common.Hash, data types.AttestationRequestData, attester common.Address) (common.Hash, error) {
	remaining := new(big.Int).Set(types.ValueOf(msg.Value))
	b, err := l.prepareAttest(tx, schemaUID, []types.AttestationRequestData{data}, attester, remaining)
	if err != nil {
		return common.Hash{}, err
	}
	if err := acceptsValue(b, msg.Value, errs.ErrInvalidAttestation); err != nil {
		return common.Hash{}, err
	}
	uids, err := l.attestAll(tx, []*batch{b})
	if err != nil {
		return common.Hash{}, err
	}
	l.recordAttested(tx, op, 1, msg.Value, remaining)
	return uids[0], l.refund(tx, msg.Sender, remaining)
}

func (l *Ledger) revokeOne(tx *host.Tx, msg host.Msg, op string, schemaUID common.Hash, data types.RevocationRequestData, revoker common.Address) error {
	remaining := new(big.Int).Set(types.ValueOf(msg.Value))
	b, err := l.prepareRevoke(tx, schemaUID, []types.RevocationRequestData{data}, revoker, remaining)
	if err != nil {
		return err
	}
	if err := acceptsValue(b, msg.Value, errs.ErrInvalidRevocation); err != nil {
		return err
	}
	n, err := l.revokeAll(tx, []*batch{b})
	if err != nil {
		return err
	}
	l.recordRevoked(tx, op, n, msg.Value, remaining)
	return l.refund(tx, msg.Sender, remaining)
}

// GetAttestation returns the attestation stored under uid, or the zero value.
func (l *Ledger) GetAttestation(uid common.Hash) types.Attestation {
	att, ok := l.db[uid]
	if !ok {
		return types.Attestation{}
	}
	return att.Clone()
}

// IsAttestationValid reports whether uid names a stored attestation,
// revoked or not.
func (l *Ledger) IsAttestationValid(uid common.Hash) bool {
	_, ok := l.db[uid]
	return ok
}

// Count returns the number of stored attestations.
func (l *Ledger) Count() int {
	return len(l.db)
}

// Restore loads a persisted attestation outside of any transaction.
func (l *Ledger) Restore(att types.Attestation) error {
	if !att.Exists() {
		return fmt.Errorf("restore attestation: empty uid")
	}
	if !l.schemas.GetSchema(att.Schema).Exists() {
		return fmt.Errorf("restore attestation %s: unknown schema %s", att.UID, att.Schema)
	}
	if prev, ok := l.db[att.UID]; ok && prev.Revoked() && !att.Revoked() {
		return fmt.Errorf("restore attestation %s: would un-revoke", att.UID)
	}
	l.db[att.UID] = att.Clone()
	return nil
}

// atomic runs fn and reverts every change it made if it fails. Re-entrant
// calls from resolvers rely on this to leave nothing behind on failure.
func (l *Ledger) atomic(tx *host.Tx, op string, fn func() error) error {
	snap := tx.Snapshot()
	if err := fn(); err != nil {
		tx.RevertToSnapshot(snap)
		l.metrics.RecordRejected(tx.Context(), op, metrics.ClassifyError(err))
		l.logger.Debugw("ledger operation rejected", "op", op, "tx", tx.ID(), "error", err)
		return err
	}
	return nil
}

func (l *Ledger) refund(tx *host.Tx, to common.Address, remaining *big.Int) error {
	if remaining.Sign() == 0 {
		return nil
	}
	if err := tx.Transfer(l.address, to, remaining); err != nil {
		return fmt.Errorf("refund %s to %s: %w", remaining, to, err)
	}
	return nil
}

func (l *Ledger) recordAttested(tx *host.Tx, op string, n int, sent, remaining *big.Int) {
	l.metrics.RecordAttested(tx.Context(), op, n)
	l.metrics.RecordValueForwarded(tx.Context(), op, new(big.Int).Sub(types.ValueOf(sent), remaining))
}

func (l *Ledger) recordRevoked(tx *host.Tx, op string, n int, sent, remaining *big.Int) {
	l.metrics.RecordRevoked(tx.Context(), op, n)
	l.metrics.RecordValueForwarded(tx.Context(), op, new(big.Int).Sub(types.ValueOf(sent), remaining))
}

// exactValue checks that a multi operation was sent exactly the sum of its
// request values and returns the counter the batches draw from.
func exactValue(sent *big.Int, values []*big.Int, base error) (*big.Int, error) {
	sent = types.ValueOf(sent)
	total := lo.Reduce(values, func(acc *big.Int, v *big.Int, _ int) *big.Int {
		return acc.Add(acc, types.ValueOf(v))
	}, new(big.Int))

	switch sent.Cmp(total) {
	case -1:
		return nil, fmt.Errorf("%w: sent %s, requests total %s", errs.ErrInsufficientValue, sent, total)
	case 1:
		return nil, fmt.Errorf("%w: sent %s exceeds requests total %s", base, sent, total)
	}
	return new(big.Int).Set(sent), nil
}

func attestationValues(data []types.AttestationRequestData) []*big.Int {
	return lo.Map(data, func(d types.AttestationRequestData, _ int) *big.Int { return d.Value })
}

func revocationValues(data []types.RevocationRequestData) []*big.Int {
	return lo.Map(data, func(d types.RevocationRequestData, _ int) *big.Int { return d.Value })
}
