// Package tn_schema is the schema registry. A schema is identified by the
// keccak256 of its packed (schema, resolver, revocable) triple and is stored
// exactly once.
package tn_schema

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// Registered is emitted for every new schema.
type Registered struct {
	UID        common.Hash
	Registerer common.Address
}

func (Registered) EventName() string { return "Registered" }

// Registry stores schema records. Records are never overwritten or removed.
type Registry struct {
	address common.Address
	records map[common.Hash]types.SchemaRecord
	logger  *zap.SugaredLogger
}

// NewRegistry returns an empty registry deployed at address.
func NewRegistry(address common.Address, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		address: address,
		records: make(map[common.Hash]types.SchemaRecord),
		logger:  logger.Named("tn_schema"),
	}
}

// Address returns the registry's account.
func (r *Registry) Address() common.Address { return r.address }

// SchemaUID computes keccak256(abi.encodePacked(schema, resolver, revocable)).
func SchemaUID(schema string, resolver common.Address, revocable bool) common.Hash {
	flag := []byte{0}
	if revocable {
		flag[0] = 1
	}
	return crypto.Keccak256Hash([]byte(schema), resolver.Bytes(), flag)
}

// Register stores a new schema on behalf of msg.Sender and returns its UID.
func (r *Registry) Register(tx *host.Tx, msg host.Msg, schema string, resolver common.Address, revocable bool) (common.Hash, error) {
	record := types.SchemaRecord{
		UID:       SchemaUID(schema, resolver, revocable),
		Resolver:  resolver,
		Revocable: revocable,
		Schema:    schema,
	}
	if _, exists := r.records[record.UID]; exists {
		return common.Hash{}, fmt.Errorf("%w: schema %s", errs.ErrAlreadyExists, record.UID)
	}

	r.records[record.UID] = record
	tx.Journal(func() { delete(r.records, record.UID) })
	tx.Emit(Registered{UID: record.UID, Registerer: msg.Sender})

	r.logger.Debugw("schema registered", "uid", record.UID, "registerer", msg.Sender, "resolver", resolver, "revocable", revocable)
	return record.UID, nil
}

// GetSchema returns the record for uid, or the zero record if it is not
// registered.
func (r *Registry) GetSchema(uid common.Hash) types.SchemaRecord {
	return r.records[uid]
}

// Count returns the number of registered schemas.
func (r *Registry) Count() int {
	return len(r.records)
}

// Restore loads a persisted record outside of any transaction. The UID is
// recomputed and must match.
func (r *Registry) Restore(record types.SchemaRecord) error {
	if want := SchemaUID(record.Schema, record.Resolver, record.Revocable); want != record.UID {
		return fmt.Errorf("schema record %s does not hash to its uid (want %s)", record.UID, want)
	}
	r.records[record.UID] = record
	return nil
}
