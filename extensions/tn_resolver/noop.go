package tn_resolver

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trufnetwork/attestation-registry/extensions/tn_schema"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// NoOp accepts every attestation and revocation.
type NoOp struct {
	address common.Address
}

func NewNoOp(address common.Address) *NoOp { return &NoOp{address: address} }

func (r *NoOp) Address() common.Address { return r.address }
func (r *NoOp) IsPayable() bool         { return false }

func (r *NoOp) OnAttest(tx *host.Tx, att types.Attestation, value *big.Int) error {
	return rejectValue(value)
}

func (r *NoOp) OnRevoke(tx *host.Tx, att types.Attestation, value *big.Int) error {
	return rejectValue(value)
}

// Recipient only accepts attestations about a single recipient.
type Recipient struct {
	address   common.Address
	recipient common.Address
}

func NewRecipient(address, recipient common.Address) *Recipient {
	return &Recipient{address: address, recipient: recipient}
}

func (r *Recipient) Address() common.Address { return r.address }
func (r *Recipient) IsPayable() bool         { return false }

func (r *Recipient) OnAttest(tx *host.Tx, att types.Attestation, value *big.Int) error {
	if err := rejectValue(value); err != nil {
		return err
	}
	if att.Recipient != r.recipient {
		return fmt.Errorf("%w: recipient %s is not %s", ErrRejected, att.Recipient, r.recipient)
	}
	return nil
}

func (r *Recipient) OnRevoke(tx *host.Tx, att types.Attestation, value *big.Int) error {
	return rejectValue(value)
}

// FieldPredicate decodes attestation data with the schema's ABI layout and
// accepts the attestation when check returns true for the named field.
type FieldPredicate struct {
	address common.Address
	schema  string
	field   string
	check   func(v any) bool
}

// NewFieldPredicate validates that schema declares field.
func NewFieldPredicate(address common.Address, schema, field string, check func(v any) bool) (*FieldPredicate, error) {
	args, err := tn_schema.ParseFields(schema)
	if err != nil {
		return nil, err
	}
	found := false
	for _, arg := range args {
		if arg.Name == field {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("schema %q has no field %q", schema, field)
	}
	return &FieldPredicate{address: address, schema: schema, field: field, check: check}, nil
}

func (r *FieldPredicate) Address() common.Address { return r.address }
func (r *FieldPredicate) IsPayable() bool         { return false }

func (r *FieldPredicate) OnAttest(tx *host.Tx, att types.Attestation, value *big.Int) error {
	if err := rejectValue(value); err != nil {
		return err
	}
	fields, err := tn_schema.DecodeData(r.schema, att.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if !r.check(fields[r.field]) {
		return fmt.Errorf("%w: field %q failed check", ErrRejected, r.field)
	}
	return nil
}

func (r *FieldPredicate) OnRevoke(tx *host.Tx, att types.Attestation, value *big.Int) error {
	return rejectValue(value)
}
