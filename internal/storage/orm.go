package storage

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/trufnetwork/attestation-registry/internal/types"
)

// Schema is a gorm table definition represents the registered schemas.
type Schema struct {
	ID         uint64 `gorm:"primary_key"`
	UID        string `gorm:"size:66;uniqueIndex"`
	Resolver   string `gorm:"size:42"`
	Revocable  bool
	Definition string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Attestation is a gorm table definition represents the attestations.
type Attestation struct {
	ID             uint64 `gorm:"primary_key"`
	UID            string `gorm:"size:66;uniqueIndex"`
	SchemaUID      string `gorm:"size:66;index"`
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	RefUID         string `gorm:"size:66"`
	Recipient      string `gorm:"size:42;index"`
	Attester       string `gorm:"size:42;index"`
	Revocable      bool
	Data           []byte `gorm:"type:mediumblob"`
	Value          string `gorm:"size:80"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Nonce is a gorm table definition represents the delegated signature nonces.
type Nonce struct {
	ID        uint64 `gorm:"primary_key"`
	Account   string `gorm:"size:42;uniqueIndex"`
	Nonce     uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account is a gorm table definition represents native balances.
type Account struct {
	ID        uint64 `gorm:"primary_key"`
	Address   string `gorm:"size:42;uniqueIndex"`
	Balance   string `gorm:"size:80"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChainStatus holds the height of the last persisted block. There is a
// single row with id 1.
type ChainStatus struct {
	ID        uint64 `gorm:"primary_key"`
	Height    uint64
	UpdatedAt time.Time
}

func schemaRow(r types.SchemaRecord) *Schema {
	return &Schema{
		UID:        r.UID.Hex(),
		Resolver:   r.Resolver.Hex(),
		Revocable:  r.Revocable,
		Definition: r.Schema,
	}
}

func (s *Schema) record() (types.SchemaRecord, error) {
	uid, err := parseHash(s.UID)
	if err != nil {
		return types.SchemaRecord{}, errors.Wrapf(err, "schema %d uid", s.ID)
	}
	if !common.IsHexAddress(s.Resolver) {
		return types.SchemaRecord{}, errors.Errorf("schema %s resolver %q is not an address", s.UID, s.Resolver)
	}
	return types.SchemaRecord{
		UID:       uid,
		Resolver:  common.HexToAddress(s.Resolver),
		Revocable: s.Revocable,
		Schema:    s.Definition,
	}, nil
}

func attestationRow(a types.Attestation) *Attestation {
	return &Attestation{
		UID:            a.UID.Hex(),
		SchemaUID:      a.Schema.Hex(),
		Time:           a.Time,
		ExpirationTime: a.ExpirationTime,
		RevocationTime: a.RevocationTime,
		RefUID:         a.RefUID.Hex(),
		Recipient:      a.Recipient.Hex(),
		Attester:       a.Attester.Hex(),
		Revocable:      a.Revocable,
		Data:           append([]byte(nil), a.Data...),
		Value:          types.ValueOf(a.Value).String(),
	}
}

func (a *Attestation) attestation() (types.Attestation, error) {
	uid, err := parseHash(a.UID)
	if err != nil {
		return types.Attestation{}, errors.Wrapf(err, "attestation %d uid", a.ID)
	}
	schema, err := parseHash(a.SchemaUID)
	if err != nil {
		return types.Attestation{}, errors.Wrapf(err, "attestation %s schema", a.UID)
	}
	ref, err := parseHash(a.RefUID)
	if err != nil {
		return types.Attestation{}, errors.Wrapf(err, "attestation %s ref uid", a.UID)
	}
	value, ok := new(big.Int).SetString(a.Value, 10)
	if !ok {
		return types.Attestation{}, errors.Errorf("attestation %s value %q is not a number", a.UID, a.Value)
	}
	return types.Attestation{
		UID:            uid,
		Schema:         schema,
		Time:           a.Time,
		ExpirationTime: a.ExpirationTime,
		RevocationTime: a.RevocationTime,
		RefUID:         ref,
		Recipient:      common.HexToAddress(a.Recipient),
		Attester:       common.HexToAddress(a.Attester),
		Revocable:      a.Revocable,
		Data:           append([]byte(nil), a.Data...),
		Value:          value,
	}, nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, errors.Errorf("hash %q has %d bytes", s, len(b))
	}
	return common.BytesToHash(b), nil
}
