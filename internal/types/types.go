// Package types holds the records and request shapes shared by the registry,
// the ledger, the resolvers and the verifier.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EmptyUID is the reserved identifier meaning "no record".
var EmptyUID = common.Hash{}

// NoExpirationTime marks an attestation that never expires.
const NoExpirationTime uint64 = 0

// SchemaRecord is an immutable registered schema. The zero value means the
// schema is not registered.
type SchemaRecord struct {
	UID       common.Hash
	Resolver  common.Address
	Revocable bool
	Schema    string
}

// Exists reports whether r is a registered schema.
func (r SchemaRecord) Exists() bool {
	return r.UID != EmptyUID
}

// HasResolver reports whether the schema binds a resolver.
func (r SchemaRecord) HasResolver() bool {
	return r.Resolver != (common.Address{})
}

// Attestation is a claim issued under a schema. RevocationTime is zero while
// the attestation is active.
type Attestation struct {
	UID            common.Hash
	Schema         common.Hash
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	RefUID         common.Hash
	Recipient      common.Address
	Attester       common.Address
	Revocable      bool
	Data           []byte
	Value          *big.Int
}

// Exists reports whether a is a stored attestation.
func (a Attestation) Exists() bool {
	return a.UID != EmptyUID
}

// Revoked reports whether a reached its terminal state.
func (a Attestation) Revoked() bool {
	return a.RevocationTime != 0
}

// Clone returns a deep copy of a.
func (a Attestation) Clone() Attestation {
	c := a
	c.Data = append([]byte(nil), a.Data...)
	if a.Value != nil {
		c.Value = new(big.Int).Set(a.Value)
	}
	return c
}

// AttestationRequestData is a single attestation to create.
type AttestationRequestData struct {
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         common.Hash
	Data           []byte
	Value          *big.Int
}

// AttestationRequest is a single attest call.
type AttestationRequest struct {
	Schema common.Hash
	Data   AttestationRequestData
}

// MultiAttestationRequest groups attestations sharing a schema.
type MultiAttestationRequest struct {
	Schema common.Hash
	Data   []AttestationRequestData
}

// DelegatedAttestationRequest is an attest call signed by Attester and
// submitted by somebody else.
type DelegatedAttestationRequest struct {
	Schema    common.Hash
	Data      AttestationRequestData
	Signature []byte
	Attester  common.Address
}

// MultiDelegatedAttestationRequest groups delegated attestations sharing a
// schema and an attester. Signatures[i] covers Data[i].
type MultiDelegatedAttestationRequest struct {
	Schema     common.Hash
	Data       []AttestationRequestData
	Signatures [][]byte
	Attester   common.Address
}

// RevocationRequestData is a single revocation.
type RevocationRequestData struct {
	UID   common.Hash
	Value *big.Int
}

// RevocationRequest is a single revoke call.
type RevocationRequest struct {
	Schema common.Hash
	Data   RevocationRequestData
}

// MultiRevocationRequest groups revocations sharing a schema.
type MultiRevocationRequest struct {
	Schema common.Hash
	Data   []RevocationRequestData
}

// DelegatedRevocationRequest is a revoke call signed by Revoker.
type DelegatedRevocationRequest struct {
	Schema    common.Hash
	Data      RevocationRequestData
	Signature []byte
	Revoker   common.Address
}

// MultiDelegatedRevocationRequest groups delegated revocations sharing a
// schema and a revoker. Signatures[i] covers Data[i].
type MultiDelegatedRevocationRequest struct {
	Schema     common.Hash
	Data       []RevocationRequestData
	Signatures [][]byte
	Revoker    common.Address
}

// ValueOf returns v, or zero when v is nil.
func ValueOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
