package errs

import (
	"errors"
	"fmt"
)

// Primary failure kinds.
var (
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidAttestation = errors.New("invalid attestation")
	ErrInvalidRevocation  = errors.New("invalid revocation")
	ErrInsufficientValue  = errors.New("insufficient value")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// ErrNotPayable marks value sent to a schema whose resolver cannot take it.
// It carries no kind of its own; see NotPayable.
var ErrNotPayable = errors.New("resolver is not payable")

// Refinements. Each one wraps a primary kind.
var (
	ErrInvalidSchema         = fmt.Errorf("%w: unknown schema", ErrInvalidAttestation)
	ErrInvalidExpirationTime = fmt.Errorf("%w: expiration time is not in the future", ErrInvalidAttestation)
	ErrIrrevocable           = fmt.Errorf("%w: attestation is not revocable", ErrInvalidRevocation)
	ErrNotFound              = fmt.Errorf("%w: attestation not found", ErrInvalidRevocation)
	ErrAlreadyRevoked        = fmt.Errorf("%w: attestation already revoked", ErrInvalidRevocation)
	ErrAccessDenied          = fmt.Errorf("%w: access denied", ErrInvalidRevocation)
)

// Kind names used on the wire.
const (
	KindAlreadyExists      = "AlreadyExists"
	KindInvalidAttestation = "InvalidAttestation"
	KindInvalidRevocation  = "InvalidRevocation"
	KindInsufficientValue  = "InsufficientValue"
	KindInvalidSignature   = "InvalidSignature"
	KindInternal           = "Internal"
)

var kinds = []struct {
	err  error
	name string
}{
	// InsufficientValue is checked first: a resolver may report it from inside
	// an attest or revoke, and the ledger wraps it with the operation kind.
	{ErrInsufficientValue, KindInsufficientValue},
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrInvalidAttestation, KindInvalidAttestation},
	{ErrInvalidRevocation, KindInvalidRevocation},
}

// Kind returns the stable name of the failure kind carried by err, or
// KindInternal when err does not wrap any of the declared kinds.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return KindInternal
}

// NotPayable builds the error returned when value is forwarded to a schema
// whose resolver cannot accept it. base is ErrInvalidAttestation or
// ErrInvalidRevocation depending on the operation.
func NotPayable(base error) error {
	return fmt.Errorf("%w: %w", base, ErrNotPayable)
}

// IsUserError reports whether err is one of the declared kinds, as opposed to
// an infrastructure failure.
func IsUserError(err error) bool {
	k := Kind(err)
	return k != "" && k != KindInternal
}
