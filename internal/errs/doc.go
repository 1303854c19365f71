// Package errs declares the failure kinds surfaced by the attestation registry.
//
// Error Handling Strategy:
//
// Every failure aborts the enclosing host transaction. There are no partial
// commits and no retries at this layer; callers resubmit with corrected
// parameters.
//
// Kinds:
//
//  1. ErrAlreadyExists: duplicate schema registration.
//  2. ErrInvalidAttestation: resolver rejection, malformed expiration,
//     disallowed forwarded value.
//  3. ErrInvalidRevocation: irrevocable attestation, unknown attestation,
//     resolver rejection.
//  4. ErrInsufficientValue: forwarded value below the required amount.
//  5. ErrInvalidSignature: recovered signer mismatch or zero address.
//
// Refinements (ErrNotPayable, ErrAccessDenied, ...) wrap one of the kinds
// above, so errors.Is(err, ErrInvalidRevocation) holds for an
// ErrAccessDenied failure. Use Kind to obtain the stable transport name.
//
// Usage:
//
//	if err := ledger.Revoke(tx, msg, req); err != nil {
//	    if errors.Is(err, errs.ErrInsufficientValue) {
//	        // ask the caller to send more
//	    }
//	    return err
//	}
package errs
