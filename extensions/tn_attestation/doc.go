// Package tn_attestation implements the attestation ledger.
//
// An attestation moves through Unset -> Active -> Revoked. The ledger:
// 1. Validates requests against the schema registry
// 2. Reserves forwarded value against what the caller sent
// 3. Credits the value to the schema's resolver and calls its hook
// 4. Commits the record and emits Attested or Revoked
//
// Every public method runs inside a host transaction snapshot. A failure
// reverts the whole call, including work done by re-entrant resolver calls.
//
// Delegated variants verify an EIP-712 signature through tn_eip712 first and
// then act as the signer.
package tn_attestation
