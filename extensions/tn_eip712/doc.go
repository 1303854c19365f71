// Package tn_eip712 authenticates delegated attestations and revocations.
//
// A signer produces an EIP-712 signature over an "Attest" or "Revoke" intent
// bound to this deployment's domain (name, version, chain id and the ledger
// address). The relayer submits it together with the signer's address, and
// the Verifier:
// 1. Builds the typed digest with the signer's current nonce
// 2. Increments the nonce (journaled on the host transaction)
// 3. Recovers the signer from the 65-byte [R || S || V] signature
// 4. Rejects the call if the recovered address is zero or differs
//
// Because the increment is journaled, a rejected signature aborts the
// enclosing transaction and the nonce slot is not consumed. A signature that
// succeeded once can never be replayed.
//
// Key components:
// - Verifier: domain separator, nonce table, digest builders
// - Signer: client-side secp256k1 signing with EVM-compatible V
package tn_eip712
