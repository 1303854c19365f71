// Package tn_resolver defines the callback a schema binds to and the
// resolvers shipped with the registry.
//
// The ledger calls OnAttest or OnRevoke once per request, after the request
// value has been moved into the resolver's account and before the ledger
// commits the new state. Returning an error aborts the whole enclosing
// operation, including every other request of a batch.
//
// Variants:
// - NoOp: accepts everything, never takes value
// - Recipient: accepts attestations about one recipient
// - FieldPredicate: decodes the attestation data and checks one field
// - TokenEscrow: pulls a fixed token amount from the attester
// - PayingIncentive: pays attesters from its own balance, repaid on revoke
package tn_resolver
