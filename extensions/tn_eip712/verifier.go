package tn_eip712

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// ErrInvalidNonce is returned by IncreaseNonce when the new nonce does not
// move forward.
var ErrInvalidNonce = errors.New("invalid nonce")

// NonceIncreased is emitted whenever an account's nonce moves forward.
type NonceIncreased struct {
	Account  common.Address
	OldNonce uint64
	NewNonce uint64
}

func (NonceIncreased) EventName() string { return "NonceIncreased" }

// Verifier owns the nonce table and checks delegated signatures.
type Verifier struct {
	domain          Domain
	domainSeparator common.Hash
	nonces          map[common.Address]uint64
}

// NewVerifier computes the domain separator once and returns an empty
// verifier.
func NewVerifier(domain Domain) (*Verifier, error) {
	if err := domain.validate(); err != nil {
		return nil, err
	}
	td := domain.typedData(primaryAttest, nil)
	sep, err := td.HashStruct(domainType, td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash eip712 domain: %w", err)
	}
	return &Verifier{
		domain:          domain,
		domainSeparator: common.BytesToHash(sep),
		nonces:          make(map[common.Address]uint64),
	}, nil
}

// Domain returns the domain the verifier is bound to.
func (v *Verifier) Domain() Domain { return v.domain }

// DomainSeparator returns the EIP-712 domain separator.
func (v *Verifier) DomainSeparator() common.Hash { return v.domainSeparator }

// GetNonce returns the nonce the next signature of account must use.
func (v *Verifier) GetNonce(account common.Address) uint64 {
	return v.nonces[account]
}

// AttestDigest returns the digest an attester signs for one attestation.
func (v *Verifier) AttestDigest(schema common.Hash, data types.AttestationRequestData, nonce uint64) (common.Hash, error) {
	return typedDigest(v.domainSeparator, v.domain.typedData(primaryAttest, attestMessage(schema, data, nonce)))
}

// RevokeDigest returns the digest a revoker signs for one revocation.
func (v *Verifier) RevokeDigest(uid common.Hash, nonce uint64) (common.Hash, error) {
	return typedDigest(v.domainSeparator, v.domain.typedData(primaryRevoke, revokeMessage(uid, nonce)))
}

// VerifyAttest checks that req was signed by req.Attester and consumes one
// nonce of the attester.
func (v *Verifier) VerifyAttest(tx *host.Tx, req types.DelegatedAttestationRequest) error {
	nonce := v.consumeNonce(tx, req.Attester)
	digest, err := v.AttestDigest(req.Schema, req.Data, nonce)
	if err != nil {
		return err
	}
	return checkSigner(digest, req.Signature, req.Attester)
}

// VerifyRevoke checks that req was signed by req.Revoker and consumes one
// nonce of the revoker.
func (v *Verifier) VerifyRevoke(tx *host.Tx, req types.DelegatedRevocationRequest) error {
	nonce := v.consumeNonce(tx, req.Revoker)
	digest, err := v.RevokeDigest(req.Data.UID, nonce)
	if err != nil {
		return err
	}
	return checkSigner(digest, req.Signature, req.Revoker)
}

// IncreaseNonce lets an account invalidate every outstanding signature that
// uses a nonce below newNonce.
func (v *Verifier) IncreaseNonce(tx *host.Tx, account common.Address, newNonce uint64) error {
	old := v.nonces[account]
	if newNonce <= old {
		return fmt.Errorf("%w: new nonce %d must exceed current nonce %d", ErrInvalidNonce, newNonce, old)
	}
	v.setNonce(tx, account, newNonce)
	return nil
}

// Restore loads a persisted nonce outside of any transaction.
func (v *Verifier) Restore(account common.Address, nonce uint64) {
	v.nonces[account] = nonce
}

// consumeNonce returns the current nonce and moves it forward. The increment
// happens before the signature is checked; a rejection reverts it together
// with the rest of the transaction.
func (v *Verifier) consumeNonce(tx *host.Tx, account common.Address) uint64 {
	nonce := v.nonces[account]
	v.setNonce(tx, account, nonce+1)
	return nonce
}

func (v *Verifier) setNonce(tx *host.Tx, account common.Address, nonce uint64) {
	prev, existed := v.nonces[account]
	v.nonces[account] = nonce
	tx.Journal(func() {
		if existed {
			v.nonces[account] = prev
		} else {
			delete(v.nonces, account)
		}
	})
	tx.Emit(NonceIncreased{Account: account, OldNonce: prev, NewNonce: nonce})
}

func checkSigner(digest common.Hash, signature []byte, expected common.Address) error {
	recovered, err := RecoverSigner(digest, signature)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidSignature, err)
	}
	if recovered == (common.Address{}) || recovered != expected {
		return fmt.Errorf("%w: recovered %s, expected %s", errs.ErrInvalidSignature, recovered, expected)
	}
	return nil
}

// RecoverSigner returns the address that produced signature over digest.
// Signatures must be 65 bytes [R || S || V] with V in {0,1,27,28} and a low S.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	normSignature := append([]byte(nil), signature...)
	recoveryID, err := toCompactRecoveryID(normSignature[64])
	if err != nil {
		return common.Address{}, fmt.Errorf("normalise recovery id: %w", err)
	}
	normSignature[64] = recoveryID

	r := new(big.Int).SetBytes(normSignature[:32])
	s := new(big.Int).SetBytes(normSignature[32:64])
	if !crypto.ValidateSignatureValues(recoveryID, r, s, true) {
		return common.Address{}, fmt.Errorf("signature values out of range")
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normSignature)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key from signature: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func toCompactRecoveryID(v byte) (byte, error) {
	switch {
	case v <= 1:
		return v, nil
	case v == 27 || v == 28:
		return v - 27, nil
	default:
		return 0, fmt.Errorf("invalid recovery id %d", v)
	}
}
