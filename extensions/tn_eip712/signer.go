package tn_eip712

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trufnetwork/attestation-registry/internal/types"
)

// Signer produces delegated-request signatures with a secp256k1 key.
// It is safe for concurrent use.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	mu         sync.RWMutex
}

// NewSigner wraps an ECDSA private key.
func NewSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	return &Signer{privateKey: privateKey}, nil
}

// NewSignerFromHex parses a hex-encoded secp256k1 private key.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewSigner(key)
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewSigner(key)
}

// SignDigest signs the 32-byte digest and returns a 65-byte signature with V
// in {27,28}.
func (s *Signer) SignDigest(digest common.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	signature, err := crypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	// crypto.Sign returns V in {0,1}.
	signature[64] = (signature[64] & 1) + 27
	return signature, nil
}

// SignAttest signs an attestation intent for verifier's domain at nonce.
func (s *Signer) SignAttest(v *Verifier, schema common.Hash, data types.AttestationRequestData, nonce uint64) ([]byte, error) {
	digest, err := v.AttestDigest(schema, data, nonce)
	if err != nil {
		return nil, err
	}
	return s.SignDigest(digest)
}

// SignRevoke signs a revocation intent for verifier's domain at nonce.
func (s *Signer) SignRevoke(v *Verifier, uid common.Hash, nonce uint64) ([]byte, error) {
	digest, err := v.RevokeDigest(uid, nonce)
	if err != nil {
		return nil, err
	}
	return s.SignDigest(digest)
}

// Address returns the Ethereum address of the key.
func (s *Signer) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}
