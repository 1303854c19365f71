package tn_eip712

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/trufnetwork/attestation-registry/internal/types"
)

const (
	primaryAttest = "Attest"
	primaryRevoke = "Revoke"
	domainType    = "EIP712Domain"
)

// AttestTypeString and RevokeTypeString are the canonical EIP-712 type
// encodings signed by wallets.
const (
	AttestTypeString = "Attest(bytes32 schema,address recipient,uint64 expirationTime,bool revocable,bytes32 refUID,bytes data,uint256 nonce)"
	RevokeTypeString = "Revoke(bytes32 uid,uint256 nonce)"
)

var typedDataTypes = apitypes.Types{
	domainType: {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryAttest: {
		{Name: "schema", Type: "bytes32"},
		{Name: "recipient", Type: "address"},
		{Name: "expirationTime", Type: "uint64"},
		{Name: "revocable", Type: "bool"},
		{Name: "refUID", Type: "bytes32"},
		{Name: "data", Type: "bytes"},
		{Name: "nonce", Type: "uint256"},
	},
	primaryRevoke: {
		{Name: "uid", Type: "bytes32"},
		{Name: "nonce", Type: "uint256"},
	},
}

// Domain identifies the deployment signatures are bound to.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

func (d Domain) typedDomain() apitypes.TypedDataDomain {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

func (d Domain) validate() error {
	if d.Name == "" {
		return fmt.Errorf("domain name cannot be empty")
	}
	if d.Version == "" {
		return fmt.Errorf("domain version cannot be empty")
	}
	if d.ChainID == nil || d.ChainID.Sign() <= 0 {
		return fmt.Errorf("domain chain id must be positive")
	}
	if d.VerifyingContract == (common.Address{}) {
		return fmt.Errorf("domain verifying contract cannot be the zero address")
	}
	return nil
}

// typedData returns an envelope for primaryType; callers fill Message.
func (d Domain) typedData(primaryType string, message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: primaryType,
		Domain:      d.typedDomain(),
		Message:     message,
	}
}

func attestMessage(schema common.Hash, data types.AttestationRequestData, nonce uint64) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"schema":         schema.Hex(),
		"recipient":      data.Recipient.Hex(),
		"expirationTime": strconv.FormatUint(data.ExpirationTime, 10),
		"revocable":      data.Revocable,
		"refUID":         data.RefUID.Hex(),
		"data":           append([]byte{}, data.Data...),
		"nonce":          strconv.FormatUint(nonce, 10),
	}
}

func revokeMessage(uid common.Hash, nonce uint64) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"uid":   uid.Hex(),
		"nonce": strconv.FormatUint(nonce, 10),
	}
}

// typedDigest computes keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func typedDigest(domainSeparator common.Hash, td apitypes.TypedData) (common.Hash, error) {
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash %s struct: %w", td.PrimaryType, err)
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash), nil
}
