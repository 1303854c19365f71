package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
	"github.com/trufnetwork/attestation-registry/internal/units"
)

// Amounts are decimal ether strings. Byte fields are 0x-prefixed hex.

type uidURI struct {
	UID string `uri:"uid" binding:"required,bytes32"`
}

type addressURI struct {
	Address string `uri:"address" binding:"required,address"`
}

type noParams struct{}

// call is embedded by every mutating request.
type call struct {
	From  string `json:"from" binding:"required,address"`
	Value string `json:"value" binding:"omitempty,ether"`
}

type registerSchemaReq struct {
	From      string `json:"from" binding:"required,address"`
	Schema    string `json:"schema"`
	Resolver  string `json:"resolver" binding:"omitempty,address"`
	Revocable bool   `json:"revocable"`
}

type increaseNonceReq struct {
	From  string `json:"from" binding:"required,address"`
	Nonce uint64 `json:"nonce" binding:"required"`
}

type attestationData struct {
	Recipient      string `json:"recipient" binding:"omitempty,address"`
	ExpirationTime uint64 `json:"expiration_time"`
	Revocable      bool   `json:"revocable"`
	RefUID         string `json:"ref_uid" binding:"omitempty,bytes32"`
	Data           string `json:"data" binding:"omitempty,hexbytes"`
	Value          string `json:"value" binding:"omitempty,ether"`
}

type attestReq struct {
	call
	Schema string          `json:"schema" binding:"required,bytes32"`
	Data   attestationData `json:"data"`
}

type attestationGroup struct {
	Schema string            `json:"schema" binding:"required,bytes32"`
	Data   []attestationData `json:"data" binding:"required,min=1,dive"`
}

type multiAttestReq struct {
	call
	Requests []attestationGroup `json:"requests" binding:"required,min=1,dive"`
}

type delegatedAttestReq struct {
	call
	Schema    string          `json:"schema" binding:"required,bytes32"`
	Data      attestationData `json:"data"`
	Signature string          `json:"signature" binding:"required,hexbytes"`
	Attester  string          `json:"attester" binding:"required,address"`
}

type delegatedAttestationGroup struct {
	Schema     string            `json:"schema" binding:"required,bytes32"`
	Data       []attestationData `json:"data" binding:"required,min=1,dive"`
	Signatures []string          `json:"signatures" binding:"required,dive,hexbytes"`
	Attester   string            `json:"attester" binding:"required,address"`
}

type multiDelegatedAttestReq struct {
	call
	Requests []delegatedAttestationGroup `json:"requests" binding:"required,min=1,dive"`
}

type revocationData struct {
	UID   string `json:"uid" binding:"required,bytes32"`
	Value string `json:"value" binding:"omitempty,ether"`
}

type revokeReq struct {
	call
	Schema string         `json:"schema" binding:"required,bytes32"`
	Data   revocationData `json:"data"`
}

type revocationGroup struct {
	Schema string           `json:"schema" binding:"required,bytes32"`
	Data   []revocationData `json:"data" binding:"required,min=1,dive"`
}

type multiRevokeReq struct {
	call
	Requests []revocationGroup `json:"requests" binding:"required,min=1,dive"`
}

type delegatedRevokeReq struct {
	call
	Schema    string         `json:"schema" binding:"required,bytes32"`
	Data      revocationData `json:"data"`
	Signature string         `json:"signature" binding:"required,hexbytes"`
	Revoker   string         `json:"revoker" binding:"required,address"`
}

type delegatedRevocationGroup struct {
	Schema     string           `json:"schema" binding:"required,bytes32"`
	Data       []revocationData `json:"data" binding:"required,min=1,dive"`
	Signatures []string         `json:"signatures" binding:"required,dive,hexbytes"`
	Revoker    string           `json:"revoker" binding:"required,address"`
}

type multiDelegatedRevokeReq struct {
	call
	Requests []delegatedRevocationGroup `json:"requests" binding:"required,min=1,dive"`
}

type txResp struct {
	TxID   string `json:"tx_id"`
	Height uint64 `json:"height"`
}

func newTxResp(r host.Receipt) txResp {
	return txResp{TxID: r.TxID.String(), Height: r.Height}
}

type uidResp struct {
	txResp
	UID string `json:"uid"`
}

type uidsResp struct {
	txResp
	UIDs []string `json:"uids"`
}

type schemaResp struct {
	UID       string `json:"uid"`
	Schema    string `json:"schema"`
	Resolver  string `json:"resolver"`
	Revocable bool   `json:"revocable"`
}

type attestationResp struct {
	UID            string `json:"uid"`
	Schema         string `json:"schema"`
	Time           uint64 `json:"time"`
	ExpirationTime uint64 `json:"expiration_time"`
	RevocationTime uint64 `json:"revocation_time"`
	RefUID         string `json:"ref_uid"`
	Recipient      string `json:"recipient"`
	Attester       string `json:"attester"`
	Revocable      bool   `json:"revocable"`
	Revoked        bool   `json:"revoked"`
	Data           string `json:"data"`
	Value          string `json:"value"`
}

func newAttestationResp(a types.Attestation) *attestationResp {
	return &attestationResp{
		UID:            a.UID.Hex(),
		Schema:         a.Schema.Hex(),
		Time:           a.Time,
		ExpirationTime: a.ExpirationTime,
		RevocationTime: a.RevocationTime,
		RefUID:         a.RefUID.Hex(),
		Recipient:      a.Recipient.Hex(),
		Attester:       a.Attester.Hex(),
		Revocable:      a.Revocable,
		Revoked:        a.Revoked(),
		Data:           hexutil.Encode(a.Data),
		Value:          units.FormatEther(a.Value),
	}
}

type domainResp struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
	Separator         string `json:"separator"`
	AttestType        string `json:"attest_type"`
	RevokeType        string `json:"revoke_type"`
}

type nonceResp struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

type accountResp struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// Validation already ran, so the conversions below only fail on values the
// tags cannot express.

func (c call) parse() (common.Address, *big.Int, error) {
	value, err := units.ParseEther(c.Value)
	if err != nil {
		return common.Address{}, nil, err
	}
	return common.HexToAddress(c.From), value, nil
}

func (d attestationData) toRequest() (types.AttestationRequestData, error) {
	out := types.AttestationRequestData{
		Recipient:      common.HexToAddress(d.Recipient),
		ExpirationTime: d.ExpirationTime,
		Revocable:      d.Revocable,
		RefUID:         common.HexToHash(d.RefUID),
	}
	if d.Data != "" {
		data, err := hexutil.Decode(d.Data)
		if err != nil {
			return out, err
		}
		out.Data = data
	}
	value, err := units.ParseEther(d.Value)
	if err != nil {
		return out, err
	}
	out.Value = value
	return out, nil
}

func toRequests(data []attestationData) ([]types.AttestationRequestData, error) {
	out := make([]types.AttestationRequestData, len(data))
	for i, d := range data {
		var err error
		if out[i], err = d.toRequest(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d revocationData) toRequest() (types.RevocationRequestData, error) {
	value, err := units.ParseEther(d.Value)
	if err != nil {
		return types.RevocationRequestData{}, err
	}
	return types.RevocationRequestData{UID: common.HexToHash(d.UID), Value: value}, nil
}

func toRevocations(data []revocationData) ([]types.RevocationRequestData, error) {
	out := make([]types.RevocationRequestData, len(data))
	for i, d := range data {
		var err error
		if out[i], err = d.toRequest(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeSignatures(sigs []string) ([][]byte, error) {
	out := make([][]byte, len(sigs))
	for i, s := range sigs {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func hexes(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	return out
}
