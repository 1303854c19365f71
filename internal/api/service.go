package api

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/trufnetwork/attestation-registry/extensions/tn_eip712"
	"github.com/trufnetwork/attestation-registry/internal/types"
	"github.com/trufnetwork/attestation-registry/internal/units"
)

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// domain handles GET /v1/domain.
func (s *Server) domain(_ *gin.Context, _ *noParams) (*domainResp, error) {
	d, sep := s.backend.Domain()
	return &domainResp{
		Name:              d.Name,
		Version:           d.Version,
		ChainID:           d.ChainID.String(),
		VerifyingContract: d.VerifyingContract.Hex(),
		Separator:         sep.Hex(),
		AttestType:        tn_eip712.AttestTypeString,
		RevokeType:        tn_eip712.RevokeTypeString,
	}, nil
}

// nonce handles GET /v1/nonces/:address.
func (s *Server) nonce(_ *gin.Context, req *addressURI) (*nonceResp, error) {
	addr := common.HexToAddress(req.Address)
	return &nonceResp{Address: addr.Hex(), Nonce: s.backend.GetNonce(addr)}, nil
}

// increaseNonce handles POST /v1/nonces.
func (s *Server) increaseNonce(c *gin.Context, req *increaseNonceReq) (*txResp, error) {
	receipt, err := s.backend.IncreaseNonce(c.Request.Context(), common.HexToAddress(req.From), req.Nonce)
	if err != nil {
		return nil, err
	}
	resp := newTxResp(receipt)
	return &resp, nil
}

// account handles GET /v1/accounts/:address.
func (s *Server) account(_ *gin.Context, req *addressURI) (*accountResp, error) {
	addr := common.HexToAddress(req.Address)
	return &accountResp{Address: addr.Hex(), Balance: units.FormatEther(s.backend.Balance(addr))}, nil
}

// registerSchema handles POST /v1/schemas.
func (s *Server) registerSchema(c *gin.Context, req *registerSchemaReq) (*uidResp, error) {
	uid, receipt, err := s.backend.RegisterSchema(
		c.Request.Context(),
		common.HexToAddress(req.From),
		req.Schema,
		common.HexToAddress(req.Resolver),
		req.Revocable,
	)
	if err != nil {
		return nil, err
	}
	return &uidResp{txResp: newTxResp(receipt), UID: uid.Hex()}, nil
}

// schema handles GET /v1/schemas/:uid.
func (s *Server) schema(_ *gin.Context, req *uidURI) (*schemaResp, error) {
	rec := s.backend.GetSchema(common.HexToHash(req.UID))
	if !rec.Exists() {
		return nil, fmt.Errorf("%w: schema %s", errNotFound, req.UID)
	}
	return &schemaResp{
		UID:       rec.UID.Hex(),
		Schema:    rec.Schema,
		Resolver:  rec.Resolver.Hex(),
		Revocable: rec.Revocable,
	}, nil
}

// attestation handles GET /v1/attestations/:uid.
func (s *Server) attestation(_ *gin.Context, req *uidURI) (*attestationResp, error) {
	att := s.backend.GetAttestation(common.HexToHash(req.UID))
	if !att.Exists() {
		return nil, fmt.Errorf("%w: attestation %s", errNotFound, req.UID)
	}
	return newAttestationResp(att), nil
}

// attest handles POST /v1/attestations.
func (s *Server) attest(c *gin.Context, req *attestReq) (*uidResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	data, err := req.Data.toRequest()
	if err != nil {
		return nil, badRequest(err)
	}

	uid, receipt, err := s.backend.Attest(c.Request.Context(), from, value, types.AttestationRequest{
		Schema: common.HexToHash(req.Schema),
		Data:   data,
	})
	if err != nil {
		return nil, err
	}
	return &uidResp{txResp: newTxResp(receipt), UID: uid.Hex()}, nil
}

// multiAttest handles POST /v1/attestations/multi.
func (s *Server) multiAttest(c *gin.Context, req *multiAttestReq) (*uidsResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	reqs := make([]types.MultiAttestationRequest, len(req.Requests))
	for i, g := range req.Requests {
		data, err := toRequests(g.Data)
		if err != nil {
			return nil, badRequest(err)
		}
		reqs[i] = types.MultiAttestationRequest{Schema: common.HexToHash(g.Schema), Data: data}
	}

	uids, receipt, err := s.backend.MultiAttest(c.Request.Context(), from, value, reqs)
	if err != nil {
		return nil, err
	}
	return &uidsResp{txResp: newTxResp(receipt), UIDs: hexes(uids)}, nil
}

// attestByDelegation handles POST /v1/attestations/delegated.
func (s *Server) attestByDelegation(c *gin.Context, req *delegatedAttestReq) (*uidResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	data, err := req.Data.toRequest()
	if err != nil {
		return nil, badRequest(err)
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, badRequest(err)
	}

	uid, receipt, err := s.backend.AttestByDelegation(c.Request.Context(), from, value, types.DelegatedAttestationRequest{
		Schema:    common.HexToHash(req.Schema),
		Data:      data,
		Signature: sig,
		Attester:  common.HexToAddress(req.Attester),
	})
	if err != nil {
		return nil, err
	}
	return &uidResp{txResp: newTxResp(receipt), UID: uid.Hex()}, nil
}

// multiAttestByDelegation handles POST /v1/attestations/multi/delegated.
func (s *Server) multiAttestByDelegation(c *gin.Context, req *multiDelegatedAttestReq) (*uidsResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	reqs := make([]types.MultiDelegatedAttestationRequest, len(req.Requests))
	for i, g := range req.Requests {
		data, err := toRequests(g.Data)
		if err != nil {
			return nil, badRequest(err)
		}
		sigs, err := decodeSignatures(g.Signatures)
		if err != nil {
			return nil, badRequest(err)
		}
		reqs[i] = types.MultiDelegatedAttestationRequest{
			Schema:     common.HexToHash(g.Schema),
			Data:       data,
			Signatures: sigs,
			Attester:   common.HexToAddress(g.Attester),
		}
	}

	uids, receipt, err := s.backend.MultiAttestByDelegation(c.Request.Context(), from, value, reqs)
	if err != nil {
		return nil, err
	}
	return &uidsResp{txResp: newTxResp(receipt), UIDs: hexes(uids)}, nil
}

// revoke handles POST /v1/revocations.
func (s *Server) revoke(c *gin.Context, req *revokeReq) (*txResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	data, err := req.Data.toRequest()
	if err != nil {
		return nil, badRequest(err)
	}

	receipt, err := s.backend.Revoke(c.Request.Context(), from, value, types.RevocationRequest{
		Schema: common.HexToHash(req.Schema),
		Data:   data,
	})
	if err != nil {
		return nil, err
	}
	resp := newTxResp(receipt)
	return &resp, nil
}

// multiRevoke handles POST /v1/revocations/multi.
func (s *Server) multiRevoke(c *gin.Context, req *multiRevokeReq) (*txResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	reqs := make([]types.MultiRevocationRequest, len(req.Requests))
	for i, g := range req.Requests {
		data, err := toRevocations(g.Data)
		if err != nil {
			return nil, badRequest(err)
		}
		reqs[i] = types.MultiRevocationRequest{Schema: common.HexToHash(g.Schema), Data: data}
	}

	receipt, err := s.backend.MultiRevoke(c.Request.Context(), from, value, reqs)
	if err != nil {
		return nil, err
	}
	resp := newTxResp(receipt)
	return &resp, nil
}

// revokeByDelegation handles POST /v1/revocations/delegated.
func (s *Server) revokeByDelegation(c *gin.Context, req *delegatedRevokeReq) (*txResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	data, err := req.Data.toRequest()
	if err != nil {
		return nil, badRequest(err)
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, badRequest(err)
	}

	receipt, err := s.backend.RevokeByDelegation(c.Request.Context(), from, value, types.DelegatedRevocationRequest{
		Schema:    common.HexToHash(req.Schema),
		Data:      data,
		Signature: sig,
		Revoker:   common.HexToAddress(req.Revoker),
	})
	if err != nil {
		return nil, err
	}
	resp := newTxResp(receipt)
	return &resp, nil
}

// multiRevokeByDelegation handles POST /v1/revocations/multi/delegated.
func (s *Server) multiRevokeByDelegation(c *gin.Context, req *multiDelegatedRevokeReq) (*txResp, error) {
	from, value, err := req.parse()
	if err != nil {
		return nil, badRequest(err)
	}
	reqs := make([]types.MultiDelegatedRevocationRequest, len(req.Requests))
	for i, g := range req.Requests {
		data, err := toRevocations(g.Data)
		if err != nil {
			return nil, badRequest(err)
		}
		sigs, err := decodeSignatures(g.Signatures)
		if err != nil {
			return nil, badRequest(err)
		}
		reqs[i] = types.MultiDelegatedRevocationRequest{
			Schema:     common.HexToHash(g.Schema),
			Data:       data,
			Signatures: sigs,
			Revoker:    common.HexToAddress(g.Revoker),
		}
	}

	receipt, err := s.backend.MultiRevokeByDelegation(c.Request.Context(), from, value, reqs)
	if err != nil {
		return nil, err
	}
	resp := newTxResp(receipt)
	return &resp, nil
}
