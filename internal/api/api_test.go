package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trufnetwork/attestation-registry/extensions/tn_eip712"
	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// stubBackend answers every call with a fixed receipt unless a hook is set.
type stubBackend struct {
	attest      func(from common.Address, value *big.Int, req types.AttestationRequest) (common.Hash, error)
	multiAttest func(reqs []types.MultiAttestationRequest) ([]common.Hash, error)
	delegated   func(req types.DelegatedAttestationRequest) (common.Hash, error)
	revoke      func(req types.RevocationRequest) error
	schemas     map[common.Hash]types.SchemaRecord
	atts        map[common.Hash]types.Attestation
}

var testReceipt = host.Receipt{TxID: uuid.MustParse("6f1c3f4e-2b1a-4c1b-9a53-1d2f7a0c9e10"), Height: 7}

func (b *stubBackend) RegisterSchema(_ context.Context, _ common.Address, schema string, _ common.Address, _ bool) (common.Hash, host.Receipt, error) {
	return common.HexToHash("0x5c"), testReceipt, nil
}

func (b *stubBackend) Attest(_ context.Context, from common.Address, value *big.Int, req types.AttestationRequest) (common.Hash, host.Receipt, error) {
	uid, err := b.attest(from, value, req)
	return uid, testReceipt, err
}

func (b *stubBackend) MultiAttest(_ context.Context, _ common.Address, _ *big.Int, reqs []types.MultiAttestationRequest) ([]common.Hash, host.Receipt, error) {
	uids, err := b.multiAttest(reqs)
	return uids, testReceipt, err
}

func (b *stubBackend) AttestByDelegation(_ context.Context, _ common.Address, _ *big.Int, req types.DelegatedAttestationRequest) (common.Hash, host.Receipt, error) {
	uid, err := b.delegated(req)
	return uid, testReceipt, err
}

func (b *stubBackend) MultiAttestByDelegation(context.Context, common.Address, *big.Int, []types.MultiDelegatedAttestationRequest) ([]common.Hash, host.Receipt, error) {
	return nil, testReceipt, nil
}

func (b *stubBackend) Revoke(_ context.Context, _ common.Address, _ *big.Int, req types.RevocationRequest) (host.Receipt, error) {
	return testReceipt, b.revoke(req)
}

func (b *stubBackend) MultiRevoke(context.Context, common.Address, *big.Int, []types.MultiRevocationRequest) (host.Receipt, error) {
	return testReceipt, nil
}

func (b *stubBackend) RevokeByDelegation(context.Context, common.Address, *big.Int, types.DelegatedRevocationRequest) (host.Receipt, error) {
	return testReceipt, nil
}

func (b *stubBackend) MultiRevokeByDelegation(context.Context, common.Address, *big.Int, []types.MultiDelegatedRevocationRequest) (host.Receipt, error) {
	return testReceipt, nil
}

func (b *stubBackend) IncreaseNonce(_ context.Context, _ common.Address, newNonce uint64) (host.Receipt, error) {
	if newNonce <= 3 {
		return host.Receipt{}, fmt.Errorf("%w: too low", tn_eip712.ErrInvalidNonce)
	}
	return testReceipt, nil
}

func (b *stubBackend) GetSchema(uid common.Hash) types.SchemaRecord { return b.schemas[uid] }

func (b *stubBackend) GetAttestation(uid common.Hash) types.Attestation { return b.atts[uid] }

func (b *stubBackend) GetNonce(common.Address) uint64 { return 3 }

func (b *stubBackend) Balance(common.Address) *big.Int { return big.NewInt(1_500_000_000_000_000_000) }

func (b *stubBackend) Domain() (tn_eip712.Domain, common.Hash) {
	return tn_eip712.Domain{
		Name:              "AttestationRegistry",
		Version:           "1.0.0",
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x42"),
	}, common.HexToHash("0xd5")
}

var (
	alice    = common.HexToAddress("0xa11ce")
	schemaID = common.HexToHash("0x5c")
	uidA     = common.HexToHash("0xa1")
)

func newTestServer(t *testing.T, b *stubBackend) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return New("", b, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAttest(t *testing.T) {
	var got types.AttestationRequest
	var gotFrom common.Address
	var gotValue *big.Int
	b := &stubBackend{attest: func(from common.Address, value *big.Int, req types.AttestationRequest) (common.Hash, error) {
		gotFrom, gotValue, got = from, value, req
		return uidA, nil
	}}
	h := newTestServer(t, b)

	rec := do(t, h, http.MethodPost, "/v1/attestations", map[string]any{
		"from":   alice.Hex(),
		"value":  "0.5",
		"schema": schemaID.Hex(),
		"data": map[string]any{
			"recipient":       "0x0000000000000000000000000000000000000b0b",
			"expiration_time": 0,
			"revocable":       true,
			"data":            "0x0102",
			"value":           "0.25",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[uidResp](t, rec)
	assert.Equal(t, uidA.Hex(), resp.UID)
	assert.Equal(t, testReceipt.TxID.String(), resp.TxID)
	assert.EqualValues(t, 7, resp.Height)

	assert.Equal(t, alice, gotFrom)
	assert.Equal(t, "500000000000000000", gotValue.String())
	assert.Equal(t, schemaID, got.Schema)
	assert.Equal(t, common.HexToAddress("0xb0b"), got.Data.Recipient)
	assert.True(t, got.Data.Revocable)
	assert.Equal(t, []byte{1, 2}, got.Data.Data)
	assert.Equal(t, "250000000000000000", got.Data.Value.String())
}

func TestRequestValidation(t *testing.T) {
	b := &stubBackend{attest: func(common.Address, *big.Int, types.AttestationRequest) (common.Hash, error) {
		t.Fatal("backend must not be called")
		return common.Hash{}, nil
	}}
	h := newTestServer(t, b)

	valid := func() map[string]any {
		return map[string]any{
			"from":   alice.Hex(),
			"schema": schemaID.Hex(),
			"data":   map[string]any{},
		}
	}

	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"missing sender", func(m map[string]any) { delete(m, "from") }},
		{"bad sender", func(m map[string]any) { m["from"] = "0x123" }},
		{"short schema", func(m map[string]any) { m["schema"] = "0x5c" }},
		{"negative value", func(m map[string]any) { m["value"] = "-1" }},
		{"too many decimals", func(m map[string]any) { m["value"] = "0.0000000000000000001" }},
		{"odd data", func(m map[string]any) { m["data"] = map[string]any{"data": "0x123"} }},
		{"bad ref uid", func(m map[string]any) { m["data"] = map[string]any{"ref_uid": "0x01"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)
			rec := do(t, h, http.MethodPost, "/v1/attestations", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, kindBadRequest, decode[errorResp](t, rec).Kind)
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{errs.ErrInvalidSchema, http.StatusUnprocessableEntity, errs.KindInvalidAttestation},
		{errs.ErrAccessDenied, http.StatusUnprocessableEntity, errs.KindInvalidRevocation},
		{errs.ErrAlreadyExists, http.StatusConflict, errs.KindAlreadyExists},
		{fmt.Errorf("wrapped: %w", errs.ErrInsufficientValue), http.StatusPaymentRequired, errs.KindInsufficientValue},
		{errs.ErrInvalidSignature, http.StatusUnauthorized, errs.KindInvalidSignature},
		{fmt.Errorf("%w: alice", host.ErrInsufficientBalance), http.StatusPaymentRequired, kindInsufficientBalance},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, errs.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			b := &stubBackend{revoke: func(types.RevocationRequest) error { return tt.err }}
			h := newTestServer(t, b)

			rec := do(t, h, http.MethodPost, "/v1/revocations", map[string]any{
				"from":   alice.Hex(),
				"schema": schemaID.Hex(),
				"data":   map[string]any{"uid": uidA.Hex()},
			})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[errorResp](t, rec)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestMultiAttest(t *testing.T) {
	var got []types.MultiAttestationRequest
	b := &stubBackend{multiAttest: func(reqs []types.MultiAttestationRequest) ([]common.Hash, error) {
		got = reqs
		return []common.Hash{uidA, common.HexToHash("0xa2")}, nil
	}}
	h := newTestServer(t, b)

	rec := do(t, h, http.MethodPost, "/v1/attestations/multi", map[string]any{
		"from": alice.Hex(),
		"requests": []any{
			map[string]any{"schema": schemaID.Hex(), "data": []any{map[string]any{}, map[string]any{"value": "1"}}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{uidA.Hex(), common.HexToHash("0xa2").Hex()}, decode[uidsResp](t, rec).UIDs)

	require.Len(t, got, 1)
	require.Len(t, got[0].Data, 2)
	assert.Equal(t, "0", got[0].Data[0].Value.String())
	assert.Equal(t, "1000000000000000000", got[0].Data[1].Value.String())

	rec = do(t, h, http.MethodPost, "/v1/attestations/multi", map[string]any{
		"from":     alice.Hex(),
		"requests": []any{map[string]any{"schema": schemaID.Hex(), "data": []any{}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttestByDelegation(t *testing.T) {
	var got types.DelegatedAttestationRequest
	b := &stubBackend{delegated: func(req types.DelegatedAttestationRequest) (common.Hash, error) {
		got = req
		return uidA, nil
	}}
	h := newTestServer(t, b)

	sig := "0x" + string(bytes.Repeat([]byte("ab"), 65))
	rec := do(t, h, http.MethodPost, "/v1/attestations/delegated", map[string]any{
		"from":      common.HexToAddress("0xfee").Hex(),
		"schema":    schemaID.Hex(),
		"data":      map[string]any{"revocable": true},
		"signature": sig,
		"attester":  alice.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, alice, got.Attester)
	assert.Len(t, got.Signature, 65)

	rec = do(t, h, http.MethodPost, "/v1/attestations/delegated", map[string]any{
		"from":     common.HexToAddress("0xfee").Hex(),
		"schema":   schemaID.Hex(),
		"data":     map[string]any{},
		"attester": alice.Hex(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueries(t *testing.T) {
	b := &stubBackend{
		schemas: map[common.Hash]types.SchemaRecord{
			schemaID: {UID: schemaID, Schema: "uint256 score", Revocable: true},
		},
		atts: map[common.Hash]types.Attestation{
			uidA: {
				UID:            uidA,
				Schema:         schemaID,
				Time:           100,
				RevocationTime: 150,
				Attester:       alice,
				Data:           []byte{0xff},
				Value:          big.NewInt(0),
			},
		},
	}
	h := newTestServer(t, b)

	rec := do(t, h, http.MethodGet, "/v1/schemas/"+schemaID.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decode[schemaResp](t, rec)
	assert.Equal(t, "uint256 score", s.Schema)
	assert.True(t, s.Revocable)

	rec = do(t, h, http.MethodGet, "/v1/attestations/"+uidA.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[attestationResp](t, rec)
	assert.True(t, a.Revoked)
	assert.Equal(t, "0xff", a.Data)
	assert.Equal(t, alice.Hex(), a.Attester)

	rec = do(t, h, http.MethodGet, "/v1/attestations/"+common.HexToHash("0xdead").Hex(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, kindNotFound, decode[errorResp](t, rec).Kind)

	rec = do(t, h, http.MethodGet, "/v1/schemas/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/nonces/"+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[nonceResp](t, rec).Nonce)

	rec = do(t, h, http.MethodPost, "/v1/nonces", map[string]any{"from": alice.Hex(), "nonce": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, kindInvalidNonce, decode[errorResp](t, rec).Kind)

	rec = do(t, h, http.MethodPost, "/v1/nonces", map[string]any{"from": alice.Hex(), "nonce": 9})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/accounts/"+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.5", decode[accountResp](t, rec).Balance)

	rec = do(t, h, http.MethodGet, "/v1/domain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[domainResp](t, rec)
	assert.Equal(t, "31337", d.ChainID)
	assert.Equal(t, tn_eip712.AttestTypeString, d.AttestType)
}
