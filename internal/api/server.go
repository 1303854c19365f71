// Package api exposes the registry over HTTP with gin.
//
// The surface is meant for a trusted operator: plain calls name the sending
// account in the body. Delegated calls carry the signer's EIP-712 signature
// and may be relayed by anyone.
package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trufnetwork/attestation-registry/extensions/tn_eip712"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// Backend executes registry operations as host transactions.
type Backend interface {
	RegisterSchema(ctx context.Context, from common.Address, schema string, resolver common.Address, revocable bool) (common.Hash, host.Receipt, error)

	Attest(ctx context.Context, from common.Address, value *big.Int, req types.AttestationRequest) (common.Hash, host.Receipt, error)
	MultiAttest(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiAttestationRequest) ([]common.Hash, host.Receipt, error)
	AttestByDelegation(ctx context.Context, from common.Address, value *big.Int, req types.DelegatedAttestationRequest) (common.Hash, host.Receipt, error)
	MultiAttestByDelegation(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiDelegatedAttestationRequest) ([]common.Hash, host.Receipt, error)

	Revoke(ctx context.Context, from common.Address, value *big.Int, req types.RevocationRequest) (host.Receipt, error)
	MultiRevoke(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiRevocationRequest) (host.Receipt, error)
	RevokeByDelegation(ctx context.Context, from common.Address, value *big.Int, req types.DelegatedRevocationRequest) (host.Receipt, error)
	MultiRevokeByDelegation(ctx context.Context, from common.Address, value *big.Int, reqs []types.MultiDelegatedRevocationRequest) (host.Receipt, error)

	IncreaseNonce(ctx context.Context, from common.Address, newNonce uint64) (host.Receipt, error)

	GetSchema(uid common.Hash) types.SchemaRecord
	GetAttestation(uid common.Hash) types.Attestation
	GetNonce(account common.Address) uint64
	Balance(account common.Address) *big.Int
	Domain() (tn_eip712.Domain, common.Hash)
}

// Server defines an instance of a server that handles registry requests.
type Server struct {
	addr    string
	engine  *gin.Engine
	backend Backend
	logger  *zap.SugaredLogger
}

// New returns a new instance of the server.
func New(addr string, backend Backend, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	registerValidations()

	s := &Server{
		addr:    addr,
		engine:  gin.New(),
		backend: backend,
		logger:  logger.Named("api"),
	}
	s.engine.Use(gin.Recovery(), s.accessLog(), handleError())
	s.registerRouter()
	return s
}

func (s *Server) registerRouter() {
	g := s.engine.Group("v1")

	g.GET("domain", handle(s.domain))
	g.GET("nonces/:address", handle(s.nonce))
	g.POST("nonces", handle(s.increaseNonce))
	g.GET("accounts/:address", handle(s.account))

	g.POST("schemas", handle(s.registerSchema))
	g.GET("schemas/:uid", handle(s.schema))

	g.POST("attestations", handle(s.attest))
	g.POST("attestations/multi", handle(s.multiAttest))
	g.POST("attestations/delegated", handle(s.attestByDelegation))
	g.POST("attestations/multi/delegated", handle(s.multiAttestByDelegation))
	g.GET("attestations/:uid", handle(s.attestation))

	g.POST("revocations", handle(s.revoke))
	g.POST("revocations/multi", handle(s.multiRevoke))
	g.POST("revocations/delegated", handle(s.revokeByDelegation))
	g.POST("revocations/multi/delegated", handle(s.multiRevokeByDelegation))
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugw("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
