package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trufnetwork/attestation-registry/extensions/tn_eip712"
	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// Kind names for failures raised by the API itself.
const (
	kindBadRequest          = "BadRequest"
	kindNotFound            = "NotFound"
	kindInsufficientBalance = "InsufficientBalance"
	kindInvalidNonce        = "InvalidNonce"
)

type errorResp struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// handleFunc is the shape of every endpoint: the request is bound from the
// URI on GET and from the JSON body otherwise, then validated.
type handleFunc[Req, Resp any] func(c *gin.Context, req *Req) (*Resp, error)

func handle[Req, Resp any](fn handleFunc[Req, Resp]) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := new(Req)
		var err error
		if c.Request.Method == http.MethodGet {
			err = c.ShouldBindUri(req)
		} else {
			err = c.ShouldBindJSON(req)
		}
		if err != nil {
			_ = c.Error(fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}

		resp, err := fn(c, req)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleError renders the last error attached to the context.
func handleError() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status, kind := classify(err)
		c.AbortWithStatusJSON(status, errorResp{Kind: kind, Error: err.Error()})
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, kindBadRequest
	case errors.Is(err, errNotFound):
		return http.StatusNotFound, kindNotFound
	}

	kind := errs.Kind(err)
	switch kind {
	case errs.KindAlreadyExists:
		return http.StatusConflict, kind
	case errs.KindInsufficientValue:
		return http.StatusPaymentRequired, kind
	case errs.KindInvalidSignature:
		return http.StatusUnauthorized, kind
	case errs.KindInvalidAttestation, errs.KindInvalidRevocation:
		return http.StatusUnprocessableEntity, kind
	}

	switch {
	case errors.Is(err, host.ErrInsufficientBalance):
		return http.StatusPaymentRequired, kindInsufficientBalance
	case errors.Is(err, tn_eip712.ErrInvalidNonce):
		return http.StatusConflict, kindInvalidNonce
	}
	return http.StatusInternalServerError, errs.KindInternal
}
