package api

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/trufnetwork/attestation-registry/internal/units"
)

var registerOnce sync.Once

// registerValidations adds the tags used by the request types to gin's
// validator.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
			return common.IsHexAddress(fl.Field().String())
		})
		_ = v.RegisterValidation("bytes32", func(fl validator.FieldLevel) bool {
			b, err := hexutil.Decode(fl.Field().String())
			return err == nil && len(b) == common.HashLength
		})
		_ = v.RegisterValidation("hexbytes", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			if s == "" {
				return true
			}
			_, err := hexutil.Decode(s)
			return err == nil
		})
		_ = v.RegisterValidation("ether", func(fl validator.FieldLevel) bool {
			_, err := units.ParseEther(fl.Field().String())
			return err == nil
		})
	})
}
