package tn_resolver

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/trufnetwork/attestation-registry/internal/errs"
	"github.com/trufnetwork/attestation-registry/internal/host"
	"github.com/trufnetwork/attestation-registry/internal/types"
)

// PayingIncentive pays a fixed incentive to every attester out of its own
// balance. Revoking requires paying the incentive back; any surplus is
// returned to the attester.
type PayingIncentive struct {
	address   common.Address
	incentive *big.Int
	logger    *zap.SugaredLogger
}

func NewPayingIncentive(address common.Address, incentive *big.Int, logger *zap.SugaredLogger) *PayingIncentive {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PayingIncentive{
		address:   address,
		incentive: new(big.Int).Set(incentive),
		logger:    logger.Named("paying_resolver"),
	}
}

func (r *PayingIncentive) Address() common.Address { return r.address }
func (r *PayingIncentive) IsPayable() bool         { return true }

// Incentive returns the amount paid per attestation.
func (r *PayingIncentive) Incentive() *big.Int { return new(big.Int).Set(r.incentive) }

func (r *PayingIncentive) OnAttest(tx *host.Tx, att types.Attestation, value *big.Int) error {
	if value != nil && value.Sign() != 0 {
		return fmt.Errorf("%w: attestations under this schema cannot carry value (got %s)", ErrRejected, value)
	}
	if err := tx.Transfer(r.address, att.Attester, r.incentive); err != nil {
		return fmt.Errorf("%w: pay incentive: %w", ErrRejected, err)
	}
	r.logger.Debugw("incentive paid", "uid", att.UID, "attester", att.Attester, "amount", r.incentive)
	return nil
}

func (r *PayingIncentive) OnRevoke(tx *host.Tx, att types.Attestation, value *big.Int) error {
	value = types.ValueOf(value)
	if value.Cmp(r.incentive) < 0 {
		return fmt.Errorf("%w: revocation must repay %s, got %s", errs.ErrInsufficientValue, r.incentive, value)
	}
	surplus := new(big.Int).Sub(value, r.incentive)
	if surplus.Sign() > 0 {
		if err := tx.Transfer(r.address, att.Attester, surplus); err != nil {
			return fmt.Errorf("%w: refund surplus: %w", ErrRejected, err)
		}
	}
	return nil
}
