// Package storage persists committed ledger state to MySQL through gorm and
// loads it back on start.
package storage

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trufnetwork/attestation-registry/internal/types"
)

// State is either a full snapshot (Load) or the changes of one committed
// transaction (Apply).
type State struct {
	Height       uint64
	Schemas      []types.SchemaRecord
	Attestations []types.Attestation
	Nonces       map[common.Address]uint64
	Balances     map[common.Address]*big.Int
}

// Store reads and writes State rows.
type Store struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// New wraps an open gorm handle.
func New(db *gorm.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: db, logger: logger.Named("storage")}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&Schema{},
		&Attestation{},
		&Nonce{},
		&Account{},
		&ChainStatus{},
	)
	return errors.Wrap(err, "auto migrate")
}

// Apply upserts st in one database transaction. Attestation rows only ever
// change their revocation time.
func (s *Store) Apply(ctx context.Context, st State) error {
	return s.db.WithContext(ctx).Transaction(func(dbTx *gorm.DB) error {
		if len(st.Schemas) > 0 {
			rows := lo.Map(st.Schemas, func(r types.SchemaRecord, _ int) *Schema { return schemaRow(r) })
			if err := dbTx.Model(&Schema{}).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(rows).Error; err != nil {
				return errors.Wrap(err, "insert schemas")
			}
		}

		if len(st.Attestations) > 0 {
			rows := lo.Map(st.Attestations, func(a types.Attestation, _ int) *Attestation { return attestationRow(a) })
			if err := dbTx.Model(&Attestation{}).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "uid"}},
					DoUpdates: clause.AssignmentColumns([]string{"revocation_time", "updated_at"}),
				}).
				Create(rows).Error; err != nil {
				return errors.Wrap(err, "upsert attestations")
			}
		}

		if len(st.Nonces) > 0 {
			rows := lo.MapToSlice(st.Nonces, func(addr common.Address, n uint64) *Nonce {
				return &Nonce{Account: addr.Hex(), Nonce: n}
			})
			if err := dbTx.Model(&Nonce{}).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "account"}},
					DoUpdates: clause.AssignmentColumns([]string{"nonce", "updated_at"}),
				}).
				Create(rows).Error; err != nil {
				return errors.Wrap(err, "upsert nonces")
			}
		}

		if len(st.Balances) > 0 {
			rows := lo.MapToSlice(st.Balances, func(addr common.Address, bal *big.Int) *Account {
				return &Account{Address: addr.Hex(), Balance: types.ValueOf(bal).String()}
			})
			if err := dbTx.Model(&Account{}).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "address"}},
					DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
				}).
				Create(rows).Error; err != nil {
				return errors.Wrap(err, "upsert balances")
			}
		}

		return updateChainStatus(dbTx, st.Height)
	})
}

// Load reads the full persisted state.
func (s *Store) Load(ctx context.Context) (*State, error) {
	db := s.db.WithContext(ctx)
	st := &State{
		Nonces:   make(map[common.Address]uint64),
		Balances: make(map[common.Address]*big.Int),
	}

	schemas := make([]*Schema, 0)
	if err := db.Model(&Schema{}).Order("id").Find(&schemas).Error; err != nil {
		return nil, errors.Wrap(err, "load schemas")
	}
	for _, row := range schemas {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		st.Schemas = append(st.Schemas, rec)
	}

	attestations := make([]*Attestation, 0)
	if err := db.Model(&Attestation{}).Order("id").Find(&attestations).Error; err != nil {
		return nil, errors.Wrap(err, "load attestations")
	}
	for _, row := range attestations {
		att, err := row.attestation()
		if err != nil {
			return nil, err
		}
		st.Attestations = append(st.Attestations, att)
	}

	nonces := make([]*Nonce, 0)
	if err := db.Model(&Nonce{}).Find(&nonces).Error; err != nil {
		return nil, errors.Wrap(err, "load nonces")
	}
	for _, row := range nonces {
		st.Nonces[common.HexToAddress(row.Account)] = row.Nonce
	}

	accounts := make([]*Account, 0)
	if err := db.Model(&Account{}).Find(&accounts).Error; err != nil {
		return nil, errors.Wrap(err, "load accounts")
	}
	for _, row := range accounts {
		bal, ok := new(big.Int).SetString(row.Balance, 10)
		if !ok {
			return nil, errors.Errorf("account %s balance %q is not a number", row.Address, row.Balance)
		}
		st.Balances[common.HexToAddress(row.Address)] = bal
	}

	height, err := currentHeight(db)
	if err != nil {
		return nil, err
	}
	st.Height = height

	s.logger.Infow("state loaded",
		"height", st.Height,
		"schemas", len(st.Schemas),
		"attestations", len(st.Attestations),
		"accounts", len(st.Balances),
	)
	return st, nil
}

func currentHeight(db *gorm.DB) (uint64, error) {
	statuses := make([]*ChainStatus, 0, 1)
	if err := db.Model(&ChainStatus{}).Where("id = 1").Limit(1).Find(&statuses).Error; err != nil {
		return 0, errors.Wrap(err, "load chain status")
	}
	if len(statuses) == 0 {
		return 0, nil
	}
	return statuses[0].Height, nil
}

func updateChainStatus(db *gorm.DB, height uint64) error {
	err := db.Model(&ChainStatus{}).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&ChainStatus{ID: 1, Height: height}).Error
	return errors.Wrap(err, "update chain status")
}
