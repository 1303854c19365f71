package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

// Config represent root of mysql config
type Config struct {
	DSN            string
	Replicas       []string
	LogLevel       logger.LogLevel
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectRetries uint64
}

// Open connects to the master (and replicas, if any), retrying while the
// server is not reachable yet.
func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mysql dsn is empty")
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Warn
	}

	var db *gorm.DB
	connect := func() error {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
			Logger: logger.Default.LogMode(cfg.LogLevel),
		})
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries), ctx)
	notify := func(err error, next time.Duration) {
		log.Warnw("mysql not reachable, retrying", "error", err, "next", next)
	}
	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, errors.Wrap(err, "open master mysql")
	}

	if len(cfg.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
		for _, dsn := range cfg.Replicas {
			replicas = append(replicas, mysql.Open(dsn))
		}
		resolverCfg := dbresolver.Config{
			Sources:  []gorm.Dialector{mysql.Open(cfg.DSN)},
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}
		plugin := dbresolver.Register(resolverCfg).
			SetConnMaxIdleTime(time.Hour).
			SetConnMaxLifetime(24 * time.Hour)
		if cfg.MaxIdleConns > 0 {
			plugin = plugin.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.MaxOpenConns > 0 {
			plugin = plugin.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if err := db.Use(plugin); err != nil {
			return nil, errors.Wrap(err, "register mysql replicas")
		}
	}

	return New(db, log), nil
}
