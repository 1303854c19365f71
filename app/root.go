package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trufnetwork/attestation-registry/cmd/version"
	"github.com/trufnetwork/attestation-registry/internal/api"
	"github.com/trufnetwork/attestation-registry/internal/config"
	"github.com/trufnetwork/attestation-registry/internal/storage"
)

const connectRetries = 10

// RootCmd creates the attestd command tree.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "attestd",
		Short:         "Attestation registry node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(startCmd(), version.NewVersionCmd())
	return cmd
}

func startCmd() *cobra.Command {
	var (
		cfgFile   string
		overrides map[string]string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the node and its HTTP API",
		Example: "attestd start --config attestd.yaml\n" +
			"attestd start --set dsn='user:pass@tcp(localhost:3306)/attest?parseTime=true' --set incentive.address=0x...",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, overrides)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger.Sugar())
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, toml or json)")
	cmd.Flags().StringToStringVar(&overrides, "set", nil, "override a config key, e.g. --set incentive.amount=0.01")
	return cmd
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level())
	logger, err := zcfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) error {
	opts := []NodeOption{WithNodeLogger(logger)}
	if cfg.DSN != "" {
		store, err := storage.Open(ctx, storage.Config{
			DSN:            cfg.DSN,
			Replicas:       cfg.ReplicaDSNs,
			ConnectRetries: connectRetries,
		}, logger)
		if err != nil {
			return err
		}
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, WithStore(store))
	} else {
		logger.Warn("no dsn configured, state is kept in memory only")
	}

	node, err := NewNode(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	logger.Infow("node ready",
		"chain_id", cfg.ChainID,
		"ledger", node.Ledger().Address(),
		"registry", node.Registry().Address(),
		"height", node.Chain().Height(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.New(cfg.ListenAddress, node, logger).Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Infow("shutting down", "height", node.Chain().Height())
		return nil
	})
	return g.Wait()
}
