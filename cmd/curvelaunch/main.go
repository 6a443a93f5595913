package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curvelaunch/internal/config"
	"curvelaunch/internal/dex"
	"curvelaunch/internal/journal"
	"curvelaunch/internal/launchpad"
	"curvelaunch/internal/registry"
	"curvelaunch/internal/registry/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "curvelaunch",
		Short:        "Bonding-curve token launchpad with DEX graduation",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Launch a token, trade it to the threshold and graduate it",
		RunE:  runSimulate,
	}
	addLaunchpadFlags(simulateCmd.Flags())
	addStoreFlags(simulateCmd.Flags())
	simulateCmd.Flags().String("dex", "cetus", "graduation target (cetus, uniswap_v3)")
	simulateCmd.Flags().String("token", "MEME", "launched token asset id")
	simulateCmd.Flags().String("admin", "operator", "admin capability holder")
	simulateCmd.Flags().Uint64("supply", 1_000_000_000, "initial token supply")
	simulateCmd.Flags().Uint64("virtual-reserve", 30_000, "virtual reserve offset")
	simulateCmd.Flags().Uint64("virtual-supply", 0, "virtual supply offset")
	simulateCmd.Flags().StringSlice("buy", []string{"110000"}, "reserve amounts to buy with (comma-separated)")
	simulateCmd.Flags().StringSlice("sell", nil, "token amounts to sell back after the buys (comma-separated)")
	simulateCmd.Flags().Uint("max-retries", 5, "maximum pool creation attempts")
	simulateCmd.Flags().Duration("retry-backoff", 0, "initial retry backoff")
	simulateCmd.Flags().Duration("retry-max-elapsed", 0, "give up pool creation after this long")
	root.AddCommand(simulateCmd)

	receiptsCmd := &cobra.Command{
		Use:   "receipts",
		Short: "List graduation receipts",
		RunE:  runReceipts,
	}
	addStoreFlags(receiptsCmd.Flags())
	receiptsCmd.Flags().String("since", "", "only receipts completed at or after (unix seconds or RFC3339)")
	receiptsCmd.Flags().Bool("pending", false, "list unfinished graduations from the journal instead")
	receiptsCmd.Flags().String("import", "", "copy receipts from a JSONL registry file into the postgres registry")
	receiptsCmd.Flags().Int("import-batch", 500, "receipts per postgres batch during import")
	root.AddCommand(receiptsCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a Uniswap V3 graduation receipt against chain state",
		RunE:  runVerify,
	}
	addStoreFlags(verifyCmd.Flags())
	verifyCmd.Flags().String("rpc", "", "EVM RPC URL")
	verifyCmd.Flags().String("pool", "", "launchpad pool id")
	verifyCmd.Flags().String("token-address", "", "asset id to ERC-20 address mappings (comma-separated key=value)")
	verifyCmd.Flags().Uint64("from", 0, "start block for the Initialize lookup, both 0 skip it")
	verifyCmd.Flags().Uint64("to", 0, "end block for the Initialize lookup, 0 means latest")
	root.AddCommand(verifyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addLaunchpadFlags(flags *pflag.FlagSet) {
	flags.String("reserve-asset", "SUI", "reserve asset id")
	flags.Uint64("creation-fee", 1_000, "exact pool creation fee")
	flags.Uint64("graduation-threshold", 100_000, "reserve needed to graduate")
	flags.Uint("fee-bps", 100, "trading fee in basis points")
	flags.Uint("staking-bps", 0, "staking allocation in basis points")
	flags.String("dex-package", "", "dex package addresses (comma-separated kind=address)")
	flags.StringSlice("dex-disabled", nil, "dex kinds to disable")
	flags.Uint64("min-liquidity", 0, "adapter minimum liquidity, 0 uses the adapter default")
	flags.String("v3-factory", "", "Uniswap V3 factory address")
	flags.Uint("v3-fee-tier", 10_000, "Uniswap V3 fee tier")
	flags.String("token-address", "", "asset id to ERC-20 address mappings (comma-separated key=value)")
}

func addStoreFlags(flags *pflag.FlagSet) {
	flags.String("registry", "jsonl", "receipt registry (memory, jsonl, postgres)")
	flags.String("registry-path", "./data/receipts.jsonl", "JSONL registry path")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("journal-dir", "./data/journal", "graduation journal directory")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// stores bundles the registry and journal picked by config. pg is set only
// for the postgres registry.
type stores struct {
	registry registry.Registry
	journal  journal.Store
	pg       *postgres.Store
	close    func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	switch cfg.Registry {
	case config.RegistryPostgres:
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return stores{}, err
		}
		logger.Info("registry open", zap.String("kind", cfg.Registry), zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
		return stores{registry: pg, journal: &journal.DBStore{Store: pg}, pg: pg, close: pg.Close}, nil
	case config.RegistryJsonl:
		reg, err := registry.OpenJsonl(cfg.RegistryPath)
		if err != nil {
			return stores{}, err
		}
		logger.Info("registry open", zap.String("kind", cfg.Registry), zap.String("path", cfg.RegistryPath))
		return stores{registry: reg, journal: fileJournal(cfg), close: func() {}}, nil
	default:
		return stores{registry: registry.NewMemory(), journal: journal.NewMemory(), close: func() {}}, nil
	}
}

func fileJournal(cfg config.Config) journal.Store {
	if cfg.JournalDir == "" {
		return journal.NewMemory()
	}
	return journal.NewFileStore(cfg.JournalDir)
}

func buildAdapters(cfg config.Config) (*dex.Set, error) {
	tokens, err := cfg.TokenAddresses()
	if err != nil {
		return nil, err
	}
	opts := dex.UniswapV3Options{
		FeeTier:          cfg.V3FeeTier,
		MinimumLiquidity: cfg.MinLiquidity,
		Tokens:           tokens,
	}
	if cfg.V3Factory != "" {
		if opts.Factory, err = cfg.Factory(); err != nil {
			return nil, err
		}
	}
	return dex.NewSet(dex.NewCetus(cfg.MinLiquidity), dex.NewUniswapV3(opts))
}

func parseDex(name string) (launchpad.DexKind, error) {
	kind, err := launchpad.ParseDexKind(name)
	if err != nil {
		return 0, fmt.Errorf("dex: %w", err)
	}
	return kind, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
