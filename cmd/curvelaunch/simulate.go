package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curvelaunch/internal/asset"
	"curvelaunch/internal/config"
	"curvelaunch/internal/curve"
	"curvelaunch/internal/dex"
	"curvelaunch/internal/launcher"
	"curvelaunch/internal/launchpad"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	kind, err := parseDex(cfg.Dex)
	if err != nil {
		return err
	}
	params, err := cfg.LaunchpadParams()
	if err != nil {
		return err
	}
	launchCfg, adminCap, err := launchpad.NewConfig(params, cfg.Admin)
	if err != nil {
		return fmt.Errorf("launchpad config: %w", err)
	}
	adapters, err := buildAdapters(cfg.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer st.close()

	reserveMint := asset.NewTreasury(cfg.ReserveAsset)
	fees := asset.NewVault()

	payment, err := reserveMint.Mint(cfg.CreationFee)
	if err != nil {
		return err
	}
	pool, err := launchpad.CreatePool(launchCfg, asset.NewTreasury(cfg.Token), fees, curve.Params{
		VirtualReserve: cfg.VirtualReserve,
		VirtualSupply:  cfg.VirtualSupply,
	}, cfg.Supply, payment, time.Now())
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}

	logger.Info("simulate start",
		zap.String("pool", pool.ID()),
		zap.String("token", cfg.Token),
		zap.String("reserve_asset", cfg.ReserveAsset),
		zap.Uint64("supply", cfg.Supply),
		zap.Uint64("threshold", launchCfg.GraduationThreshold()),
		zap.String("dex", kind.String()),
		zap.Int("buys", len(cfg.Buys)),
	)

	trader := asset.NewVault()
	for i, amount := range cfg.Buys {
		in, err := reserveMint.Mint(amount)
		if err != nil {
			return err
		}
		tokens, trade, err := pool.Buy(launchCfg, fees, in, 0, time.Now())
		if err != nil {
			return fmt.Errorf("buy %d: %w", i, err)
		}
		if err := trader.Deposit(tokens); err != nil {
			return err
		}
		logger.Info("buy",
			zap.Int("index", i),
			zap.Uint64("amount_in", amount),
			zap.Uint64("fee", trade.Quote.Fee),
			zap.Uint64("tokens_out", trade.Quote.AmountOut),
			zap.Uint64("reserve", pool.ReserveBalance()),
			zap.Uint64("spot_price", spotPrice(pool)),
			zap.Bool("eligible", trade.Eligible),
		)
	}

	for i, amount := range cfg.Sells {
		tokens, err := trader.Withdraw(cfg.Token, amount)
		if err != nil {
			return fmt.Errorf("sell %d: %w", i, err)
		}
		out, trade, err := pool.Sell(launchCfg, fees, tokens, 0, time.Now())
		if err != nil {
			return fmt.Errorf("sell %d: %w", i, err)
		}
		if err := trader.Deposit(out); err != nil {
			return err
		}
		logger.Info("sell",
			zap.Int("index", i),
			zap.Uint64("tokens_in", amount),
			zap.Uint64("fee", trade.Quote.Fee),
			zap.Uint64("amount_out", trade.Quote.AmountOut),
			zap.Uint64("reserve", pool.ReserveBalance()),
			zap.Uint64("spot_price", spotPrice(pool)),
			zap.Bool("eligible", trade.Eligible),
		)
	}

	if !pool.IsEligible(launchCfg) {
		return fmt.Errorf("pool %s not eligible: reserve %d < threshold %d",
			pool.ID(), pool.ReserveBalance(), launchCfg.GraduationThreshold())
	}

	liquidity := asset.NewVault()
	staking := asset.NewVault()
	graduator := launcher.NewGraduator(
		launchCfg,
		adminCap,
		adapters,
		dex.NewSimulatedCreator(logger),
		st.registry,
		st.journal,
		launcher.Sinks{Liquidity: liquidity, Staking: staking},
		launcher.RetryConfig{
			MaxTries:        cfg.MaxRetries,
			InitialInterval: cfg.RetryBackoff,
			MaxElapsed:      cfg.RetryMaxElapsed,
		},
		logger,
	)

	receipt, err := graduator.Graduate(ctx, pool, kind)
	if err != nil {
		return err
	}

	logger.Info("simulate done",
		zap.String("pool", pool.ID()),
		zap.Uint64("fees", fees.Balance(cfg.ReserveAsset)),
		zap.Uint64("staked", staking.Balance(cfg.Token)),
		zap.Uint64("liquidity_reserve", liquidity.Balance(cfg.ReserveAsset)),
		zap.Uint64("liquidity_token", liquidity.Balance(cfg.Token)),
		zap.Uint64("trader_token", trader.Balance(cfg.Token)),
		zap.Uint64("trader_reserve", trader.Balance(cfg.ReserveAsset)),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(receipt)
}

// spotPrice is the pool's current price scaled by curve.PriceScale, or 0 when
// it cannot be computed.
func spotPrice(pool *launchpad.Pool) uint64 {
	price, err := curve.SpotPrice(pool.ReserveBalance(), pool.TokenBalance(), pool.Params())
	if err != nil {
		return 0
	}
	return price
}
