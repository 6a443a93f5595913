package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curvelaunch/internal/chain"
	"curvelaunch/internal/config"
	"curvelaunch/internal/dex"
)

func runVerify(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	poolID, _ := cmd.Flags().GetString("pool")
	if poolID == "" {
		return fmt.Errorf("pool id is required")
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	tokens, err := cfg.TokenAddresses()
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	receipt, ok, err := st.registry.Get(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load receipt: %w", err)
	}
	if !ok {
		return fmt.Errorf("no receipt for pool %s", poolID)
	}

	chainClient, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	logger.Info("verify start",
		zap.String("pool", poolID),
		zap.String("external_pool", receipt.ExternalPoolID),
		zap.String("chain_id", chainClient.ID().String()),
	)

	verifier := dex.NewVerifier(chainClient, tokens, logger)
	report, err := verifier.Verify(ctx, receipt)
	if err != nil {
		return err
	}

	out := struct {
		Report         dex.Report          `json:"report"`
		Initialization *dex.Initialization `json:"initialization,omitempty"`
	}{Report: report}

	if from > 0 || to > 0 {
		if to == 0 {
			if to, err = chainClient.BlockNumber(ctx); err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
		}
		initialization, found, err := verifier.FindInitialization(ctx, common.HexToAddress(receipt.ExternalPoolID), from, to)
		if err != nil {
			return err
		}
		if found {
			out.Initialization = &initialization
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("pool %s does not match its receipt", receipt.ExternalPoolID)
	}
	return nil
}
