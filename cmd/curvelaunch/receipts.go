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

	"curvelaunch/internal/config"
	"curvelaunch/internal/registry"
)

func runReceipts(cmd *cobra.Command, _ []string) error {
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

	sinceRaw, _ := cmd.Flags().GetString("since")
	since, err := config.ParseTimestamp(sinceRaw)
	if err != nil {
		return fmt.Errorf("invalid since: %w", err)
	}
	pending, _ := cmd.Flags().GetBool("pending")
	importPath, _ := cmd.Flags().GetString("import")
	importBatch, _ := cmd.Flags().GetInt("import-batch")
	if importPath != "" && cfg.Registry != config.RegistryPostgres {
		return fmt.Errorf("--import needs the postgres registry")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	enc := json.NewEncoder(cmd.OutOrStdout())

	if importPath != "" {
		if _, err := os.Stat(importPath); err != nil {
			return fmt.Errorf("import source: %w", err)
		}
		src, err := registry.OpenJsonl(importPath)
		if err != nil {
			return err
		}
		res, err := registry.Import(ctx, src, st.pg, importBatch)
		if err != nil {
			return err
		}
		for _, id := range res.Duplicates {
			logger.Warn("receipt already recorded, skipped", zap.String("pool", id))
		}
		logger.Info("receipts imported",
			zap.String("source", importPath),
			zap.Int("imported", res.Imported),
			zap.Int("duplicates", len(res.Duplicates)),
		)
		return enc.Encode(res)
	}

	if pending {
		entries, err := st.journal.List(ctx)
		if err != nil {
			return fmt.Errorf("list journal: %w", err)
		}
		count := 0
		for _, entry := range entries {
			if entry.Stage.Terminal() || uint64(entry.UpdatedAt.Unix()) < since {
				continue
			}
			if err := enc.Encode(entry); err != nil {
				return err
			}
			count++
		}
		logger.Info("pending graduations", zap.Int("count", count))
		return nil
	}

	receipts, err := st.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list receipts: %w", err)
	}
	cutoff := time.Unix(int64(since), 0).UTC()
	count := 0
	for _, receipt := range receipts {
		if since > 0 && receipt.CompletedAt.Before(cutoff) {
			continue
		}
		if err := enc.Encode(receipt); err != nil {
			return err
		}
		count++
	}
	logger.Info("receipts", zap.Int("count", count), zap.Int("total", len(receipts)))
	return nil
}
