package studioctl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/assetcache"
	cachesqlite "github.com/louisbranch/portfolio.studio/internal/assetcache/sqlite"
)

func (a *app) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and rotate asset cache generations",
	}

	generations := &cobra.Command{
		Use:   "generations",
		Short: "List cache store names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storage, closeStorage, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage()
			names, err := storage.Names(cmd.Context())
			if err != nil {
				return fmt.Errorf("list generations: %w", err)
			}
			for _, name := range names {
				marker := ""
				if !assetcache.Owned(name) {
					marker = " (foreign)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", name, marker)
			}
			return nil
		},
	}

	activate := &cobra.Command{
		Use:   "activate",
		Short: "Install and activate a cache version, purging stale generations",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bindLocal(cmd, "cache_version", "version")
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			logger, err := a.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			storage, closeStorage, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage()
			worker, err := assetcache.NewWorker(storage, cfg.CacheVersion, logger)
			if err != nil {
				return err
			}
			purged, err := worker.Activate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "active %s\n", worker.Name())
			for _, name := range purged {
				fmt.Fprintf(out, "purged %s\n", name)
			}
			logger.Debug("cache activated", zap.String("generation", worker.Name()), zap.Int("purged", len(purged)))
			return nil
		},
	}
	activate.Flags().String("version", "", "cache version to activate")
	_ = activate.MarkFlagRequired("version")

	cmd.AddCommand(generations, activate)
	return cmd
}

// bindLocal binds a command's own flag when that command runs, so sibling
// commands can share a config key.
func (a *app) bindLocal(cmd *cobra.Command, key, flag string) error {
	return a.v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func (a *app) openStorage(ctx context.Context) (*cachesqlite.Storage, func(), error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.CacheDB) == "" {
		return nil, nil, errors.New("--cache-db (or STUDIOCTL_CACHE_DB) is required")
	}
	storage, err := cachesqlite.Open(ctx, cfg.CacheDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open asset cache: %w", err)
	}
	return storage, func() { _ = storage.Close() }, nil
}
