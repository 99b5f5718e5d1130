package studioctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/assetcache"
	platformcmd "github.com/louisbranch/portfolio.studio/internal/platform/cmd"
	"github.com/louisbranch/portfolio.studio/internal/preload"
)

func (a *app) preloadCommand() *cobra.Command {
	var useTUI bool
	var route string
	cmd := &cobra.Command{
		Use:   "preload",
		Short: "Run one preload session against a site",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.bindLocal(cmd, "site", "site"); err != nil {
				return err
			}
			return a.bindLocal(cmd, "cache_version", "cache-version")
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Site) == "" {
				return errors.New("--site (or STUDIOCTL_SITE) is required")
			}
			logger, err := a.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, closeCache, err := a.preloadClient(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeCache()

			sessionCfg := preload.Config{Origin: cfg.Site, Client: client, Logger: logger}
			out := cmd.OutOrStdout()
			return platformcmd.RunWithTelemetryAndOptions(cmd.Context(), platformcmd.ServiceStudioctl,
				platformcmd.RunOptions{Logger: logger},
				func(ctx context.Context) error {
					var last preload.Progress
					var err error
					if useTUI {
						last, err = runTUI(ctx, sessionCfg, route, out)
					} else {
						last, err = runLines(ctx, sessionCfg, route, out)
					}
					fmt.Fprintf(out, "loaded %d/%d assets\n", last.Loaded, last.Total)
					return err
				})
		},
	}
	cmd.Flags().String("site", "", "site origin, e.g. http://localhost:8086")
	cmd.Flags().String("cache-version", "v1", "cache version used with --cache-db")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show an interactive progress view")
	cmd.Flags().StringVar(&route, "route", preload.LandingRoute, "route to activate")
	return cmd
}

// preloadClient routes asset fetches through the asset cache when a cache
// database is configured.
func (a *app) preloadClient(ctx context.Context, cfg Config, logger *zap.Logger) (*http.Client, func(), error) {
	if strings.TrimSpace(cfg.CacheDB) == "" {
		return nil, func() {}, nil
	}
	origin, err := url.Parse(cfg.Site)
	if err != nil {
		return nil, nil, fmt.Errorf("parse site: %w", err)
	}
	storage, closeStorage, err := a.openStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	worker, err := assetcache.NewWorker(storage, cfg.CacheVersion, logger)
	if err != nil {
		closeStorage()
		return nil, nil, err
	}
	if _, err := worker.Activate(ctx); err != nil {
		closeStorage()
		return nil, nil, err
	}
	transport := assetcache.NewTransport(assetcache.TransportConfig{Worker: worker, Origin: origin, Logger: logger})
	return transport.Client(0), closeStorage, nil
}

// linePresenter prints one line per label change or ten-percent step.
type linePresenter struct {
	out io.Writer

	mu     sync.Mutex
	last   preload.Progress
	bucket int
	label  string
}

func newLinePresenter(out io.Writer) *linePresenter {
	return &linePresenter{out: out, bucket: -1}
}

func (p *linePresenter) LockScroll()   {}
func (p *linePresenter) UnlockScroll() {}
func (p *linePresenter) Dismiss()      {}

func (p *linePresenter) Render(frame preload.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = frame
	bucket := frame.Percent / 10
	if bucket == p.bucket && frame.Label == p.label {
		return
	}
	p.bucket, p.label = bucket, frame.Label
	fmt.Fprintf(p.out, "%3d%%  %s\n", frame.Percent, frame.Label)
}

func (p *linePresenter) Last() preload.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func runLines(ctx context.Context, cfg preload.Config, route string, out io.Writer) (preload.Progress, error) {
	presenter := newLinePresenter(out)
	cfg.Presenter = presenter
	session, err := preload.New(cfg)
	if err != nil {
		return preload.Progress{}, err
	}
	err = session.Run(ctx, route)
	session.Wait()
	return presenter.Last(), err
}
