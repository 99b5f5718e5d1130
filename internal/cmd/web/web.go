// Package web wires configuration and collaborators for the web command.
package web

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/assetcache"
	cachesqlite "github.com/louisbranch/portfolio.studio/internal/assetcache/sqlite"
	"github.com/louisbranch/portfolio.studio/internal/auth"
	"github.com/louisbranch/portfolio.studio/internal/content"
	"github.com/louisbranch/portfolio.studio/internal/content/backend"
	contentsqlite "github.com/louisbranch/portfolio.studio/internal/content/sqlite"
	platformcmd "github.com/louisbranch/portfolio.studio/internal/platform/cmd"
	"github.com/louisbranch/portfolio.studio/internal/platform/config"
	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	"github.com/louisbranch/portfolio.studio/internal/services/web"
)

// Config holds the web command configuration.
type Config struct {
	HTTPAddr       string `env:"PORTFOLIO_STUDIO_WEB_HTTP_ADDR" envDefault:"localhost:8086"`
	BackendURL     string `env:"PORTFOLIO_STUDIO_WEB_BACKEND_URL"`
	BackendAnonKey string `env:"PORTFOLIO_STUDIO_WEB_BACKEND_ANON_KEY"`
	JWTSecret      string `env:"PORTFOLIO_STUDIO_WEB_JWT_SECRET"`
	JWTAudience    string `env:"PORTFOLIO_STUDIO_WEB_JWT_AUDIENCE" envDefault:"authenticated"`
	DBPath         string `env:"PORTFOLIO_STUDIO_WEB_DB_PATH" envDefault:"data/portfolio.db"`
	CacheDBPath    string `env:"PORTFOLIO_STUDIO_WEB_CACHE_DB_PATH"`
	CacheVersion   string `env:"PORTFOLIO_STUDIO_WEB_CACHE_VERSION" envDefault:"v1"`
	MediaOrigin    string `env:"PORTFOLIO_STUDIO_WEB_MEDIA_ORIGIN"`
	AssetBaseURL   string `env:"PORTFOLIO_STUDIO_WEB_ASSET_BASE_URL"`
	WarmOnStart    bool   `env:"PORTFOLIO_STUDIO_WEB_WARM_ON_START" envDefault:"false"`
	LogLevel       string `env:"PORTFOLIO_STUDIO_WEB_LOG_LEVEL" envDefault:"info"`
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig loads env defaults through lookup, then applies flags. A nil
// lookup reads the process environment.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	var cfg Config
	if err := config.ParseEnvWithLookup(&cfg, lookup); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "Hosted backend base URL; empty uses the local SQLite store")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Local content database path")
	fs.StringVar(&cfg.CacheDBPath, "cache-db-path", cfg.CacheDBPath, "Asset cache database path; empty keeps the cache in memory")
	fs.StringVar(&cfg.CacheVersion, "cache-version", cfg.CacheVersion, "Asset cache generation version")
	fs.StringVar(&cfg.MediaOrigin, "media-origin", cfg.MediaOrigin, "Upstream origin proxied under /media/")
	fs.StringVar(&cfg.AssetBaseURL, "asset-base-url", cfg.AssetBaseURL, "Image CDN base URL for responsive variants")
	fs.BoolVar(&cfg.WarmOnStart, "warm-on-start", cfg.WarmOnStart, "Preload the landing page once after listening")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.BackendURL) != "" && strings.TrimSpace(cfg.BackendAnonKey) == "" {
		return Config{}, errors.New("PORTFOLIO_STUDIO_WEB_BACKEND_ANON_KEY is required with a backend url")
	}
	return cfg, nil
}

// Run starts the web server.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return platformcmd.RunWithTelemetryAndOptions(ctx, platformcmd.ServiceWeb, platformcmd.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
}

func run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	store, verifiers, closeStore, err := openContent(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	storage, closeCache, err := openCache(ctx, cfg.CacheDBPath)
	if err != nil {
		return err
	}
	defer closeCache()
	worker, err := assetcache.NewWorker(storage, cfg.CacheVersion, logger)
	if err != nil {
		return fmt.Errorf("init asset cache: %w", err)
	}
	purged, err := worker.Activate(ctx)
	if err != nil {
		return fmt.Errorf("activate asset cache: %w", err)
	}
	logger.Info("asset cache active", zap.String("generation", worker.Name()), zap.Strings("purged", purged))

	var verifier auth.Verifier
	if len(verifiers) > 0 {
		verifier = verifiers
	} else {
		logger.Warn("no admin verifier configured; admin api rejects every request")
	}

	server, err := web.NewServer(ctx, web.Config{
		HTTPAddr:     cfg.HTTPAddr,
		Store:        store,
		Verifier:     verifier,
		AssetBaseURL: cfg.AssetBaseURL,
		MediaOrigin:  cfg.MediaOrigin,
		Cache:        worker,
		CacheVersion: cfg.CacheVersion,
		WarmOnStart:  cfg.WarmOnStart,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("init web server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve web: %w", err)
	}
	return nil
}

// openContent picks the hosted backend when configured and the local
// SQLite store otherwise. JWT verification runs first when a secret is set.
func openContent(ctx context.Context, cfg Config, logger *zap.Logger) (content.Store, auth.Chain, func(), error) {
	var verifiers auth.Chain
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtVerifier, err := auth.NewJWTVerifier(secret, cfg.JWTAudience)
		if err != nil {
			return nil, nil, nil, err
		}
		verifiers = append(verifiers, jwtVerifier)
	}

	if strings.TrimSpace(cfg.BackendURL) != "" {
		client, err := backend.New(cfg.BackendURL, cfg.BackendAnonKey, nil)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init backend client: %w", err)
		}
		verifiers = append(verifiers, auth.NewBackendVerifier(client))
		logger.Info("content store", zap.String("kind", "backend"), zap.String("url", cfg.BackendURL))
		return client, verifiers, func() {}, nil
	}

	if err := ensureDir(cfg.DBPath); err != nil {
		return nil, nil, nil, err
	}
	store, err := contentsqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open content store: %w", err)
	}
	logger.Info("content store", zap.String("kind", "sqlite"), zap.String("path", cfg.DBPath))
	return store, verifiers, func() { _ = store.Close() }, nil
}

func openCache(ctx context.Context, path string) (assetcache.Storage, func(), error) {
	if strings.TrimSpace(path) == "" {
		return assetcache.NewMemoryStorage(), func() {}, nil
	}
	if err := ensureDir(path); err != nil {
		return nil, nil, err
	}
	storage, err := cachesqlite.Open(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open asset cache: %w", err)
	}
	return storage, func() { _ = storage.Close() }, nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
