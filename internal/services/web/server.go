package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/assetcache"
	"github.com/louisbranch/portfolio.studio/internal/auth"
	"github.com/louisbranch/portfolio.studio/internal/content"
	"github.com/louisbranch/portfolio.studio/internal/platform/assets/imagecdn"
	"github.com/louisbranch/portfolio.studio/internal/platform/i18n/catalog"
	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	"github.com/louisbranch/portfolio.studio/internal/platform/timeouts"
	webapp "github.com/louisbranch/portfolio.studio/internal/services/web/app"
	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/modules"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/httpx"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/observability"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
)

// Config defines startup inputs for the web service.
type Config struct {
	HTTPAddr string
	Store    content.Store
	// Graphics overrides the listing source. Defaults to reading Store.
	Graphics module.GraphicsSource
	// Verifier guards the admin API. Nil rejects every admin request.
	Verifier     auth.Verifier
	Catalog      *catalog.Bundle
	AssetBaseURL string
	MediaOrigin  string
	// Cache backs the media proxy and warm-on-start runs. Nil disables
	// server-side caching.
	Cache        *assetcache.Worker
	CacheVersion string
	WarmOnStart  bool
	Logger       *zap.Logger
}

// Server hosts the web HTTP surface and lifecycle.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	cfg        Config
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	warm     sync.WaitGroup
}

type storeGraphics struct {
	store content.Store
}

func (s storeGraphics) Graphics(ctx context.Context) (content.Graphics, error) {
	return content.LoadGraphics(ctx, s.store)
}

// NewHandler builds a root handler from default module registry groups.
func NewHandler(cfg Config) (http.Handler, error) {
	logger := logging.OrNop(cfg.Logger)
	graphics := cfg.Graphics
	if graphics == nil && cfg.Store != nil {
		graphics = storeGraphics{store: cfg.Store}
	}
	deps := module.Dependencies{
		Store:        cfg.Store,
		Graphics:     graphics,
		Catalog:      cfg.Catalog,
		Images:       imagecdn.New(cfg.AssetBaseURL),
		MediaOrigin:  cfg.MediaOrigin,
		MediaClient:  cacheClient(cfg.Cache, nil, logger),
		CacheVersion: cfg.CacheVersion,
		Logger:       logger,
	}
	var protect func(http.Handler) http.Handler
	if cfg.Verifier != nil {
		protect = auth.Middleware(cfg.Verifier, logger.Named("auth"))
	}
	publicModules := modules.DefaultPublicModules()
	protectedModules := modules.DefaultProtectedModules()
	h, err := webapp.Composer{}.Compose(webapp.ComposeInput{
		Dependencies:     deps,
		Protect:          protect,
		PublicModules:    publicModules,
		ProtectedModules: protectedModules,
	})
	if err != nil {
		return nil, err
	}
	rootMux := http.NewServeMux()
	rootMux.Handle(http.MethodGet+" "+routepath.Health, healthHandler(append(publicModules, protectedModules...)))
	rootMux.Handle("/", h)
	return httpx.Chain(rootMux,
		httpx.RecoverPanic(logger),
		httpx.RequestID(),
		observability.RequestLogger(logger.Named("http")),
	), nil
}

// cacheClient returns a client whose image fetches go through worker's
// current generation, or nil when no worker is configured.
func cacheClient(worker *assetcache.Worker, origin *url.URL, logger *zap.Logger) *http.Client {
	if worker == nil {
		return nil
	}
	return assetcache.NewTransport(assetcache.TransportConfig{
		Worker: worker,
		Origin: origin,
		Logger: logger,
	}).Client(timeouts.BackendRequest)
}

// NewServer validates config and constructs a web server.
func NewServer(_ context.Context, cfg Config) (*Server, error) {
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	handler, err := NewHandler(cfg)
	if err != nil {
		return nil, fmt.Errorf("compose web handler: %w", err)
	}
	return &Server{
		httpAddr: httpAddr,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
	}, nil
}

// Addr returns the bound listen address once serving, or the configured
// address before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpAddr
}

// ListenAndServe serves HTTP traffic until context cancellation or server stop.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("web server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("web listening", zap.String("addr", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	warmCtx, cancelWarm := context.WithCancel(ctx)
	defer func() {
		cancelWarm()
		s.warm.Wait()
	}()
	if s.cfg.WarmOnStart {
		s.warm.Go(func() { s.warmCache(warmCtx, "http://"+listener.Addr().String()) })
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown web http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve web http: %w", err)
	}
}

// Close closes open server resources.
func (s *Server) Close() {
	if s == nil || s.httpServer == nil {
		return
	}
	_ = s.httpServer.Close()
}
