// Package portfolio serves the public portfolio listing consumed by the
// landing page and the preloader.
package portfolio

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/httpx"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
)

// Module provides the listing route.
type Module struct {
	source module.GraphicsSource
}

// New returns a portfolio module.
func New() *Module { return &Module{} }

// ID returns a stable module identifier.
func (*Module) ID() string { return "portfolio" }

// Healthy reports whether a listing source is configured.
func (m *Module) Healthy() bool { return m.source != nil }

// Mount wires the listing handler.
func (m *Module) Mount(deps module.Dependencies) (module.Mount, error) {
	m.source = deps.Graphics
	h := handlers{source: deps.Graphics, logger: logging.OrNop(deps.Logger).Named("portfolio")}
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+routepath.PortfolioGraphics, h.handleList)
	mux.HandleFunc(routepath.PortfolioGraphics, httpx.MethodNotAllowed(http.MethodGet))
	return module.Mount{Prefix: routepath.PortfolioGraphics, Handler: mux}, nil
}

type handlers struct {
	source module.GraphicsSource
	logger *zap.Logger
}

func (h handlers) handleList(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		_ = httpx.WriteJSONError(w, http.StatusServiceUnavailable, "portfolio listing is not configured")
		return
	}
	g, err := h.source.Graphics(r.Context())
	if err != nil {
		h.logger.Warn("load portfolio graphics", zap.Error(err))
		httpx.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	_ = httpx.WriteJSON(w, http.StatusOK, g.Normalized())
}
