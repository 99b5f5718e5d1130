// Package landing renders the portfolio landing page with its preloader
// overlay.
package landing

import (
	"net/http"
	"path"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/content"
	"github.com/louisbranch/portfolio.studio/internal/platform/assets/imagecdn"
	"github.com/louisbranch/portfolio.studio/internal/platform/i18n/catalog"
	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	"github.com/louisbranch/portfolio.studio/internal/platform/timeouts"
	"github.com/louisbranch/portfolio.studio/internal/preload"
	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
)

var srcsetWidths = []int{320, 640, 1280}

// Module provides the landing route.
type Module struct {
	source module.GraphicsSource
}

// New returns a landing module.
func New() *Module { return &Module{} }

// ID returns a stable module identifier.
func (*Module) ID() string { return "landing" }

// Healthy reports whether a listing source is configured.
func (m *Module) Healthy() bool { return m.source != nil }

// Mount wires the landing handler at the site root only.
func (m *Module) Mount(deps module.Dependencies) (module.Mount, error) {
	m.source = deps.Graphics
	bundle := deps.Catalog
	if bundle == nil {
		bundle = catalog.Default()
	}
	h := handlers{
		source: deps.Graphics,
		bundle: bundle,
		images: deps.Images,
		logger: logging.OrNop(deps.Logger).Named("landing"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" /{$}", h.handleLanding)
	return module.Mount{Prefix: routepath.Root, Handler: mux}, nil
}

type handlers struct {
	source module.GraphicsSource
	bundle *catalog.Bundle
	images imagecdn.CDN
	logger *zap.Logger
}

func (h handlers) handleLanding(w http.ResponseWriter, r *http.Request) {
	locale := h.locale(r)
	var g content.Graphics
	if h.source != nil {
		loaded, err := h.source.Graphics(r.Context())
		if err != nil {
			h.logger.Warn("load portfolio graphics", zap.Error(err))
		} else {
			g = loaded
		}
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Language", locale)
	templ.Handler(pageView(h.page(locale, g.Normalized()))).ServeHTTP(w, r)
}

func (h handlers) locale(r *http.Request) string {
	if lang := strings.TrimSpace(r.URL.Query().Get(routepath.LocaleQueryKey)); lang != "" {
		return h.bundle.Match(lang)
	}
	return h.bundle.Match(r.Header.Get("Accept-Language"))
}

func (h handlers) message(locale, key string) string {
	value, _ := h.bundle.Message(locale, key)
	return value
}

func (h handlers) page(locale string, g content.Graphics) page {
	phrases, ready := preload.Labels(h.bundle, locale)
	critical := preload.DefaultCriticalAssets
	p := page{
		Lang:      locale,
		Title:     h.message(locale, "core.site.title"),
		Tagline:   h.message(locale, "core.site.tagline"),
		Loading:   h.message(locale, "core.preload.label"),
		Phrases:   phrases,
		Ready:     ready,
		Ceiling:   timeouts.PreloadHardCeiling,
		ExitDelay: timeouts.PreloadExitDelay,
		AssetSoft: timeouts.PreloadAssetSoft,
		Critical:  critical,
		Listing:   routepath.PortfolioGraphics,
		Hero:      critical[0],
		Logo:      critical[1],
		Portrait:  critical[2],
	}
	before := h.message(locale, "core.photo.before")
	after := h.message(locale, "core.photo.after")
	for _, collection := range content.Collections() {
		s := section{
			ID:      strings.ReplaceAll(string(collection), "_", "-"),
			Heading: h.message(locale, "core.section."+string(collection)),
		}
		for _, item := range g.Items(collection) {
			c := card{Title: item.Title, Body: item.Body, Alt: item.Title}
			switch collection {
			case content.CollectionClients:
				c.Title, c.Alt = item.Name, item.Name
				c.Src = item.ImageURL
			case content.CollectionCarousels:
				c.Src = firstNonEmpty(item.ThumbnailURL, item.ImageURL)
			case content.CollectionCopywriting:
				c.Src = item.ImageURL
			case content.CollectionPhotoEditing:
				c.Before, c.After = item.BeforeURL, item.AfterURL
				c.BeforeLabel, c.AfterLabel = before, after
			}
			c.Srcset = h.srcset(c.Src)
			s.Cards = append(s.Cards, c)
		}
		p.Sections = append(p.Sections, s)
	}
	return p
}

// srcset returns width variants for proxied media when an image CDN is
// configured. Other URLs render without a srcset.
func (h handlers) srcset(src string) string {
	if !h.images.Configured() || !strings.HasPrefix(src, routepath.MediaPrefix) {
		return ""
	}
	key := strings.TrimPrefix(src, routepath.MediaPrefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	ext := path.Ext(key)
	out, err := h.images.Srcset(strings.TrimSuffix(key, ext), ext, srcsetWidths)
	if err != nil {
		h.logger.Debug("build srcset", zap.String("src", src), zap.Error(err))
		return ""
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
