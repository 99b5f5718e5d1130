// Package media proxies portfolio media from backend storage. The proxy's
// transport is the asset cache, so repeated image and video requests are
// answered locally.
package media

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/httpx"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
)

// Module provides the media proxy.
type Module struct {
	configured bool
}

// New returns a media module.
func New() *Module { return &Module{} }

// ID returns a stable module identifier.
func (*Module) ID() string { return "media" }

// Healthy reports whether an upstream media origin is configured.
func (m *Module) Healthy() bool { return m.configured }

// Mount wires the proxy. Without an origin every request is 503.
func (m *Module) Mount(deps module.Dependencies) (module.Mount, error) {
	logger := logging.OrNop(deps.Logger).Named("media")
	raw := strings.TrimSpace(deps.MediaOrigin)
	if raw == "" {
		return module.Mount{Prefix: routepath.MediaPrefix, Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = httpx.WriteJSONError(w, http.StatusServiceUnavailable, "media origin is not configured")
		})}, nil
	}
	origin, err := url.Parse(raw)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return module.Mount{}, fmt.Errorf("media origin must be an absolute url: %q", raw)
	}
	m.configured = true

	var transport http.RoundTripper
	if deps.MediaClient != nil {
		transport = deps.MediaClient.Transport
	}
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			rewrite(pr, origin)
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Set-Cookie")
			if resp.StatusCode >= 200 && resp.StatusCode <= 299 && resp.Header.Get("Cache-Control") == "" {
				resp.Header.Set("Cache-Control", "public, max-age=86400")
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, r.Context().Err()) {
				return
			}
			logger.Warn("media upstream failed", zap.String("path", r.URL.Path), zap.Error(err))
			_ = httpx.WriteJSONError(w, http.StatusBadGateway, "media upstream unavailable")
		},
	}

	handler := httpx.Chain(proxy, httpx.RequireMethod(http.MethodGet))
	return module.Mount{Prefix: routepath.MediaPrefix, Handler: handler}, nil
}

// rewrite maps /media/<key> onto <origin path>/<key>, keeping the query so
// width variants stay distinct upstream and in the cache.
func rewrite(pr *httputil.ProxyRequest, origin *url.URL) {
	key := strings.TrimPrefix(pr.In.URL.Path, routepath.MediaPrefix)
	out := pr.Out
	out.URL.Scheme = origin.Scheme
	out.URL.Host = origin.Host
	out.URL.Path = path.Join("/", origin.Path, key)
	out.URL.RawPath = ""
	out.URL.RawQuery = pr.In.URL.RawQuery
	out.Host = origin.Host
	out.Header.Del("Cookie")
	out.Header.Del("Authorization")
}
