// Package serviceworker serves the browser-side asset cache worker from
// the site root so its scope covers every page.
package serviceworker

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/httpx"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
	webstatic "github.com/louisbranch/portfolio.studio/internal/services/web/static"
)

// DefaultVersion names the generation when none is configured.
const DefaultVersion = "v1"

// Module provides the /sw.js route.
type Module struct{}

// New returns a service worker module.
func New() Module { return Module{} }

// ID returns a stable module identifier.
func (Module) ID() string { return "serviceworker" }

// Mount renders the worker script once with the cache version.
func (Module) Mount(deps module.Dependencies) (module.Mount, error) {
	version := strings.TrimSpace(deps.CacheVersion)
	if version == "" {
		version = DefaultVersion
	}
	script, err := Render(version)
	if err != nil {
		return module.Mount{}, err
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Service-Worker-Allowed", routepath.ServiceWorkerScope)
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(script)
	})
	return module.Mount{
		Prefix:  routepath.ServiceWorker,
		Handler: httpx.Chain(handler, httpx.RequireMethod(http.MethodGet)),
	}, nil
}

// Render returns the worker script for version.
func Render(version string) ([]byte, error) {
	tmpl, err := template.New("sw.js").Parse(webstatic.ServiceWorkerTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse service worker template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Version string }{Version: version}); err != nil {
		return nil, fmt.Errorf("render service worker: %w", err)
	}
	return buf.Bytes(), nil
}
