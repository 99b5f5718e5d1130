// Package assets serves the embedded landing page assets under /static/.
package assets

import (
	"io/fs"
	"net/http"

	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/routepath"
	webstatic "github.com/louisbranch/portfolio.studio/internal/services/web/static"
)

// Module provides static asset routes.
type Module struct {
	fsys fs.FS
}

// New returns an assets module over the embedded files.
func New() Module { return Module{fsys: webstatic.FS} }

// NewWithFS returns an assets module over fsys.
func NewWithFS(fsys fs.FS) Module { return Module{fsys: fsys} }

// ID returns a stable module identifier.
func (Module) ID() string { return "assets" }

// Mount wires the file server.
func (m Module) Mount(module.Dependencies) (module.Mount, error) {
	files := http.StripPrefix(routepath.StaticPrefix, http.FileServerFS(m.fsys))
	mux := http.NewServeMux()
	mux.Handle(http.MethodGet+" "+routepath.StaticPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	}))
	return module.Mount{Prefix: routepath.StaticPrefix, Handler: mux}, nil
}
