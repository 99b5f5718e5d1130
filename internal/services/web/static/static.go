// Package static embeds the landing page's browser assets.
package static

import "embed"

// FS exposes web static assets for HTTP serving.
//
//go:embed *.css *.js img/*.png
var FS embed.FS

// ServiceWorkerTemplate is the cache worker script; the version is
// injected per deployment.
//
//go:embed sw.js.tmpl
var ServiceWorkerTemplate string
