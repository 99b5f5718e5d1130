// Package web hosts the studio's browser-facing HTTP service: the landing
// page, the public portfolio listing, the admin content API, proxied media
// and the service worker that caches images in the browser.
//
// Feature areas are modules composed by app.Composer. Public modules mount
// directly; protected modules mount under /api/admin/ behind bearer auth.
package web
