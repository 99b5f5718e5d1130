// Package routepath stores canonical HTTP paths for web modules.
package routepath

import (
	"net/url"
	"strings"

	"github.com/louisbranch/portfolio.studio/internal/content"
)

const (
	Root                 = "/"
	Health               = "/healthz"
	ServiceWorker        = "/sw.js"
	StaticPrefix         = "/static/"
	MediaPrefix          = "/media/"
	APIPrefix            = "/api/"
	PortfolioGraphics    = "/api/portfolio-graphics"
	AdminPrefix          = "/api/admin/"
	AdminCollection      = AdminPrefix + "{collection}"
	AdminItem            = AdminPrefix + "{collection}/{id}"
	LocaleQueryKey       = "lang"
	ServiceWorkerScope   = "/"
	ServiceWorkerVersion = "v"
)

// AdminCollectionPath returns the admin route for a collection.
func AdminCollectionPath(collection content.Collection) string {
	return AdminPrefix + escapeSegment(string(collection))
}

// AdminItemPath returns the admin route for one item.
func AdminItemPath(collection content.Collection, id string) string {
	return AdminCollectionPath(collection) + "/" + escapeSegment(id)
}

// Media returns the proxied media route for an object key.
func Media(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return MediaPrefix + strings.Join(parts, "/")
}

func escapeSegment(raw string) string {
	return url.PathEscape(strings.TrimSpace(raw))
}
