// Package module defines the feature contract used by web composition.
package module

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/content"
	"github.com/louisbranch/portfolio.studio/internal/platform/assets/imagecdn"
	"github.com/louisbranch/portfolio.studio/internal/platform/i18n/catalog"
)

// Mount describes a module route mount.
type Mount struct {
	Prefix  string
	Handler http.Handler
}

// Module declares the minimum contract required by web composition.
type Module interface {
	ID() string
	Mount(Dependencies) (Mount, error)
}

// HealthReporter is an optional interface for modules that can report their
// operational availability.
type HealthReporter interface {
	Healthy() bool
}

// GraphicsSource loads the public portfolio listing.
type GraphicsSource interface {
	Graphics(ctx context.Context) (content.Graphics, error)
}

// Dependencies carries the shared collaborators modules may use. Fields a
// module does not need stay unused; nil collaborators make the owning
// module report itself unhealthy instead of failing to mount.
type Dependencies struct {
	Store        content.Store
	Graphics     GraphicsSource
	Catalog      *catalog.Bundle
	Images       imagecdn.CDN
	MediaOrigin  string
	MediaClient  *http.Client
	CacheVersion string
	Logger       *zap.Logger
}
