// Package modules defines web module registry helpers.
package modules

import (
	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/modules/admin"
	"github.com/louisbranch/portfolio.studio/internal/services/web/modules/assets"
	"github.com/louisbranch/portfolio.studio/internal/services/web/modules/landing"
	"github.com/louisbranch/portfolio.studio/internal/services/web/modules/media"
	"github.com/louisbranch/portfolio.studio/internal/services/web/modules/portfolio"
	"github.com/louisbranch/portfolio.studio/internal/services/web/modules/serviceworker"
)

// Mount aliases the module mount contract.
type Mount = module.Mount

// Module aliases the module interface contract.
type Module = module.Module

// DefaultPublicModules returns the unauthenticated site modules.
func DefaultPublicModules() []Module {
	return []Module{
		landing.New(),
		assets.New(),
		serviceworker.New(),
		portfolio.New(),
		media.New(),
	}
}

// DefaultProtectedModules returns the modules mounted behind admin auth.
func DefaultProtectedModules() []Module {
	return []Module{
		admin.New(),
	}
}
