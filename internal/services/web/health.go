package web

import (
	"net/http"

	module "github.com/louisbranch/portfolio.studio/internal/services/web/module"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/httpx"
)

type healthReport struct {
	Status  string          `json:"status"`
	Modules map[string]bool `json:"modules"`
}

// healthHandler reports every module implementing module.HealthReporter.
// Any unhealthy module turns the response into a 503.
func healthHandler(mods []module.Module) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := healthReport{Status: "ok", Modules: map[string]bool{}}
		for _, m := range mods {
			reporter, ok := m.(module.HealthReporter)
			if !ok {
				continue
			}
			healthy := reporter.Healthy()
			report.Modules[m.ID()] = healthy
			if !healthy {
				report.Status = "degraded"
			}
		}
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Cache-Control", "no-store")
		_ = httpx.WriteJSON(w, status, report)
	})
}
