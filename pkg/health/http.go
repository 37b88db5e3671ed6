package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves a Report as JSON on /healthz, returning 503 whenever
// any check is unhealthy so a load balancer or orchestrator can treat
// the status code alone as the liveness signal.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Run()

		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}
