package httputil

import (
	"context"
	"net/http"
)

// ReadinessCheck returns a non-nil error when the service cannot serve.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler is the liveness probe.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
}

// ReadinessHandler runs checks in order and reports the first failure.
func ReadinessHandler(checks ...ReadinessCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check(r.Context()); err != nil {
				RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not_ready",
					"reason": err.Error(),
				})
				return
			}
		}
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}

// VersionHandler reports build information.
func VersionHandler(service, version, commit, buildDate string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		RespondJSON(w, http.StatusOK, map[string]string{
			"service":    service,
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})
}
