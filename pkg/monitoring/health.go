package monitoring

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker is a named readiness probe
type HealthChecker struct {
	Name  string
	Check func() error
}

// HealthStatus is the /health response body
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler returns an HTTP handler running the given probes.
func HealthHandler(checkers ...HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now(),
			Checks:    make(map[string]string, len(checkers)),
		}

		code := http.StatusOK
		for _, c := range checkers {
			if err := c.Check(); err != nil {
				status.Status = "unhealthy"
				status.Checks[c.Name] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				status.Checks[c.Name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}
