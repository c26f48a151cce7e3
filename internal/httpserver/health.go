package httpserver

import (
	"context"
	"database/sql"
	"net/http"
	"sort"
	"time"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// DatabaseCheck pings a SQL database.
type DatabaseCheck struct {
	DB *sql.DB
}

func (d DatabaseCheck) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

type healthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]checkStatus `json:"checks,omitempty"`
}

type checkStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := healthStatus{Status: "healthy", Timestamp: time.Now().UTC()}
		if len(names) > 0 {
			health.Checks = make(map[string]checkStatus, len(names))
		}
		for _, name := range names {
			if err := checks[name].Check(ctx); err != nil {
				health.Status = "unhealthy"
				health.Checks[name] = checkStatus{Status: "unhealthy", Message: err.Error()}
				continue
			}
			health.Checks[name] = checkStatus{Status: "healthy"}
		}

		code := http.StatusOK
		if health.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}
