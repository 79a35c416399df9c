// Package httptransport assembles the HTTP router: middleware chain,
// public analytics endpoints, guarded audit endpoints, and operational
// surfaces.
package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	analyticshandler "veristat/internal/analytics/handler"
	"veristat/internal/audit"
	audithandler "veristat/internal/audit/handler"
	"veristat/internal/audit/models"
	"veristat/internal/audit/publisher"
	"veristat/internal/platform/metrics"
	"veristat/pkg/platform/middleware/admin"
	"veristat/pkg/platform/middleware/auth"
	"veristat/pkg/platform/middleware/metadata"
	"veristat/pkg/platform/middleware/requestid"
	"veristat/pkg/platform/middleware/requesttime"
)

// Deps carries everything the router mounts. AuthValidator and AdminToken
// gate the audit and operational surfaces; a nil validator leaves the audit
// endpoints unmounted rather than open.
type Deps struct {
	Analytics     *analyticshandler.Handler
	Audit         *audithandler.Handler
	AuthValidator auth.Validator
	AdminToken    string
	Logger        *slog.Logger
	Metrics       *metrics.Metrics

	// AuditTrail, when set, records successful admin mutations off the
	// request path.
	AuditTrail *publisher.Async
}

// NewRouter wires all endpoints behind the shared middleware chain.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(observe(deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		deps.Analytics.Register(v1)

		if deps.AuthValidator != nil {
			v1.Group(func(guarded chi.Router) {
				guarded.Use(auth.RequireAuth(deps.AuthValidator, deps.Logger))
				deps.Audit.Register(guarded)
			})
		}
	})

	r.Route("/admin", func(ops chi.Router) {
		ops.Use(admin.RequireAdminToken(deps.AdminToken, deps.Logger))
		ops.Use(auditAdmin(deps.AuditTrail))
		deps.Analytics.RegisterAdmin(ops)
		deps.Audit.RegisterAdmin(ops)
	})

	return r
}

// auditAdmin trails every successful admin mutation as a config-change
// audit event. Recording is asynchronous so a slow ledger cannot delay
// the operator.
func auditAdmin(trail *publisher.Async) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trail == nil || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				return
			}
			route := chi.RouteContext(r.Context()).RoutePattern()
			trail.Submit(r.Context(), models.EventSystemConfigChange,
				map[string]any{
					"route":       route,
					"method":      r.Method,
					"status_code": rec.status,
				},
				audit.WithAction(route),
				audit.WithStatus("SUCCESS"),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observe records request latency per matched route so high-cardinality raw
// paths never become label values.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.IncInFlight()
			defer m.DecInFlight()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, r.Method, strconv.Itoa(rec.status), time.Since(start).Seconds())
		})
	}
}
