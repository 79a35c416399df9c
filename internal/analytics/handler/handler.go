// Package handler wires the analytics endpoints to the aggregation service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veristat/internal/analytics/models"
	dErrors "veristat/pkg/domain-errors"
	"veristat/pkg/platform/httputil"
	"veristat/pkg/requestcontext"
)

// Service defines the aggregation operations the HTTP layer exposes.
type Service interface {
	Dashboard(ctx context.Context, r models.TimeRange) (*models.DashboardMetrics, error)
	TimeSeries(ctx context.Context, r models.TimeRange) (*models.TimeSeries, error)
	Demographics(ctx context.Context, r models.TimeRange) (*models.DemographicBreakdown, error)
	Geographic(ctx context.Context, r models.TimeRange) (*models.GeographicDistribution, error)
	InvalidateCached(ctx context.Context) error
}

// Handler serves the analytics query endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the analytics endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/analytics/dashboard", h.HandleDashboard)
	r.Get("/analytics/timeseries", h.HandleTimeSeries)
	r.Get("/analytics/demographics", h.HandleDemographics)
	r.Get("/analytics/geographic", h.HandleGeographic)
}

// RegisterAdmin mounts the cache invalidation endpoint; callers guard it.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/analytics/cache/invalidate", h.HandleInvalidateCache)
}

// rangeFromQuery parses start/end query parameters (RFC 3339). End defaults
// to the request time, start to thirty days before end.
func rangeFromQuery(r *http.Request) (models.TimeRange, error) {
	end := requestcontext.Now(r.Context()).UTC()
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.TimeRange{}, dErrors.Wrap(err, dErrors.CodeValidation, "parse end")
		}
		end = parsed.UTC()
	}
	start := end.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.TimeRange{}, dErrors.Wrap(err, dErrors.CodeValidation, "parse start")
		}
		start = parsed.UTC()
	}
	return models.TimeRange{Start: start, End: end}, nil
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, surface string,
	query func(ctx context.Context, tr models.TimeRange) (any, error)) {
	ctx := r.Context()
	tr, err := rangeFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := query(ctx, tr)
	if err != nil {
		h.logger.ErrorContext(ctx, "analytics query failed",
			"surface", surface,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "dashboard", func(ctx context.Context, tr models.TimeRange) (any, error) {
		return h.service.Dashboard(ctx, tr)
	})
}

func (h *Handler) HandleTimeSeries(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "timeseries", func(ctx context.Context, tr models.TimeRange) (any, error) {
		return h.service.TimeSeries(ctx, tr)
	})
}

func (h *Handler) HandleDemographics(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "demographics", func(ctx context.Context, tr models.TimeRange) (any, error) {
		return h.service.Demographics(ctx, tr)
	})
}

func (h *Handler) HandleGeographic(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "geographic", func(ctx context.Context, tr models.TimeRange) (any, error) {
		return h.service.Geographic(ctx, tr)
	})
}

func (h *Handler) HandleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.InvalidateCached(ctx); err != nil {
		h.logger.ErrorContext(ctx, "cache invalidation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
