// Package handler wires the audit ledger endpoints.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veristat/internal/audit"
	"veristat/internal/audit/models"
	dErrors "veristat/pkg/domain-errors"
	"veristat/pkg/platform/httputil"
	"veristat/pkg/requestcontext"
)

// Handler serves the audit ledger endpoints. Reads and writes both go
// through the ledger service so every access is itself recorded.
type Handler struct {
	ledger *audit.Service
	logger *slog.Logger
}

func New(ledger *audit.Service, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// Register mounts the audit endpoints; callers put them behind the bearer
// guard.
func (h *Handler) Register(r chi.Router) {
	r.Post("/audit/events", h.HandleRecord)
	r.Post("/audit/verify", h.HandleVerifyRange)
	r.Get("/audit/history/{principal}", h.HandleHistory)
	r.Get("/audit/exports/{principal}/last", h.HandleLastExport)
}

// RegisterAdmin mounts retention maintenance; callers guard it with the
// admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/audit/purge", h.HandlePurge)
}

type recordRequest struct {
	EventType    string         `json:"event_type"`
	Payload      map[string]any `json:"payload"`
	Severity     string         `json:"severity,omitempty"`
	PrincipalRef string         `json:"principal_ref,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Action       string         `json:"action,omitempty"`
	Status       string         `json:"status,omitempty"`
}

func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[recordRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var opts []audit.RecordOption
	if req.Severity != "" {
		opts = append(opts, audit.WithSeverity(models.Severity(req.Severity)))
	}
	if req.PrincipalRef != "" {
		opts = append(opts, audit.WithPrincipal(req.PrincipalRef))
	}
	if req.ResourceType != "" || req.ResourceID != "" {
		opts = append(opts, audit.WithResource(req.ResourceType, req.ResourceID))
	}
	if req.Action != "" {
		opts = append(opts, audit.WithAction(req.Action))
	}
	if req.Status != "" {
		opts = append(opts, audit.WithStatus(req.Status))
	}

	event, err := h.ledger.Record(ctx, req.EventType, req.Payload, opts...)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit record failed",
			"event_type", req.EventType,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, event)
}

type verifyRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (h *Handler) HandleVerifyRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[verifyRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.ledger.VerifyRange(ctx, req.Start, req.End)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := chi.URLParam(r, "principal")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.History(ctx, principal, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit history read failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleLastExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := chi.URLParam(r, "principal")

	event, err := h.ledger.LastDataExport(ctx, principal)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event)
}

func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deleted, err := h.ledger.PurgeExpired(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit purge failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
