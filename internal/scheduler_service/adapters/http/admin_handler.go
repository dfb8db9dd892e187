package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rentwatch/golang_services/internal/scheduler_service/app"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

const defaultActiveLimit = 100

// PassController is the part of the scheduler exposed to operators.
type PassController interface {
	Trigger(ctx context.Context, trigger app.TriggerSource) error
	LastPass() (app.PassSummary, bool)
	Running() bool
}

type ActiveSearchLister interface {
	ListActiveSearches(ctx context.Context, limit int) ([]*domain.Search, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AdminHandler struct {
	passes   PassController
	searches ActiveSearchLister
	db       Pinger
	logger   *slog.Logger
	validate *validator.Validate
}

// NewAdminHandler creates the admin handler. db may be nil when running without Postgres.
func NewAdminHandler(passes PassController, searches ActiveSearchLister, db Pinger, logger *slog.Logger, validate *validator.Validate) *AdminHandler {
	return &AdminHandler{
		passes:   passes,
		searches: searches,
		db:       db,
		logger:   logger,
		validate: validate,
	}
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponseDTO{Status: "ok", Database: "ok", Pass: "idle"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "Health check: database unreachable", "error", err)
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	} else {
		resp.Database = "memory"
	}
	if h.passes.Running() {
		resp.Pass = "running"
	}
	writeJSON(w, status, resp)
}

func (h *AdminHandler) TriggerPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.passes.Trigger(ctx, app.TriggerAdmin)
	switch {
	case errors.Is(err, domain.ErrPassInProgress):
		writeError(w, http.StatusConflict, "a pass is already running")
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "Failed to trigger pass", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	subject, _ := ctx.Value(AdminSubjectContextKey).(string)
	h.logger.InfoContext(ctx, "Manual pass triggered", "subject", subject)
	writeJSON(w, http.StatusAccepted, TriggerPassResponseDTO{Status: "started"})
}

func (h *AdminHandler) LastPass(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.passes.LastPass()
	if !ok {
		writeError(w, http.StatusNotFound, "no pass has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AdminHandler) ListActiveSearches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := ListActiveSearchesQuery{Limit: defaultActiveLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = n
	}
	if err := h.validate.StructCtx(ctx, q); err != nil {
		h.logger.WarnContext(ctx, "Validation failed for ListActiveSearches", "error", err)
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}

	searches, err := h.searches.ListActiveSearches(ctx, q.Limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list active searches", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ListActiveSearchesResponseDTO{Searches: make([]SearchDTO, 0, len(searches))}
	for _, s := range searches {
		resp.Searches = append(resp.Searches, toSearchDTO(s))
	}
	resp.Count = len(resp.Searches)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponseDTO{Error: msg})
}
