package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"upagg/internal/aggregation/metrics"
	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
	"upagg/pkg/platform/httputil"
	"upagg/pkg/platform/sentinel"
)

// Reader looks up a final row by entity id.
type Reader interface {
	FindResult(ctx context.Context, id models.EntityID) (*models.Result, error)
}

// Handler serves published results.
type Handler struct {
	reader  Reader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(reader Reader, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{reader: reader, logger: logger, metrics: metrics}
}

// Register mounts the lookup endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/issuers/{entityID}", h.HandleGetIssuer)
}

// HandleGetIssuer handles GET /v1/issuers/{entityID}. view=compact returns
// the compact projection.
func (h *Handler) HandleGetIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := models.ParseEntityID(chi.URLParam(r, "entityID"))
	if id.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "entity id is required"))
		return
	}

	res, err := h.reader.FindResult(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.metrics.IncrementLookup("miss")
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "no result for %s", id))
		return
	}
	if err != nil {
		h.metrics.IncrementLookup("error")
		if h.logger != nil {
			h.logger.ErrorContext(ctx, "result lookup failed",
				"request_id", chimiddleware.GetReqID(ctx),
				"entity_id", id,
				"error", err,
			)
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load result"))
		return
	}

	h.metrics.IncrementLookup("hit")
	if r.URL.Query().Get("view") == "compact" {
		httputil.WriteJSON(w, http.StatusOK, res.Compact())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
