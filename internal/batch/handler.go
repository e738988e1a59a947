package batch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for batch reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs batch handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batches", h.handleList)
	r.Get("/batches/{batchID}", h.handleGet)
}

type batchResponse struct {
	ID             int64   `json:"id"`
	ProductID      int64   `json:"product_id"`
	SourceKind     string  `json:"source_kind"`
	SourceRefID    int64   `json:"source_ref_id,omitempty"`
	QtyReceived    float64 `json:"qty_received"`
	QtyRemaining   float64 `json:"qty_remaining"`
	BaseUnitCost   float64 `json:"base_unit_cost"`
	LandedUnitCost float64 `json:"landed_unit_cost"`
	ReceivedAt     string  `json:"received_at"`
}

func toBatchResponse(b Batch) batchResponse {
	return batchResponse{
		ID:             b.ID,
		ProductID:      b.ProductID,
		SourceKind:     string(b.Source.Kind),
		SourceRefID:    b.Source.RefID,
		QtyReceived:    b.QtyReceived,
		QtyRemaining:   b.QtyRemaining,
		BaseUnitCost:   b.BaseUnitCost,
		LandedUnitCost: b.LandedUnitCost,
		ReceivedAt:     b.ReceivedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "batch not found")
			return
		}
		h.logger.Error("get batch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(b))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	batches, err := h.service.ListByProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("list batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": out})
}
