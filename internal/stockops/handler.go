package stockops

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/batch"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for adjustments and transfers.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs stockops handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock operation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/adjustments", h.handleAdjust)
	r.Post("/stock/transfers", h.handleTransfer)
}

type adjustRequest struct {
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	LocationType string  `json:"location_type" validate:"required,oneof=warehouse shop"`
	LocationID   int64   `json:"location_id" validate:"required,gt=0"`
	Direction    string  `json:"direction" validate:"required,oneof=in out"`
	Qty          float64 `json:"qty" validate:"required,gt=0"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
	Reason       string  `json:"reason"`
	ActorID      int64   `json:"actor_id"`
}

type locationResultResponse struct {
	Location shared.Location `json:"location"`
	Before   float64         `json:"before"`
	After    float64         `json:"after"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	loc, err := shared.ParseLocation(req.LocationType, req.LocationID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Adjust(r.Context(), AdjustmentInput{
		ProductID: req.ProductID,
		Location:  loc,
		Direction: AdjustDirection(req.Direction),
		Qty:       req.Qty,
		UnitCost:  req.UnitCost,
		Reason:    req.Reason,
		ActorID:   req.ActorID,
	}, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"product_id": result.ProductID,
		"direction":  string(result.Direction),
		"qty":        result.Qty,
		"result": locationResultResponse{
			Location: result.Location,
			Before:   result.Before,
			After:    result.After,
		},
		"batch_ids": result.BatchIDs,
	})
}

type transferRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	FromType  string  `json:"from_type" validate:"required,oneof=warehouse shop"`
	FromID    int64   `json:"from_id" validate:"required,gt=0"`
	ToType    string  `json:"to_type" validate:"required,oneof=warehouse shop"`
	ToID      int64   `json:"to_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	Reason    string  `json:"reason"`
	ActorID   int64   `json:"actor_id"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	from, err := shared.ParseLocation(req.FromType, req.FromID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	to, err := shared.ParseLocation(req.ToType, req.ToID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Transfer(r.Context(), TransferInput{
		ProductID: req.ProductID,
		From:      from,
		To:        to,
		Qty:       req.Qty,
		Reason:    req.Reason,
		ActorID:   req.ActorID,
	}, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"product_id":  result.ProductID,
		"qty":         result.Qty,
		"transfer_id": result.TransferID,
		"source": locationResultResponse{
			Location: result.Source.Location,
			Before:   result.Source.Before,
			After:    result.Source.After,
		},
		"destination": locationResultResponse{
			Location: result.Destination.Location,
			Before:   result.Destination.Before,
			After:    result.Destination.After,
		},
		"dest_batch_ids": result.DestBatchIDs,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAdjustDirection),
		errors.Is(err, ErrSameLocation),
		errors.Is(err, batch.ErrInvalidQuantity),
		errors.Is(err, batch.ErrInvalidCost),
		errors.Is(err, shared.ErrInvalidLocation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, batch.ErrInsufficientQuantity), errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, batch.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this request was already processed")
	default:
		h.logger.Error("stock operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
