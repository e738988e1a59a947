package reservation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for reservations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs reservation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers reservation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/reservations", h.handleReserve)
	r.Post("/reservations/{reservationID}/release", h.handleRelease)
	r.Post("/reservations/{reservationID}/consume", h.handleConsume)
	r.Get("/reservations/{reservationID}", h.handleGet)
	r.Get("/reservations", h.handleListBySalesOrder)
}

type reserveRequest struct {
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	LocationType string  `json:"location_type" validate:"required,oneof=warehouse shop"`
	LocationID   int64   `json:"location_id" validate:"required,gt=0"`
	Qty          float64 `json:"qty" validate:"required,gt=0"`
	SalesOrderID int64   `json:"sales_order_id" validate:"required,gt=0"`
	ActorID      int64   `json:"actor_id"`
}

type reservationResponse struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	Location     shared.Location `json:"location"`
	Qty          float64         `json:"qty"`
	SalesOrderID int64           `json:"sales_order_id"`
	Status       string          `json:"status"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

func toReservationResponse(res Reservation) reservationResponse {
	out := reservationResponse{
		ID:           res.ID,
		ProductID:    res.ProductID,
		Location:     res.Location,
		Qty:          res.Qty,
		SalesOrderID: res.SalesOrderID,
		Status:       string(res.Status),
	}
	if !res.CreatedAt.IsZero() {
		out.CreatedAt = res.CreatedAt.Format(time.RFC3339)
	}
	return out
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
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
	res, err := h.service.Reserve(r.Context(), ReserveInput{
		ProductID:    req.ProductID,
		Location:     loc,
		Qty:          req.Qty,
		SalesOrderID: req.SalesOrderID,
		ActorID:      req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReservationResponse(res))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Release)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Consume)
}

type transitionRequest struct {
	ActorID int64 `json:"actor_id"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64) (Reservation, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "reservationID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reservation id")
		return
	}
	var req transitionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
			return
		}
	}
	res, err := fn(r.Context(), id, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "reservationID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reservation id")
		return
	}
	res, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) handleListBySalesOrder(w http.ResponseWriter, r *http.Request) {
	salesOrderID, err := strconv.ParseInt(r.URL.Query().Get("sales_order_id"), 10, 64)
	if err != nil || salesOrderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sales_order_id is required")
		return
	}
	reservations, err := h.service.ListBySalesOrder(r.Context(), salesOrderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]reservationResponse, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, toReservationResponse(res))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reservations": out})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "reservation not found")
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, shared.ErrInvalidLocation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientAvailableStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Available Stock", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		h.logger.Error("reservation request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
