package receiving

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/batch"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for receiving.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs receiving handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receiving/purchase-orders/{poID}/receive", h.handleReceivePO)
	r.Post("/receiving/shipments/{shipmentID}/receive", h.handleReceiveShipment)
	r.Get("/receiving/purchase-orders/{poID}", h.handleGetPO)
	r.Get("/receiving/shipments/{shipmentID}", h.handleGetShipment)
}

type poReceiveLineRequest struct {
	LineID       int64   `json:"line_id" validate:"required,gt=0"`
	Qty          float64 `json:"qty" validate:"required,gt=0"`
	LocationType string  `json:"location_type" validate:"required,oneof=warehouse shop"`
	LocationID   int64   `json:"location_id" validate:"required,gt=0"`
}

type poReceiveRequest struct {
	Lines   []poReceiveLineRequest `json:"lines" validate:"required,min=1,dive"`
	ActorID int64                  `json:"actor_id"`
}

type postingResponse struct {
	ProductID int64           `json:"product_id"`
	Qty       float64         `json:"qty"`
	Location  shared.Location `json:"location"`
	BatchID   int64           `json:"batch_id"`
	Before    float64         `json:"before"`
	After     float64         `json:"after"`
}

func toPostingResponses(postings []Posting) []postingResponse {
	out := make([]postingResponse, 0, len(postings))
	for _, p := range postings {
		out = append(out, postingResponse(p))
	}
	return out
}

func (h *Handler) handleReceivePO(w http.ResponseWriter, r *http.Request) {
	poID, err := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	if err != nil || poID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order id")
		return
	}
	var req poReceiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := POReceiveInput{
		POID:           poID,
		ActorID:        req.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, line := range req.Lines {
		loc, err := shared.ParseLocation(line.LocationType, line.LocationID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input.Lines = append(input.Lines, POReceiveLine{LineID: line.LineID, Qty: line.Qty, Location: loc})
	}
	result, err := h.service.ReceivePurchaseOrderLines(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":   string(result.Status),
		"postings": toPostingResponses(result.Postings),
	})
}

type shipmentAllocationRequest struct {
	LocationType string  `json:"location_type" validate:"required,oneof=warehouse shop"`
	LocationID   int64   `json:"location_id" validate:"required,gt=0"`
	Qty          float64 `json:"qty" validate:"required,gt=0"`
}

type shipmentReceiveLineRequest struct {
	ItemID       int64                       `json:"item_id" validate:"required,gt=0"`
	BaseUnitCost float64                     `json:"base_unit_cost" validate:"gte=0"`
	Allocations  []shipmentAllocationRequest `json:"allocations" validate:"required,min=1,dive"`
}

type shipmentReceiveRequest struct {
	Lines   []shipmentReceiveLineRequest `json:"lines" validate:"required,min=1,dive"`
	ActorID int64                        `json:"actor_id"`
}

func (h *Handler) handleReceiveShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := strconv.ParseInt(chi.URLParam(r, "shipmentID"), 10, 64)
	if err != nil || shipmentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid shipment id")
		return
	}
	var req shipmentReceiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ShipmentReceiveInput{
		ShipmentID:     shipmentID,
		ActorID:        req.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, line := range req.Lines {
		receiveLine := ShipmentReceiveLine{ItemID: line.ItemID, BaseUnitCost: line.BaseUnitCost}
		for _, alloc := range line.Allocations {
			loc, err := shared.ParseLocation(alloc.LocationType, alloc.LocationID)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
				return
			}
			receiveLine.Allocations = append(receiveLine.Allocations, ShipmentAllocation{Location: loc, Qty: alloc.Qty})
		}
		input.Lines = append(input.Lines, receiveLine)
	}
	result, err := h.service.ReceiveShipmentLines(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":           string(result.Status),
		"expense_per_unit": result.ExpensePerUnit,
		"postings":         toPostingResponses(result.Postings),
	})
}

type poLineResponse struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	QtyOrdered  float64 `json:"qty_ordered"`
	QtyReceived float64 `json:"qty_received"`
	UnitPrice   float64 `json:"unit_price"`
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	poID, err := strconv.ParseInt(chi.URLParam(r, "poID"), 10, 64)
	if err != nil || poID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid purchase order id")
		return
	}
	po, lines, err := h.service.GetPurchaseOrder(r.Context(), poID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	lineOut := make([]poLineResponse, 0, len(lines))
	for _, l := range lines {
		lineOut = append(lineOut, poLineResponse{
			ID:          l.ID,
			ProductID:   l.ProductID,
			QtyOrdered:  l.QtyOrdered,
			QtyReceived: l.QtyReceived,
			UnitPrice:   l.UnitPrice,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":     po.ID,
		"number": po.Number,
		"status": string(po.Status),
		"lines":  lineOut,
	})
}

type shipmentItemResponse struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	QtyExpected float64 `json:"qty_expected"`
	QtyReceived float64 `json:"qty_received"`
}

func (h *Handler) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, err := strconv.ParseInt(chi.URLParam(r, "shipmentID"), 10, 64)
	if err != nil || shipmentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid shipment id")
		return
	}
	sh, items, err := h.service.GetShipment(r.Context(), shipmentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	itemOut := make([]shipmentItemResponse, 0, len(items))
	for _, item := range items {
		itemOut = append(itemOut, shipmentItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			QtyExpected: item.QtyExpected,
			QtyReceived: item.QtyReceived,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":     sh.ID,
		"number": sh.Number,
		"status": string(sh.Status),
		"items":  itemOut,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, batch.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation),
		errors.Is(err, batch.ErrInvalidQuantity),
		errors.Is(err, batch.ErrInvalidCost),
		errors.Is(err, shared.ErrInvalidLocation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrOverReceipt):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Over Receipt", err.Error())
	case errors.Is(err, ErrNotReceivable):
		httpx.Problem(w, http.StatusConflict, "Not Receivable", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this request was already processed")
	default:
		h.logger.Error("receiving request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
