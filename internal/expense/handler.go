package expense

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for expenses and landed cost.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs expense handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/expenses", h.handleAdd)
	r.Post("/expenses/{expenseID}/adjustments", h.handleAddAdjustment)
	r.Post("/expenses/recalculate", h.handleRecalculate)
	r.Get("/expenses/{expenseID}", h.handleGet)
	r.Get("/expenses", h.handleListByTarget)
}

type addExpenseRequest struct {
	Scope         string  `json:"scope" validate:"required,oneof=shipment batch"`
	TargetID      int64   `json:"target_id" validate:"required,gt=0"`
	Type          string  `json:"type" validate:"required"`
	Amount        float64 `json:"amount" validate:"required"`
	Capitalizable bool    `json:"capitalizable"`
	Description   string  `json:"description"`
	ActorID       int64   `json:"actor_id"`
}

type expenseResponse struct {
	ID            int64   `json:"id"`
	Scope         string  `json:"scope"`
	TargetID      int64   `json:"target_id"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Capitalizable bool    `json:"capitalizable"`
	Description   string  `json:"description,omitempty"`
	AppliedAt     string  `json:"applied_at,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

type adjustmentResponse struct {
	ID        int64   `json:"id"`
	ExpenseID int64   `json:"expense_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

func toExpenseResponse(e Expense) expenseResponse {
	out := expenseResponse{
		ID:            e.ID,
		Scope:         string(e.Scope),
		TargetID:      e.TargetID,
		Type:          e.Type,
		Amount:        e.Amount,
		Capitalizable: e.Capitalizable,
		Description:   e.Description,
	}
	if !e.AppliedAt.IsZero() {
		out.AppliedAt = e.AppliedAt.Format(time.RFC3339)
	}
	if !e.CreatedAt.IsZero() {
		out.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return out
}

func toAdjustmentResponse(a Adjustment) adjustmentResponse {
	out := adjustmentResponse{
		ID:        a.ID,
		ExpenseID: a.ExpenseID,
		Amount:    a.Amount,
		Reason:    a.Reason,
	}
	if !a.CreatedAt.IsZero() {
		out.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return out
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.AddExpense(r.Context(), AddExpenseInput{
		Scope:         Scope(req.Scope),
		TargetID:      req.TargetID,
		Type:          req.Type,
		Amount:        req.Amount,
		Capitalizable: req.Capitalizable,
		Description:   req.Description,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toExpenseResponse(created))
}

type addAdjustmentRequest struct {
	Amount  float64 `json:"amount" validate:"required"`
	Reason  string  `json:"reason"`
	ActorID int64   `json:"actor_id"`
}

func (h *Handler) handleAddAdjustment(w http.ResponseWriter, r *http.Request) {
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
	if err != nil || expenseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expense id")
		return
	}
	var req addAdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.AddAdjustment(r.Context(), AddAdjustmentInput{
		ExpenseID: expenseID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAdjustmentResponse(created))
}

type recalculateRequest struct {
	Scope    string `json:"scope" validate:"required,oneof=shipment batch"`
	TargetID int64  `json:"target_id" validate:"required,gt=0"`
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perUnit, err := h.service.RecalculateLandedCost(r.Context(), Scope(req.Scope), req.TargetID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"scope":            req.Scope,
		"target_id":        req.TargetID,
		"expense_per_unit": perUnit,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "expenseID"), 10, 64)
	if err != nil || expenseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expense id")
		return
	}
	e, adjustments, err := h.service.Get(r.Context(), expenseID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	adjOut := make([]adjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		adjOut = append(adjOut, toAdjustmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"expense":     toExpenseResponse(e),
		"adjustments": adjOut,
	})
}

func (h *Handler) handleListByTarget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	targetID, err := strconv.ParseInt(q.Get("target_id"), 10, 64)
	if err != nil || targetID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "target_id is required")
		return
	}
	expenses, err := h.service.ListByTarget(r.Context(), Scope(q.Get("scope")), targetID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": out})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "expense not found")
	case errors.Is(err, ErrInvalidScope):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAllocationTargetEmpty):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Allocation Target Empty", err.Error())
	default:
		h.logger.Error("expense request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
