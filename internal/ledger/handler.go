package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for ledger history and on-hand reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/transactions", h.handleHistory)
	r.Get("/stock/on-hand", h.handleOnHand)
}

type transactionResponse struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Direction  string          `json:"direction"`
	Location   shared.Location `json:"location"`
	BatchID    int64           `json:"batch_id,omitempty"`
	Qty        float64         `json:"qty"`
	Before     float64         `json:"before"`
	After      float64         `json:"after"`
	Reason     string          `json:"reason"`
	TransferID string          `json:"transfer_id,omitempty"`
	ActorID    int64           `json:"actor_id,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

func toTransactionResponse(tx Transaction) transactionResponse {
	return transactionResponse{
		ID:         tx.ID,
		ProductID:  tx.ProductID,
		Direction:  string(tx.Direction),
		Location:   tx.Location,
		BatchID:    tx.BatchID,
		Qty:        tx.Qty,
		Before:     tx.Before,
		After:      tx.After,
		Reason:     tx.Reason,
		TransferID: tx.TransferID,
		ActorID:    tx.ActorID,
		CreatedAt:  tx.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	txs, pagination, err := h.service.History(r.Context(), filter)
	if err != nil {
		if errors.Is(err, ErrInvalidDirection) || errors.Is(err, shared.ErrInvalidLocation) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("list transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"pagination":   pagination,
	})
}

func (h *Handler) handleOnHand(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	loc, err := locationFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	onHand, err := h.service.OnHand(r.Context(), productID, loc)
	if err != nil {
		h.logger.Error("on-hand", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"location":   loc,
		"on_hand":    onHand,
	})
}

func historyFilterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter
	if raw := q.Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, errors.New("invalid product_id")
		}
		filter.ProductID = id
	}
	if q.Get("location_type") != "" || q.Get("location_id") != "" {
		loc, err := locationFromQuery(r)
		if err != nil {
			return Filter{}, err
		}
		filter.Location = loc
	}
	filter.Direction = Direction(q.Get("direction"))
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filter{}, errors.New("invalid from date")
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return Filter{}, errors.New("invalid to date")
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("page"); raw != "" {
		filter.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("per_page"); raw != "" {
		filter.PerPage, _ = strconv.Atoi(raw)
	}
	return filter, nil
}

func locationFromQuery(r *http.Request) (shared.Location, error) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if err != nil {
		return shared.Location{}, errors.New("invalid location_id")
	}
	return shared.ParseLocation(q.Get("location_type"), id)
}
