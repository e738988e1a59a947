package reservation

import (
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Status tracks the reservation lifecycle: active is the only non-terminal
// state; released and consumed are terminal with no way back.
type Status string

const (
	// StatusActive soft-locks the quantity against available stock.
	StatusActive Status = "active"
	// StatusReleased means the reservation was cancelled without shipment.
	StatusReleased Status = "released"
	// StatusConsumed means the quantity was physically shipped.
	StatusConsumed Status = "consumed"
)

// Reservation soft-locks quantity for a product at one location against a
// sales order. It never moves stock itself; the delivery workflow posts the
// outbound transaction when it ships.
type Reservation struct {
	ID           int64
	ProductID    int64
	Location     shared.Location
	Qty          float64
	SalesOrderID int64
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrInvalidQuantity indicates a non-positive reservation quantity.
	ErrInvalidQuantity = errors.New("reservation: quantity must be positive")
	// ErrInsufficientAvailableStock triggered when on-hand minus active
	// reservations cannot cover the request.
	ErrInsufficientAvailableStock = errors.New("reservation: insufficient available stock")
	// ErrInvalidState indicates a transition out of a terminal state.
	ErrInvalidState = errors.New("reservation: invalid state transition")
	// ErrNotFound indicates a missing reservation.
	ErrNotFound = errors.New("reservation: not found")
)
