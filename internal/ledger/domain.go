package ledger

import (
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Direction of a stock movement. Transfers are recorded as a linked OUT/IN
// pair sharing a TransferID, so every row touches exactly one location and
// on-hand at a location derives from replaying its rows alone.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "in"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "out"
)

// Reason codes attached to ledger rows.
const (
	ReasonPurchaseReceipt = "purchase_receipt"
	ReasonShipmentReceipt = "shipment_receipt"
	ReasonTransferOut     = "transfer_out"
	ReasonTransferIn      = "transfer_in"
	ReasonAdjustmentIn    = "adjustment_in"
	ReasonAdjustmentOut   = "adjustment_out"
	ReasonSaleDelivery    = "sale_delivery"
)

// Transaction is one immutable quantity movement with on-hand snapshots taken
// at posting time.
type Transaction struct {
	ID         int64
	ProductID  int64
	Direction  Direction
	Location   shared.Location
	BatchID    int64
	Qty        float64
	Before     float64
	After      float64
	Reason     string
	TransferID string
	ActorID    int64
	CreatedAt  time.Time
}

// Balance is the materialized on-hand projection per (product, location),
// rebuildable by replaying transactions.
type Balance struct {
	ProductID int64
	Location  shared.Location
	OnHand    float64
	UpdatedAt time.Time
}

// Filter narrows transaction history queries.
type Filter struct {
	ProductID int64
	Location  shared.Location
	Direction Direction
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

var (
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInvalidDirection indicates an unknown direction or a malformed
	// transfer location pair.
	ErrInvalidDirection = errors.New("ledger: invalid direction")
	// ErrInsufficientStock triggered when an outbound movement would take
	// on-hand below zero.
	ErrInsufficientStock = errors.New("ledger: insufficient stock on hand")
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("ledger: balance not found")
)
