package expense

import (
	"errors"
	"time"
)

// Scope ties an expense to a shipment or to a single batch.
type Scope string

const (
	// ScopeShipment spreads the expense over every batch received from the shipment.
	ScopeShipment Scope = "shipment"
	// ScopeBatch applies the expense to one batch only.
	ScopeBatch Scope = "batch"
)

// Expense is a cost tied to a shipment or batch. Capitalizable expenses feed
// landed unit cost; non-capitalizable ones are recorded but never allocated.
type Expense struct {
	ID            int64
	Scope         Scope
	TargetID      int64
	Type          string
	Amount        float64
	Capitalizable bool
	Description   string
	AppliedAt     time.Time
	CreatedAt     time.Time
}

// Adjustment is a later correction to an expense. It appends; the original
// amount never mutates. Net amount = original + sum of adjustments.
type Adjustment struct {
	ID        int64
	ExpenseID int64
	Amount    float64
	Reason    string
	ActorID   int64
	CreatedAt time.Time
}

var (
	// ErrInvalidScope indicates an unknown scope value.
	ErrInvalidScope = errors.New("expense: invalid scope")
	// ErrAllocationTargetEmpty triggered when a shipment expense cannot
	// allocate because no unit has been received yet.
	ErrAllocationTargetEmpty = errors.New("expense: allocation target has no received quantity")
	// ErrNotFound indicates a missing expense.
	ErrNotFound = errors.New("expense: not found")
)
