package stockops

import (
	"errors"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AdjustDirection of a manual stock correction.
type AdjustDirection string

const (
	// AdjustIn adds stock, creating a sourceless batch.
	AdjustIn AdjustDirection = "in"
	// AdjustOut removes stock, draining batches FIFO.
	AdjustOut AdjustDirection = "out"
)

// AdjustmentInput describes a manual correction.
type AdjustmentInput struct {
	ProductID int64
	Location  shared.Location
	Direction AdjustDirection
	Qty       float64
	UnitCost  float64
	Reason    string
	ActorID   int64
}

// TransferInput describes a location-to-location move.
type TransferInput struct {
	ProductID int64
	From      shared.Location
	To        shared.Location
	Qty       float64
	Reason    string
	ActorID   int64
}

// LocationResult reports the overall on-hand change at one location.
type LocationResult struct {
	Location shared.Location
	Before   float64
	After    float64
}

// AdjustmentResult is the outcome of one adjustment.
type AdjustmentResult struct {
	ProductID int64
	Direction AdjustDirection
	Qty       float64
	LocationResult
	BatchIDs []int64
}

// TransferResult is the outcome of one transfer: the paired before/after at
// source and destination plus the destination batches created.
type TransferResult struct {
	ProductID    int64
	Qty          float64
	TransferID   string
	Source       LocationResult
	Destination  LocationResult
	DestBatchIDs []int64
}

// ErrInvalidAdjustDirection indicates an unknown adjustment direction.
var ErrInvalidAdjustDirection = errors.New("stockops: invalid adjustment direction")

// ErrSameLocation indicates a transfer whose source equals its destination.
var ErrSameLocation = errors.New("stockops: source and destination must differ")
