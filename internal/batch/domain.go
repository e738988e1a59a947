package batch

import (
	"errors"
	"time"
)

// SourceKind discriminates how a batch entered stock.
type SourceKind string

const (
	// SourceNone marks batches created by adjustments or transfers.
	SourceNone SourceKind = "none"
	// SourcePurchaseOrderItem links a batch to a purchase order line.
	SourcePurchaseOrderItem SourceKind = "po_item"
	// SourceShipmentItem links a batch to a shipment line.
	SourceShipmentItem SourceKind = "shipment_item"
)

// Source references the document line a batch was received against, if any.
type Source struct {
	Kind  SourceKind
	RefID int64
}

// NoSource is the source of adjustment and transfer batches.
var NoSource = Source{Kind: SourceNone}

// Batch is a lot of a single product received at one moment, carrying its own
// cost basis. QtyReceived and BaseUnitCost are immutable after creation;
// QtyRemaining and LandedUnitCost mutate over the batch's life.
type Batch struct {
	ID             int64
	ProductID      int64
	Source         Source
	QtyReceived    float64
	QtyRemaining   float64
	BaseUnitCost   float64
	LandedUnitCost float64
	ReceivedAt     time.Time
}

// Draw records a FIFO consumption slice taken from one batch.
type Draw struct {
	Batch Batch
	Qty   float64
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("batch: quantity must be positive")
	// ErrInvalidCost indicates a negative unit cost.
	ErrInvalidCost = errors.New("batch: unit cost must be >= 0")
	// ErrInsufficientQuantity triggered when a consume would overdraw the batch.
	ErrInsufficientQuantity = errors.New("batch: insufficient remaining quantity")
	// ErrNotFound indicates a missing batch row.
	ErrNotFound = errors.New("batch: not found")
)
