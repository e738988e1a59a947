package receiving

import "errors"

// Purchase order header statuses this engine touches. The rest of the PO
// lifecycle (draft, approval, cancellation) lives in the procurement system;
// receiving only drives the approved-to-received transition.
type POStatus string

const (
	POStatusApproved POStatus = "approved"
	POStatusReceived POStatus = "received"
)

// Shipment statuses.
type ShipmentStatus string

const (
	ShipmentStatusDraft             ShipmentStatus = "draft"
	ShipmentStatusPartiallyReceived ShipmentStatus = "partially_received"
	ShipmentStatusReceived          ShipmentStatus = "received"
)

// PurchaseOrder is the header view receiving needs.
type PurchaseOrder struct {
	ID     int64
	Number string
	Status POStatus
}

// POLine is one purchase order line with its receiving progress.
type POLine struct {
	ID          int64
	POID        int64
	ProductID   int64
	QtyOrdered  float64
	QtyReceived float64
	UnitPrice   float64
}

// Remaining returns the quantity still open for receipt.
func (l POLine) Remaining() float64 {
	return l.QtyOrdered - l.QtyReceived
}

// Shipment is the header view receiving needs.
type Shipment struct {
	ID     int64
	Number string
	Status ShipmentStatus
}

// ShipmentItem is one shipment line with its receiving progress.
type ShipmentItem struct {
	ID          int64
	ShipmentID  int64
	ProductID   int64
	QtyExpected float64
	QtyReceived float64
}

// Remaining returns the quantity still open for receipt.
func (i ShipmentItem) Remaining() float64 {
	return i.QtyExpected - i.QtyReceived
}

var (
	// ErrOverReceipt triggered when a receive exceeds the line's remaining quantity.
	ErrOverReceipt = errors.New("receiving: quantity exceeds remaining")
	// ErrNotReceivable indicates the document is not in a receivable state.
	ErrNotReceivable = errors.New("receiving: document not receivable")
	// ErrNotFound indicates a missing document or line.
	ErrNotFound = errors.New("receiving: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("receiving: invalid input")
)
