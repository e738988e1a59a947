package receiving

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/batch"
	"github.com/meridian-erp/meridian-erp/internal/expense"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository joins every port a receive call mutates: the batch store, the
// ledger, the expense allocator, and the document lines. One implementation
// runs over one open transaction so a receive is all-or-nothing.
type TxRepository interface {
	batch.TxStore
	ledger.TxLedger
	expense.TxAllocator

	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	GetPOLineForUpdate(ctx context.Context, lineID int64) (POLine, error)
	UpdatePOLineReceived(ctx context.Context, lineID int64, qtyReceived float64) error
	ListPOLines(ctx context.Context, poID int64) ([]POLine, error)
	UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error

	GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error)
	GetShipmentItemForUpdate(ctx context.Context, itemID int64) (ShipmentItem, error)
	UpdateShipmentItemReceived(ctx context.Context, itemID int64, qtyReceived float64) error
	ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error)
	UpdateShipmentStatus(ctx context.Context, id int64, status ShipmentStatus) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
	GetShipment(ctx context.Context, id int64) (Shipment, []ShipmentItem, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator bumps derived read-model caches after a state change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates purchase order and shipment receiving.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	invalidator Invalidator
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, invalidator Invalidator) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, invalidator: invalidator}
}

// POReceiveLine is one line of a purchase order receive request.
type POReceiveLine struct {
	LineID   int64
	Qty      float64
	Location shared.Location
}

// Posting reports one batch creation plus its ledger movement.
type Posting struct {
	ProductID int64
	Qty       float64
	Location  shared.Location
	BatchID   int64
	Before    float64
	After     float64
}

// POReceiveResult is the outcome of one PO receive call.
type POReceiveResult struct {
	Status   POStatus
	Postings []Posting
}

// POReceiveInput groups the request.
type POReceiveInput struct {
	POID           int64
	Lines          []POReceiveLine
	ActorID        int64
	IdempotencyKey string
}

// ReceivePurchaseOrderLines receives quantities against purchase order lines:
// per line it creates a batch costed at the line's unit price, posts an
// inbound ledger transaction at the requested location, and advances the
// line's received quantity. When every line is fully received the header
// moves to received. The whole call commits or rolls back as one unit.
func (s *Service) ReceivePurchaseOrderLines(ctx context.Context, input POReceiveInput) (POReceiveResult, error) {
	if input.POID == 0 || len(input.Lines) == 0 {
		return POReceiveResult{}, ErrValidation
	}
	for _, line := range input.Lines {
		if line.LineID == 0 || line.Qty <= 0 {
			return POReceiveResult{}, fmt.Errorf("%w: line quantity must be positive", ErrValidation)
		}
		if err := line.Location.Validate(); err != nil {
			return POReceiveResult{}, err
		}
	}

	insertedKey, err := s.checkIdempotency(ctx, input.IdempotencyKey)
	if err != nil {
		return POReceiveResult{}, err
	}

	var result POReceiveResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPO(ctx, input.POID)
		if err != nil {
			return err
		}
		if po.Status != POStatusApproved {
			return ErrNotReceivable
		}
		for _, line := range input.Lines {
			posting, err := s.receivePOLine(ctx, tx, line, input.ActorID)
			if err != nil {
				return err
			}
			result.Postings = append(result.Postings, posting)
		}

		lines, err := tx.ListPOLines(ctx, input.POID)
		if err != nil {
			return err
		}
		result.Status = po.Status
		if allPOLinesReceived(lines) {
			if err := tx.UpdatePOStatus(ctx, input.POID, POStatusReceived); err != nil {
				return err
			}
			result.Status = POStatusReceived
		}
		return nil
	})
	if err != nil {
		s.rollbackIdempotency(ctx, input.IdempotencyKey, insertedKey)
		return POReceiveResult{}, err
	}
	s.afterReceive(ctx, input.ActorID, "receiving:po", input.POID, result.Postings)
	return result, nil
}

func (s *Service) receivePOLine(ctx context.Context, tx TxRepository, line POReceiveLine, actorID int64) (Posting, error) {
	l, err := tx.GetPOLineForUpdate(ctx, line.LineID)
	if err != nil {
		return Posting{}, err
	}
	if line.Qty > l.Remaining()+quantityEpsilon {
		return Posting{}, ErrOverReceipt
	}
	b, err := batch.Create(ctx, tx, batch.CreateInput{
		ProductID:    l.ProductID,
		Source:       batch.Source{Kind: batch.SourcePurchaseOrderItem, RefID: l.ID},
		Qty:          line.Qty,
		BaseUnitCost: l.UnitPrice,
	})
	if err != nil {
		return Posting{}, err
	}
	movement, err := ledger.Post(ctx, tx, ledger.PostParams{
		ProductID: l.ProductID,
		Direction: ledger.DirectionIn,
		Location:  line.Location,
		BatchID:   b.ID,
		Qty:       line.Qty,
		Reason:    ledger.ReasonPurchaseReceipt,
		ActorID:   actorID,
	})
	if err != nil {
		return Posting{}, err
	}
	if err := tx.UpdatePOLineReceived(ctx, l.ID, l.QtyReceived+line.Qty); err != nil {
		return Posting{}, err
	}
	return Posting{
		ProductID: l.ProductID,
		Qty:       line.Qty,
		Location:  line.Location,
		BatchID:   b.ID,
		Before:    movement.Before,
		After:     movement.After,
	}, nil
}

// ShipmentAllocation places part of one shipment line at one location.
type ShipmentAllocation struct {
	Location shared.Location
	Qty      float64
}

// ShipmentReceiveLine is one line of a shipment receive request. A line may
// split across locations; each allocation becomes its own batch sharing the
// line's base unit cost.
type ShipmentReceiveLine struct {
	ItemID       int64
	BaseUnitCost float64
	Allocations  []ShipmentAllocation
}

// ShipmentReceiveResult is the outcome of one shipment receive call.
type ShipmentReceiveResult struct {
	Status         ShipmentStatus
	ExpensePerUnit float64
	Postings       []Posting
}

// ShipmentReceiveInput groups the request.
type ShipmentReceiveInput struct {
	ShipmentID     int64
	Lines          []ShipmentReceiveLine
	ActorID        int64
	IdempotencyKey string
}

// ReceiveShipmentLines receives shipment lines into one or more locations,
// creating one batch per allocation, posting inbound ledger transactions, and
// recomputing the shipment's landed cost allocation once at the end so every
// received unit carries its even share of capitalizable expenses.
func (s *Service) ReceiveShipmentLines(ctx context.Context, input ShipmentReceiveInput) (ShipmentReceiveResult, error) {
	if input.ShipmentID == 0 || len(input.Lines) == 0 {
		return ShipmentReceiveResult{}, ErrValidation
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || len(line.Allocations) == 0 {
			return ShipmentReceiveResult{}, fmt.Errorf("%w: line requires allocations", ErrValidation)
		}
		if line.BaseUnitCost < 0 {
			return ShipmentReceiveResult{}, batch.ErrInvalidCost
		}
		for _, alloc := range line.Allocations {
			if alloc.Qty <= 0 {
				return ShipmentReceiveResult{}, batch.ErrInvalidQuantity
			}
			if err := alloc.Location.Validate(); err != nil {
				return ShipmentReceiveResult{}, err
			}
		}
	}

	insertedKey, err := s.checkIdempotency(ctx, input.IdempotencyKey)
	if err != nil {
		return ShipmentReceiveResult{}, err
	}

	var result ShipmentReceiveResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.GetShipmentForUpdate(ctx, input.ShipmentID)
		if err != nil {
			return err
		}
		if sh.Status == ShipmentStatusReceived {
			return ErrNotReceivable
		}
		for _, line := range input.Lines {
			postings, err := s.receiveShipmentLine(ctx, tx, line, input.ActorID)
			if err != nil {
				return err
			}
			result.Postings = append(result.Postings, postings...)
		}

		perUnit, err := expense.Recalculate(ctx, tx, expense.ScopeShipment, input.ShipmentID)
		if err != nil && !errors.Is(err, expense.ErrAllocationTargetEmpty) {
			return err
		}
		result.ExpensePerUnit = perUnit

		items, err := tx.ListShipmentItems(ctx, input.ShipmentID)
		if err != nil {
			return err
		}
		result.Status = ShipmentStatusPartiallyReceived
		if allItemsReceived(items) {
			result.Status = ShipmentStatusReceived
		}
		return tx.UpdateShipmentStatus(ctx, input.ShipmentID, result.Status)
	})
	if err != nil {
		s.rollbackIdempotency(ctx, input.IdempotencyKey, insertedKey)
		return ShipmentReceiveResult{}, err
	}
	s.afterReceive(ctx, input.ActorID, "receiving:shipment", input.ShipmentID, result.Postings)
	return result, nil
}

func (s *Service) receiveShipmentLine(ctx context.Context, tx TxRepository, line ShipmentReceiveLine, actorID int64) ([]Posting, error) {
	item, err := tx.GetShipmentItemForUpdate(ctx, line.ItemID)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, alloc := range line.Allocations {
		total += alloc.Qty
	}
	if total > item.Remaining()+quantityEpsilon {
		return nil, ErrOverReceipt
	}
	postings := make([]Posting, 0, len(line.Allocations))
	for _, alloc := range line.Allocations {
		b, err := batch.Create(ctx, tx, batch.CreateInput{
			ProductID:    item.ProductID,
			Source:       batch.Source{Kind: batch.SourceShipmentItem, RefID: item.ID},
			Qty:          alloc.Qty,
			BaseUnitCost: line.BaseUnitCost,
		})
		if err != nil {
			return nil, err
		}
		movement, err := ledger.Post(ctx, tx, ledger.PostParams{
			ProductID: item.ProductID,
			Direction: ledger.DirectionIn,
			Location:  alloc.Location,
			BatchID:   b.ID,
			Qty:       alloc.Qty,
			Reason:    ledger.ReasonShipmentReceipt,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, err
		}
		postings = append(postings, Posting{
			ProductID: item.ProductID,
			Qty:       alloc.Qty,
			Location:  alloc.Location,
			BatchID:   b.ID,
			Before:    movement.Before,
			After:     movement.After,
		})
	}
	if err := tx.UpdateShipmentItemReceived(ctx, item.ID, item.QtyReceived+total); err != nil {
		return nil, err
	}
	return postings, nil
}

// GetPurchaseOrder loads a PO with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// GetShipment loads a shipment with its items.
func (s *Service) GetShipment(ctx context.Context, id int64) (Shipment, []ShipmentItem, error) {
	return s.repo.GetShipment(ctx, id)
}

func allPOLinesReceived(lines []POLine) bool {
	for _, l := range lines {
		if l.Remaining() > quantityEpsilon {
			return false
		}
	}
	return len(lines) > 0
}

func allItemsReceived(items []ShipmentItem) bool {
	for _, i := range items {
		if i.Remaining() > quantityEpsilon {
			return false
		}
	}
	return len(items) > 0
}

func (s *Service) checkIdempotency(ctx context.Context, key string) (bool, error) {
	if s.idempotency == nil || key == "" {
		return false, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "receiving"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) rollbackIdempotency(ctx context.Context, key string, inserted bool) {
	if inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
}

func (s *Service) afterReceive(ctx context.Context, actorID int64, action string, docID int64, postings []Posting) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "receiving",
			EntityID: fmt.Sprintf("%d", docID),
			Meta: map[string]any{
				"postings": len(postings),
			},
		})
	}
}

const quantityEpsilon = 1e-9
