package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes transactional operations used by service. LockOnHand
// takes the same row lock the ledger takes when posting, so reservation
// checks serialize against concurrent stock movements.
type TxRepository interface {
	LockOnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error)
	SumActive(ctx context.Context, productID int64, loc shared.Location) (float64, error)
	InsertReservation(ctx context.Context, res Reservation) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Reservation, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Reservation, error)
	ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]Reservation, error)
	SumActiveAt(ctx context.Context, productID int64, loc shared.Location) (float64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator bumps derived read-model caches after a state change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates reservation operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator Invalidator
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, invalidator Invalidator) *Service {
	return &Service{repo: repo, audit: audit, invalidator: invalidator}
}

// ReserveInput describes a reservation request.
type ReserveInput struct {
	ProductID    int64
	Location     shared.Location
	Qty          float64
	SalesOrderID int64
	ActorID      int64
}

// Reserve soft-locks quantity when available = on-hand − active reservations
// covers it. No ledger transaction is posted; the stock stays physically in
// place until the delivery workflow ships it.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	if input.ProductID == 0 || input.SalesOrderID == 0 {
		return Reservation{}, errors.New("reservation: product and sales order required")
	}
	if err := input.Location.Validate(); err != nil {
		return Reservation{}, err
	}
	if input.Qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}

	var created Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		onHand, err := tx.LockOnHand(ctx, input.ProductID, input.Location)
		if err != nil {
			return err
		}
		reserved, err := tx.SumActive(ctx, input.ProductID, input.Location)
		if err != nil {
			return err
		}
		if input.Qty > onHand-reserved {
			return ErrInsufficientAvailableStock
		}
		res := Reservation{
			ProductID:    input.ProductID,
			Location:     input.Location,
			Qty:          input.Qty,
			SalesOrderID: input.SalesOrderID,
			Status:       StatusActive,
		}
		id, err := tx.InsertReservation(ctx, res)
		if err != nil {
			return err
		}
		res.ID = id
		created = res
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	s.afterChange(ctx, input.ActorID, "reservation:create", created)
	return created, nil
}

// Release cancels an active reservation without shipment.
func (s *Service) Release(ctx context.Context, id int64, actorID int64) (Reservation, error) {
	return s.transition(ctx, id, actorID, StatusReleased, "reservation:release")
}

// Consume marks an active reservation as physically shipped. The caller's
// delivery workflow posts the matching outbound ledger transaction; consuming
// here only settles the soft lock.
func (s *Service) Consume(ctx context.Context, id int64, actorID int64) (Reservation, error) {
	return s.transition(ctx, id, actorID, StatusConsumed, "reservation:consume")
}

// Get loads one reservation.
func (s *Service) Get(ctx context.Context, id int64) (Reservation, error) {
	return s.repo.Get(ctx, id)
}

// ListBySalesOrder lists reservations for one sales order.
func (s *Service) ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]Reservation, error) {
	if salesOrderID == 0 {
		return nil, errors.New("reservation: sales order required")
	}
	return s.repo.ListBySalesOrder(ctx, salesOrderID)
}

// Reserved sums active reservation quantity for a (product, location).
func (s *Service) Reserved(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	if productID == 0 {
		return 0, errors.New("reservation: product required")
	}
	if err := loc.Validate(); err != nil {
		return 0, err
	}
	return s.repo.SumActiveAt(ctx, productID, loc)
}

func (s *Service) transition(ctx context.Context, id int64, actorID int64, target Status, action string) (Reservation, error) {
	var result Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != StatusActive {
			return ErrInvalidState
		}
		if err := tx.UpdateStatus(ctx, id, target); err != nil {
			return err
		}
		res.Status = target
		result = res
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	s.afterChange(ctx, actorID, action, result)
	return result, nil
}

func (s *Service) afterChange(ctx context.Context, actorID int64, action string, res Reservation) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "stock_reservation",
			EntityID: fmt.Sprintf("%d", res.ID),
			Meta: map[string]any{
				"product_id":     res.ProductID,
				"location":       res.Location.Key(),
				"qty":            res.Qty,
				"sales_order_id": res.SalesOrderID,
				"status":         string(res.Status),
			},
		})
	}
}
