package expense

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Expense, []Adjustment, error)
	ListByTarget(ctx context.Context, scope Scope, targetID int64) ([]Expense, error)
	ListUnapplied(ctx context.Context, limit int) ([]Expense, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates expense recording and landed-cost allocation.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// AddExpenseInput describes an expense to record.
type AddExpenseInput struct {
	Scope         Scope
	TargetID      int64
	Type          string
	Amount        float64
	Capitalizable bool
	Description   string
	ActorID       int64
}

// AddExpense records the expense and recomputes landed cost in the same
// transaction. A shipment expense recorded before any unit is received stays
// unapplied; every later receiving event (and the sweep job) recomputes it.
func (s *Service) AddExpense(ctx context.Context, input AddExpenseInput) (Expense, error) {
	if input.Scope != ScopeShipment && input.Scope != ScopeBatch {
		return Expense{}, ErrInvalidScope
	}
	if input.TargetID == 0 {
		return Expense{}, errors.New("expense: target required")
	}
	if input.Type == "" {
		return Expense{}, errors.New("expense: type required")
	}

	var created Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e := Expense{
			Scope:         input.Scope,
			TargetID:      input.TargetID,
			Type:          input.Type,
			Amount:        input.Amount,
			Capitalizable: input.Capitalizable,
			Description:   input.Description,
		}
		id, err := tx.InsertExpense(ctx, e)
		if err != nil {
			return err
		}
		e.ID = id
		created = e
		if _, err := Recalculate(ctx, tx, input.Scope, input.TargetID); err != nil {
			if errors.Is(err, ErrAllocationTargetEmpty) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Expense{}, err
	}
	s.recordAudit(ctx, input.ActorID, "expense:add", created.ID, map[string]any{
		"scope":         string(created.Scope),
		"target_id":     created.TargetID,
		"amount":        created.Amount,
		"capitalizable": created.Capitalizable,
	})
	return created, nil
}

// AddAdjustmentInput describes a correction appended to an expense.
type AddAdjustmentInput struct {
	ExpenseID int64
	Amount    float64
	Reason    string
	ActorID   int64
}

// AddAdjustment appends a signed correction and recomputes landed cost from
// the new net amount. The original expense amount is never mutated.
func (s *Service) AddAdjustment(ctx context.Context, input AddAdjustmentInput) (Adjustment, error) {
	if input.ExpenseID == 0 {
		return Adjustment{}, errors.New("expense: expense id required")
	}
	if input.Amount == 0 {
		return Adjustment{}, errors.New("expense: adjustment amount must be non zero")
	}

	var created Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetExpenseForUpdate(ctx, input.ExpenseID)
		if err != nil {
			return err
		}
		adj := Adjustment{
			ExpenseID: e.ID,
			Amount:    input.Amount,
			Reason:    input.Reason,
			ActorID:   input.ActorID,
		}
		id, err := tx.InsertAdjustment(ctx, adj)
		if err != nil {
			return err
		}
		adj.ID = id
		created = adj
		if _, err := Recalculate(ctx, tx, e.Scope, e.TargetID); err != nil {
			if errors.Is(err, ErrAllocationTargetEmpty) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "expense:adjust", created.ExpenseID, map[string]any{
		"adjustment_id": created.ID,
		"amount":        created.Amount,
		"reason":        created.Reason,
	})
	return created, nil
}

// RecalculateLandedCost re-runs allocation for one target on demand.
func (s *Service) RecalculateLandedCost(ctx context.Context, scope Scope, targetID int64) (float64, error) {
	var perUnit float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		share, err := Recalculate(ctx, tx, scope, targetID)
		if err != nil {
			return err
		}
		perUnit = share
		return nil
	})
	return perUnit, err
}

// Get loads one expense with its adjustments.
func (s *Service) Get(ctx context.Context, id int64) (Expense, []Adjustment, error) {
	return s.repo.Get(ctx, id)
}

// ListByTarget lists expenses recorded against one shipment or batch.
func (s *Service) ListByTarget(ctx context.Context, scope Scope, targetID int64) ([]Expense, error) {
	if scope != ScopeShipment && scope != ScopeBatch {
		return nil, ErrInvalidScope
	}
	return s.repo.ListByTarget(ctx, scope, targetID)
}

// SweepUnapplied retries allocation for expenses that could not be applied
// yet, returning how many were applied. Called by the background sweep job.
func (s *Service) SweepUnapplied(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListUnapplied(ctx, limit)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, e := range pending {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := Recalculate(ctx, tx, e.Scope, e.TargetID)
			return err
		})
		if errors.Is(err, ErrAllocationTargetEmpty) {
			continue
		}
		if err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "expense",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
