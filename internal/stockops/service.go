package stockops

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/batch"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository joins the batch store and the ledger over one open transaction
// so an adjustment or transfer commits or rolls back as one unit.
type TxRepository interface {
	batch.TxStore
	ledger.TxLedger
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator bumps derived read-model caches after a state change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates manual adjustments and location transfers.
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

// Adjust posts a manual correction. Inbound adjustments create a sourceless
// batch costed at the given unit cost. Outbound adjustments drain open batches
// oldest-first, posting one ledger transaction per batch drained so the lot a
// unit left is always recorded.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput, idemKey string) (AdjustmentResult, error) {
	if input.ProductID == 0 {
		return AdjustmentResult{}, batch.ErrNotFound
	}
	if err := input.Location.Validate(); err != nil {
		return AdjustmentResult{}, err
	}
	if input.Qty <= 0 {
		return AdjustmentResult{}, batch.ErrInvalidQuantity
	}
	if input.Direction != AdjustIn && input.Direction != AdjustOut {
		return AdjustmentResult{}, ErrInvalidAdjustDirection
	}
	if input.Direction == AdjustIn && input.UnitCost < 0 {
		return AdjustmentResult{}, batch.ErrInvalidCost
	}

	insertedKey, err := s.checkIdempotency(ctx, idemKey)
	if err != nil {
		return AdjustmentResult{}, err
	}

	var result AdjustmentResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		if input.Direction == AdjustIn {
			result, txErr = adjustIn(ctx, tx, input)
		} else {
			result, txErr = adjustOut(ctx, tx, input)
		}
		return txErr
	})
	if err != nil {
		s.rollbackIdempotency(ctx, idemKey, insertedKey)
		return AdjustmentResult{}, err
	}
	s.afterChange(ctx, input.ActorID, "stock:adjust", map[string]any{
		"product_id": input.ProductID,
		"location":   input.Location.Key(),
		"direction":  string(input.Direction),
		"qty":        input.Qty,
		"reason":     input.Reason,
	})
	return result, nil
}

func adjustIn(ctx context.Context, tx TxRepository, input AdjustmentInput) (AdjustmentResult, error) {
	b, err := batch.Create(ctx, tx, batch.CreateInput{
		ProductID:    input.ProductID,
		Source:       batch.NoSource,
		Qty:          input.Qty,
		BaseUnitCost: input.UnitCost,
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	movement, err := ledger.Post(ctx, tx, ledger.PostParams{
		ProductID: input.ProductID,
		Direction: ledger.DirectionIn,
		Location:  input.Location,
		BatchID:   b.ID,
		Qty:       input.Qty,
		Reason:    ledger.ReasonAdjustmentIn,
		ActorID:   input.ActorID,
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	return AdjustmentResult{
		ProductID: input.ProductID,
		Direction: AdjustIn,
		Qty:       input.Qty,
		LocationResult: LocationResult{
			Location: input.Location,
			Before:   movement.Before,
			After:    movement.After,
		},
		BatchIDs: []int64{b.ID},
	}, nil
}

func adjustOut(ctx context.Context, tx TxRepository, input AdjustmentInput) (AdjustmentResult, error) {
	draws, err := batch.DrainFIFO(ctx, tx, input.ProductID, input.Qty)
	if err != nil {
		return AdjustmentResult{}, err
	}
	result := AdjustmentResult{
		ProductID: input.ProductID,
		Direction: AdjustOut,
		Qty:       input.Qty,
		LocationResult: LocationResult{
			Location: input.Location,
		},
	}
	for i, draw := range draws {
		movement, err := ledger.Post(ctx, tx, ledger.PostParams{
			ProductID: input.ProductID,
			Direction: ledger.DirectionOut,
			Location:  input.Location,
			BatchID:   draw.Batch.ID,
			Qty:       draw.Qty,
			Reason:    ledger.ReasonAdjustmentOut,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return AdjustmentResult{}, err
		}
		if i == 0 {
			result.Before = movement.Before
		}
		result.After = movement.After
		result.BatchIDs = append(result.BatchIDs, draw.Batch.ID)
	}
	return result, nil
}

// Transfer moves quantity between two locations as linked outbound and inbound
// ledger transactions sharing one transfer id. Source batches drain
// oldest-first; each drained batch spawns a destination batch whose base cost
// is the source batch's landed cost, so cost basis survives the move.
func (s *Service) Transfer(ctx context.Context, input TransferInput, idemKey string) (TransferResult, error) {
	if input.ProductID == 0 {
		return TransferResult{}, batch.ErrNotFound
	}
	if err := input.From.Validate(); err != nil {
		return TransferResult{}, err
	}
	if err := input.To.Validate(); err != nil {
		return TransferResult{}, err
	}
	if input.From == input.To {
		return TransferResult{}, ErrSameLocation
	}
	if input.Qty <= 0 {
		return TransferResult{}, batch.ErrInvalidQuantity
	}

	insertedKey, err := s.checkIdempotency(ctx, idemKey)
	if err != nil {
		return TransferResult{}, err
	}

	transferID := uuid.NewString()
	result := TransferResult{
		ProductID:  input.ProductID,
		Qty:        input.Qty,
		TransferID: transferID,
		Source:     LocationResult{Location: input.From},
		Destination: LocationResult{
			Location: input.To,
		},
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draws, err := batch.DrainFIFO(ctx, tx, input.ProductID, input.Qty)
		if err != nil {
			return err
		}
		for i, draw := range draws {
			out, err := ledger.Post(ctx, tx, ledger.PostParams{
				ProductID:  input.ProductID,
				Direction:  ledger.DirectionOut,
				Location:   input.From,
				BatchID:    draw.Batch.ID,
				Qty:        draw.Qty,
				Reason:     ledger.ReasonTransferOut,
				TransferID: transferID,
				ActorID:    input.ActorID,
			})
			if err != nil {
				return err
			}
			dest, err := batch.Create(ctx, tx, batch.CreateInput{
				ProductID:    input.ProductID,
				Source:       batch.NoSource,
				Qty:          draw.Qty,
				BaseUnitCost: draw.Batch.LandedUnitCost,
			})
			if err != nil {
				return err
			}
			in, err := ledger.Post(ctx, tx, ledger.PostParams{
				ProductID:  input.ProductID,
				Direction:  ledger.DirectionIn,
				Location:   input.To,
				BatchID:    dest.ID,
				Qty:        draw.Qty,
				Reason:     ledger.ReasonTransferIn,
				TransferID: transferID,
				ActorID:    input.ActorID,
			})
			if err != nil {
				return err
			}
			if i == 0 {
				result.Source.Before = out.Before
				result.Destination.Before = in.Before
			}
			result.Source.After = out.After
			result.Destination.After = in.After
			result.DestBatchIDs = append(result.DestBatchIDs, dest.ID)
		}
		return nil
	})
	if err != nil {
		s.rollbackIdempotency(ctx, idemKey, insertedKey)
		return TransferResult{}, err
	}
	s.afterChange(ctx, input.ActorID, "stock:transfer", map[string]any{
		"product_id":  input.ProductID,
		"from":        input.From.Key(),
		"to":          input.To.Key(),
		"qty":         input.Qty,
		"transfer_id": transferID,
		"reason":      input.Reason,
	})
	return result, nil
}

func (s *Service) checkIdempotency(ctx context.Context, key string) (bool, error) {
	if s.idempotency == nil || key == "" {
		return false, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "stockops"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) rollbackIdempotency(ctx context.Context, key string, inserted bool) {
	if inserted {
		_ = s.idempotency.Delete(ctx, key)
	}
}

func (s *Service) afterChange(ctx context.Context, actorID int64, action string, meta map[string]any) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", meta["product_id"]),
			Meta:     meta,
		})
	}
}
