package batch

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const batchColumns = `id, product_id, source_kind, source_ref_id, qty_received, qty_remaining, base_unit_cost, landed_unit_cost, received_at`

// Get loads one batch.
func (r *Repository) Get(ctx context.Context, id int64) (Batch, error) {
	if r == nil {
		return Batch{}, errors.New("batch repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE id=$1`, id)
	return scanBatch(row)
}

// ListByProduct returns the product's batches ordered oldest received first,
// the order FIFO consumption walks them in.
func (r *Repository) ListByProduct(ctx context.Context, productID int64) ([]Batch, error) {
	if r == nil {
		return nil, errors.New("batch repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE product_id=$1
ORDER BY received_at ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

// NewTxStore binds a TxStore to an open transaction.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) InsertBatch(ctx context.Context, b Batch) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_batches (product_id, source_kind, source_ref_id, qty_received, qty_remaining, base_unit_cost, landed_unit_cost, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		b.ProductID, string(b.Source.Kind), nullInt(b.Source.RefID), b.QtyReceived, b.QtyRemaining, b.BaseUnitCost, b.LandedUnitCost, b.ReceivedAt).Scan(&id)
	return id, err
}

func (s *txStore) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE id=$1 FOR UPDATE`, id)
	return scanBatch(row)
}

func (s *txStore) UpdateQtyRemaining(ctx context.Context, id int64, qtyRemaining float64) error {
	_, err := s.tx.Exec(ctx, `UPDATE stock_batches SET qty_remaining=$2 WHERE id=$1`, id, qtyRemaining)
	return err
}

func (s *txStore) SetLandedUnitCost(ctx context.Context, id int64, landed float64) error {
	_, err := s.tx.Exec(ctx, `UPDATE stock_batches SET landed_unit_cost=$2 WHERE id=$1`, id, landed)
	return err
}

func (s *txStore) ListOpenForUpdate(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE product_id=$1 AND qty_remaining > 0
ORDER BY received_at ASC, id ASC
FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

func (s *txStore) ListByShipmentForUpdate(ctx context.Context, shipmentID int64) ([]Batch, error) {
	rows, err := s.tx.Query(ctx, `SELECT b.id, b.product_id, b.source_kind, b.source_ref_id, b.qty_received, b.qty_remaining, b.base_unit_cost, b.landed_unit_cost, b.received_at
FROM stock_batches b
JOIN shipment_items si ON si.id = b.source_ref_id
WHERE b.source_kind=$1 AND si.shipment_id=$2
ORDER BY b.received_at ASC, b.id ASC
FOR UPDATE OF b`, string(SourceShipmentItem), shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (Batch, error) {
	var b Batch
	var kind string
	var refID *int64
	err := row.Scan(&b.ID, &b.ProductID, &kind, &refID, &b.QtyReceived, &b.QtyRemaining, &b.BaseUnitCost, &b.LandedUnitCost, &b.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	b.Source.Kind = SourceKind(kind)
	if refID != nil {
		b.Source.RefID = *refID
	}
	return b, nil
}

func collectBatches(rows pgx.Rows) ([]Batch, error) {
	batches := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
