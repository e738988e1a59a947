package receiving

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/batch"
	"github.com/meridian-erp/meridian-erp/internal/expense"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// Repository persists receiving documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction spanning
// the batch store, ledger, expense allocator, and document lines.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("receiving repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{
		TxStore:     batch.NewTxStore(tx),
		TxLedger:    ledger.NewTxLedger(tx),
		TxAllocator: expense.NewTxAllocator(tx),
		tx:          tx,
	}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetPurchaseOrder loads a PO header with its lines.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	if r == nil {
		return PurchaseOrder{}, nil, errors.New("receiving repository not initialised")
	}
	var po PurchaseOrder
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, status FROM purchase_orders WHERE id=$1`, id).
		Scan(&po.ID, &po.Number, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrNotFound
		}
		return PurchaseOrder{}, nil, err
	}
	po.Status = POStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT id, po_id, product_id, qty_ordered, qty_received, unit_price
FROM purchase_order_items WHERE po_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	lines := []POLine{}
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.ProductID, &l.QtyOrdered, &l.QtyReceived, &l.UnitPrice); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

// GetShipment loads a shipment header with its items.
func (r *Repository) GetShipment(ctx context.Context, id int64) (Shipment, []ShipmentItem, error) {
	if r == nil {
		return Shipment{}, nil, errors.New("receiving repository not initialised")
	}
	var sh Shipment
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, status FROM shipments WHERE id=$1`, id).
		Scan(&sh.ID, &sh.Number, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, nil, ErrNotFound
		}
		return Shipment{}, nil, err
	}
	sh.Status = ShipmentStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT id, shipment_id, product_id, qty_expected, qty_received
FROM shipment_items WHERE shipment_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Shipment{}, nil, err
	}
	defer rows.Close()
	items := []ShipmentItem{}
	for rows.Next() {
		var i ShipmentItem
		if err := rows.Scan(&i.ID, &i.ShipmentID, &i.ProductID, &i.QtyExpected, &i.QtyReceived); err != nil {
			return Shipment{}, nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return Shipment{}, nil, err
	}
	return sh, items, nil
}

type txRepository struct {
	batch.TxStore
	ledger.TxLedger
	expense.TxAllocator
	tx pgx.Tx
}

func (r *txRepository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := r.tx.QueryRow(ctx, `SELECT id, number, status FROM purchase_orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&po.ID, &po.Number, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}

func (r *txRepository) GetPOLineForUpdate(ctx context.Context, lineID int64) (POLine, error) {
	var l POLine
	err := r.tx.QueryRow(ctx, `SELECT id, po_id, product_id, qty_ordered, qty_received, unit_price
FROM purchase_order_items WHERE id=$1 FOR UPDATE`, lineID).
		Scan(&l.ID, &l.POID, &l.ProductID, &l.QtyOrdered, &l.QtyReceived, &l.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return POLine{}, ErrNotFound
		}
		return POLine{}, err
	}
	return l, nil
}

func (r *txRepository) UpdatePOLineReceived(ctx context.Context, lineID int64, qtyReceived float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET qty_received=$2 WHERE id=$1`, lineID, qtyReceived)
	return err
}

func (r *txRepository) ListPOLines(ctx context.Context, poID int64) ([]POLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, po_id, product_id, qty_ordered, qty_received, unit_price
FROM purchase_order_items WHERE po_id=$1 ORDER BY id ASC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []POLine{}
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.ProductID, &l.QtyOrdered, &l.QtyReceived, &l.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *txRepository) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, poID, string(status))
	return err
}

func (r *txRepository) GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error) {
	var sh Shipment
	var status string
	err := r.tx.QueryRow(ctx, `SELECT id, number, status FROM shipments WHERE id=$1 FOR UPDATE`, id).
		Scan(&sh.ID, &sh.Number, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, err
	}
	sh.Status = ShipmentStatus(status)
	return sh, nil
}

func (r *txRepository) GetShipmentItemForUpdate(ctx context.Context, itemID int64) (ShipmentItem, error) {
	var i ShipmentItem
	err := r.tx.QueryRow(ctx, `SELECT id, shipment_id, product_id, qty_expected, qty_received
FROM shipment_items WHERE id=$1 FOR UPDATE`, itemID).
		Scan(&i.ID, &i.ShipmentID, &i.ProductID, &i.QtyExpected, &i.QtyReceived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ShipmentItem{}, ErrNotFound
		}
		return ShipmentItem{}, err
	}
	return i, nil
}

func (r *txRepository) UpdateShipmentItemReceived(ctx context.Context, itemID int64, qtyReceived float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE shipment_items SET qty_received=$2 WHERE id=$1`, itemID, qtyReceived)
	return err
}

func (r *txRepository) ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, shipment_id, product_id, qty_expected, qty_received
FROM shipment_items WHERE shipment_id=$1 ORDER BY id ASC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ShipmentItem{}
	for rows.Next() {
		var i ShipmentItem
		if err := rows.Scan(&i.ID, &i.ShipmentID, &i.ProductID, &i.QtyExpected, &i.QtyReceived); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *txRepository) UpdateShipmentStatus(ctx context.Context, id int64, status ShipmentStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE shipments SET status=$2 WHERE id=$1`, id, string(status))
	return err
}
