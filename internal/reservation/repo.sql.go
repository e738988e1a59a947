package reservation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists reservations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reservationColumns = `id, product_id, location_type, location_id, qty, sales_order_id, status, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("reservation repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Get loads one reservation.
func (r *Repository) Get(ctx context.Context, id int64) (Reservation, error) {
	if r == nil {
		return Reservation{}, errors.New("reservation repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM stock_reservations WHERE id=$1`, id)
	return scanReservation(row)
}

// ListBySalesOrder lists reservations tied to one sales order.
func (r *Repository) ListBySalesOrder(ctx context.Context, salesOrderID int64) ([]Reservation, error) {
	if r == nil {
		return nil, errors.New("reservation repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+` FROM stock_reservations
WHERE sales_order_id=$1 ORDER BY created_at ASC, id ASC`, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SumActiveAt sums active reserved quantity without locking.
func (r *Repository) SumActiveAt(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	if r == nil {
		return 0, errors.New("reservation repository not initialised")
	}
	var reserved float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM stock_reservations
WHERE product_id=$1 AND location_type=$2 AND location_id=$3 AND status=$4`,
		productID, string(loc.Type), loc.ID, string(StatusActive)).Scan(&reserved)
	return reserved, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockOnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	var onHand float64
	err := r.tx.QueryRow(ctx, `SELECT on_hand FROM stock_balances
WHERE product_id=$1 AND location_type=$2 AND location_id=$3 FOR UPDATE`, productID, string(loc.Type), loc.ID).Scan(&onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return onHand, nil
}

func (r *txRepository) SumActive(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	var reserved float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM stock_reservations
WHERE product_id=$1 AND location_type=$2 AND location_id=$3 AND status=$4`,
		productID, string(loc.Type), loc.ID, string(StatusActive)).Scan(&reserved)
	return reserved, err
}

func (r *txRepository) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_reservations (product_id, location_type, location_id, qty, sales_order_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		res.ProductID, string(res.Location.Type), res.Location.ID, res.Qty, res.SalesOrderID, string(res.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Reservation, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM stock_reservations WHERE id=$1 FOR UPDATE`, id)
	return scanReservation(row)
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (Reservation, error) {
	var res Reservation
	var locType, status string
	err := row.Scan(&res.ID, &res.ProductID, &locType, &res.Location.ID, &res.Qty, &res.SalesOrderID, &status, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrNotFound
		}
		return Reservation{}, err
	}
	res.Location.Type = shared.LocationType(locType)
	res.Status = Status(status)
	return res, nil
}
