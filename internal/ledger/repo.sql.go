package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const txColumns = `id, product_id, direction, location_type, location_id, batch_id, qty, before_qty, after_qty, reason, transfer_id, actor_id, created_at`

// GetBalance reads the materialized on-hand row without locking.
func (r *Repository) GetBalance(ctx context.Context, productID int64, loc shared.Location) (Balance, error) {
	if r == nil {
		return Balance{}, errors.New("ledger repository not initialised")
	}
	var bal Balance
	bal.ProductID = productID
	bal.Location = loc
	err := r.pool.QueryRow(ctx, `SELECT on_hand, updated_at FROM stock_balances
WHERE product_id=$1 AND location_type=$2 AND location_id=$3`, productID, string(loc.Type), loc.ID).
		Scan(&bal.OnHand, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, Location: loc}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// ReplayOnHand folds the transaction ledger into on-hand for one
// (product, location), bypassing the materialized balance.
func (r *Repository) ReplayOnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	var onHand float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN direction='in' THEN qty ELSE -qty END), 0)
FROM stock_transactions
WHERE product_id=$1 AND location_type=$2 AND location_id=$3`, productID, string(loc.Type), loc.ID).Scan(&onHand)
	return onHand, err
}

// ListBalances pages through all materialized balance rows, used by the
// integrity job to enumerate (product, location) pairs.
func (r *Repository) ListBalances(ctx context.Context, limit, offset int) ([]Balance, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, location_type, location_id, on_hand, updated_at
FROM stock_balances
ORDER BY product_id, location_type, location_id
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		var bal Balance
		var locType string
		if err := rows.Scan(&bal.ProductID, &locType, &bal.Location.ID, &bal.OnHand, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		bal.Location.Type = shared.LocationType(locType)
		balances = append(balances, bal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}

// ListTransactions returns the filtered history plus the total match count.
func (r *Repository) ListTransactions(ctx context.Context, filter Filter) ([]Transaction, int, error) {
	if r == nil {
		return nil, 0, errors.New("ledger repository not initialised")
	}
	where, args := filterClauses(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	n := len(args)
	query := `SELECT ` + txColumns + ` FROM stock_transactions` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(n-1) + ` OFFSET $` + strconv.Itoa(n)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	txs := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func filterClauses(filter Filter) (string, []any) {
	clauses := []string{}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, clause+"$"+strconv.Itoa(len(args)))
	}
	if filter.ProductID != 0 {
		add("product_id=", filter.ProductID)
	}
	if !filter.Location.IsZero() {
		add("location_type=", string(filter.Location.Type))
		add("location_id=", filter.Location.ID)
	}
	if filter.Direction != "" {
		add("direction=", string(filter.Direction))
	}
	if !filter.From.IsZero() {
		add("created_at >= ", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= ", filter.To)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewTxLedger(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// NewTxLedger binds a TxLedger to an open transaction, letting orchestrators
// post movements inside their own transactional unit.
func NewTxLedger(tx pgx.Tx) TxLedger {
	return &txLedger{tx: tx}
}

type txLedger struct {
	tx pgx.Tx
}

func (l *txLedger) GetBalanceForUpdate(ctx context.Context, productID int64, loc shared.Location) (Balance, error) {
	var bal Balance
	bal.ProductID = productID
	bal.Location = loc
	err := l.tx.QueryRow(ctx, `SELECT on_hand, updated_at FROM stock_balances
WHERE product_id=$1 AND location_type=$2 AND location_id=$3 FOR UPDATE`, productID, string(loc.Type), loc.ID).
		Scan(&bal.OnHand, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, Location: loc}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (l *txLedger) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := l.tx.Exec(ctx, `INSERT INTO stock_balances (product_id, location_type, location_id, on_hand, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (product_id, location_type, location_id) DO UPDATE SET on_hand=EXCLUDED.on_hand, updated_at=NOW()`,
		balance.ProductID, string(balance.Location.Type), balance.Location.ID, balance.OnHand)
	return err
}

func (l *txLedger) InsertTransaction(ctx context.Context, record Transaction) (int64, error) {
	var id int64
	err := l.tx.QueryRow(ctx, `INSERT INTO stock_transactions (product_id, direction, location_type, location_id, batch_id, qty, before_qty, after_qty, reason, transfer_id, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		record.ProductID, string(record.Direction), string(record.Location.Type), record.Location.ID,
		nullInt(record.BatchID), record.Qty, record.Before, record.After, record.Reason,
		nullString(record.TransferID), nullInt(record.ActorID), record.CreatedAt).Scan(&id)
	return id, err
}

func scanTransaction(rows pgx.Rows) (Transaction, error) {
	var tx Transaction
	var direction, locType string
	var batchID, actorID *int64
	var transferID *string
	var createdAt time.Time
	err := rows.Scan(&tx.ID, &tx.ProductID, &direction, &locType, &tx.Location.ID, &batchID, &tx.Qty,
		&tx.Before, &tx.After, &tx.Reason, &transferID, &actorID, &createdAt)
	if err != nil {
		return Transaction{}, err
	}
	tx.Direction = Direction(direction)
	tx.Location.Type = shared.LocationType(locType)
	if batchID != nil {
		tx.BatchID = *batchID
	}
	if actorID != nil {
		tx.ActorID = *actorID
	}
	if transferID != nil {
		tx.TransferID = *transferID
	}
	tx.CreatedAt = createdAt
	return tx, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
