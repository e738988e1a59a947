package expense

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/batch"
)

// Repository persists expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const expenseColumns = `id, scope, target_id, expense_type, amount, capitalizable, description, applied_at, created_at`

// WithTx executes the callback inside a repeatable-read transaction, exposing
// both the expense rows and the batch store they allocate against.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("expense repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{
		txAllocator: txAllocator{tx: tx},
		TxStore:     batch.NewTxStore(tx),
	}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Get loads one expense with its adjustments.
func (r *Repository) Get(ctx context.Context, id int64) (Expense, []Adjustment, error) {
	if r == nil {
		return Expense{}, nil, errors.New("expense repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1`, id)
	e, err := scanExpense(row)
	if err != nil {
		return Expense{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, expense_id, amount, reason, actor_id, created_at
FROM expense_adjustments WHERE expense_id=$1 ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return Expense{}, nil, err
	}
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		var adj Adjustment
		var actorID *int64
		if err := rows.Scan(&adj.ID, &adj.ExpenseID, &adj.Amount, &adj.Reason, &actorID, &adj.CreatedAt); err != nil {
			return Expense{}, nil, err
		}
		if actorID != nil {
			adj.ActorID = *actorID
		}
		adjustments = append(adjustments, adj)
	}
	if err := rows.Err(); err != nil {
		return Expense{}, nil, err
	}
	return e, adjustments, nil
}

// ListByTarget lists expenses recorded against one shipment or batch.
func (r *Repository) ListByTarget(ctx context.Context, scope Scope, targetID int64) ([]Expense, error) {
	if r == nil {
		return nil, errors.New("expense repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses
WHERE scope=$1 AND target_id=$2 ORDER BY created_at ASC, id ASC`, string(scope), targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// ListUnapplied lists expenses whose allocation has not run yet.
func (r *Repository) ListUnapplied(ctx context.Context, limit int) ([]Expense, error) {
	if r == nil {
		return nil, errors.New("expense repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses
WHERE applied_at IS NULL AND capitalizable
ORDER BY created_at ASC, id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExpenses(rows)
}

type txRepository struct {
	txAllocator
	batch.TxStore
}

// NewTxAllocator binds a TxAllocator to an open transaction, letting the
// receiving orchestrator recompute landed cost inside its own transaction.
func NewTxAllocator(tx pgx.Tx) TxAllocator {
	return txAllocator{tx: tx}
}

type txAllocator struct {
	tx pgx.Tx
}

func (a txAllocator) InsertExpense(ctx context.Context, e Expense) (int64, error) {
	var id int64
	err := a.tx.QueryRow(ctx, `INSERT INTO expenses (scope, target_id, expense_type, amount, capitalizable, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		string(e.Scope), e.TargetID, e.Type, e.Amount, e.Capitalizable, e.Description).Scan(&id)
	return id, err
}

func (a txAllocator) GetExpenseForUpdate(ctx context.Context, id int64) (Expense, error) {
	row := a.tx.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1 FOR UPDATE`, id)
	return scanExpense(row)
}

func (a txAllocator) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := a.tx.QueryRow(ctx, `INSERT INTO expense_adjustments (expense_id, amount, reason, actor_id, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`,
		adj.ExpenseID, adj.Amount, adj.Reason, nullInt(adj.ActorID)).Scan(&id)
	return id, err
}

func (a txAllocator) SumCapitalizableNet(ctx context.Context, scope Scope, targetID int64) (float64, error) {
	var net float64
	err := a.tx.QueryRow(ctx, `SELECT COALESCE(SUM(e.amount + COALESCE(adj.total, 0)), 0)
FROM expenses e
LEFT JOIN (SELECT expense_id, SUM(amount) AS total FROM expense_adjustments GROUP BY expense_id) adj ON adj.expense_id = e.id
WHERE e.scope=$1 AND e.target_id=$2 AND e.capitalizable`, string(scope), targetID).Scan(&net)
	return net, err
}

func (a txAllocator) MarkApplied(ctx context.Context, scope Scope, targetID int64, at time.Time) error {
	_, err := a.tx.Exec(ctx, `UPDATE expenses SET applied_at=$3 WHERE scope=$1 AND target_id=$2 AND applied_at IS NULL`,
		string(scope), targetID, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (Expense, error) {
	var e Expense
	var scope string
	var appliedAt *time.Time
	err := row.Scan(&e.ID, &scope, &e.TargetID, &e.Type, &e.Amount, &e.Capitalizable, &e.Description, &appliedAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	e.Scope = Scope(scope)
	if appliedAt != nil {
		e.AppliedAt = *appliedAt
	}
	return e, nil
}

func collectExpenses(rows pgx.Rows) ([]Expense, error) {
	expenses := []Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
