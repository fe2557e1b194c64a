package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/expense-track/apiserver/types"
)

// ExpenseFilter carries optional inclusive range bounds applied to an
// expense listing after ownership scoping.
type ExpenseFilter struct {
	DateFrom   *types.Date
	DateTo     *types.Date
	TimeFrom   *types.TimeOfDay
	TimeTo     *types.TimeOfDay
	AmountFrom *types.Amount
	AmountTo   *types.Amount
}

// ExpenseRepository handles persistence for expenses.
type ExpenseRepository struct {
	db *sql.DB
}

func NewExpenseRepository(db *sql.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

const expenseColumns = `e.id, e.user_id, u.username, e.date, e.time, e.amount, e.description, e.comment, e.receipt_key, e.receipt_content_type, e.created_at, e.updated_at`

func scanExpense(row interface{ Scan(...any) error }) (types.Expense, error) {
	var expense types.Expense
	err := row.Scan(
		&expense.ID,
		&expense.UserID,
		&expense.Username,
		&expense.Date,
		&expense.Time,
		&expense.Amount,
		&expense.Description,
		&expense.Comment,
		&expense.ReceiptKey,
		&expense.ReceiptContentType,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Expense{}, ErrNotFound
		}
		return types.Expense{}, err
	}
	return expense, nil
}

// List returns expenses in the default `(date, amount)` ordering. An empty
// ownerUsername lifts the ownership scoping and returns all records.
func (r *ExpenseRepository) List(ctx context.Context, ownerUsername string, filter ExpenseFilter) ([]types.Expense, error) {
	query := `
		SELECT ` + expenseColumns + `
		FROM expenses e
		JOIN users u ON u.id = e.user_id`

	var conditions []string
	var args []any
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if ownerUsername != "" {
		addCondition("u.username = $%d", ownerUsername)
	}
	if filter.DateFrom != nil {
		addCondition("e.date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		addCondition("e.date <= $%d", *filter.DateTo)
	}
	if filter.TimeFrom != nil {
		addCondition("e.time >= $%d", *filter.TimeFrom)
	}
	if filter.TimeTo != nil {
		addCondition("e.time <= $%d", *filter.TimeTo)
	}
	if filter.AmountFrom != nil {
		addCondition("e.amount >= $%d", *filter.AmountFrom)
	}
	if filter.AmountTo != nil {
		addCondition("e.amount <= $%d", *filter.AmountTo)
	}

	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY e.date, e.amount, e.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]types.Expense, 0)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

// ListByWeek returns the user's expenses whose date falls in the given ISO
// week number, in any year.
func (r *ExpenseRepository) ListByWeek(ctx context.Context, userID int64, week int) ([]types.Expense, error) {
	const query = `
		SELECT ` + expenseColumns + `
		FROM expenses e
		JOIN users u ON u.id = e.user_id
		WHERE e.user_id = $1 AND EXTRACT(WEEK FROM e.date)::int = $2
		ORDER BY e.date, e.amount, e.id`
	rows, err := r.db.QueryContext(ctx, query, userID, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]types.Expense, 0)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *ExpenseRepository) Get(ctx context.Context, id int64) (types.Expense, error) {
	const query = `
		SELECT ` + expenseColumns + `
		FROM expenses e
		JOIN users u ON u.id = e.user_id
		WHERE e.id = $1`
	return scanExpense(r.db.QueryRowContext(ctx, query, id))
}

func (r *ExpenseRepository) Create(ctx context.Context, expense types.Expense) (types.Expense, error) {
	now := time.Now()
	expense.CreatedAt = now
	expense.UpdatedAt = now

	const query = `
		INSERT INTO expenses (user_id, date, time, amount, description, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		expense.UserID,
		expense.Date,
		expense.Time,
		expense.Amount,
		expense.Description,
		expense.Comment,
		expense.CreatedAt,
		expense.UpdatedAt,
	).Scan(&expense.ID); err != nil {
		return types.Expense{}, err
	}
	return expense, nil
}

func (r *ExpenseRepository) Update(ctx context.Context, expense types.Expense) (types.Expense, error) {
	expense.UpdatedAt = time.Now()

	const query = `
		UPDATE expenses
		SET date = $1,
			time = $2,
			amount = $3,
			description = $4,
			comment = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		expense.Date,
		expense.Time,
		expense.Amount,
		expense.Description,
		expense.Comment,
		expense.UpdatedAt,
		expense.ID,
	)
	if err != nil {
		return types.Expense{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Expense{}, err
	}
	if affected == 0 {
		return types.Expense{}, ErrNotFound
	}
	return expense, nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM expenses WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReceipt records (or clears) the receipt object attached to an expense.
func (r *ExpenseRepository) SetReceipt(ctx context.Context, id int64, key, contentType string) error {
	const query = `
		UPDATE expenses
		SET receipt_key = $1,
			receipt_content_type = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, key, contentType, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
