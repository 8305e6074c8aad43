package expense

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/ledger"
)

// Repository handles expense data persistence
type Repository struct {
	db database.Querier
}

// NewRepository creates a new expense repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to a transaction
func (r *Repository) WithTx(q database.Querier) *Repository {
	return &Repository{db: q}
}

const selectExpense = `
	SELECT e.id, e.group_id, e.description, e.notes, e.category, e.amount, e.currency,
	       e.payer_id, e.split_type, e.status, e.expense_date, e.settled_at,
	       e.created_by, e.created_at, e.updated_at, COALESCE(u.display_name, '')
	FROM expenses e
	LEFT JOIN users u ON e.payer_id = u.id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*Expense, error) {
	expense := &Expense{}
	err := row.Scan(
		&expense.ID,
		&expense.GroupID,
		&expense.Description,
		&expense.Notes,
		&expense.Category,
		&expense.Amount,
		&expense.Currency,
		&expense.PayerID,
		&expense.SplitType,
		&expense.Status,
		&expense.ExpenseDate,
		&expense.SettledAt,
		&expense.CreatedBy,
		&expense.CreatedAt,
		&expense.UpdatedAt,
		&expense.PayerName,
	)
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// Create inserts a new expense row
func (r *Repository) Create(ctx context.Context, expense *Expense) error {
	query := `
		INSERT INTO expenses (id, group_id, description, notes, category, amount, currency, payer_id,
		                      split_type, status, expense_date, settled_at, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		expense.ID, expense.GroupID, expense.Description, expense.Notes, expense.Category,
		expense.Amount, expense.Currency, expense.PayerID, expense.SplitType, expense.Status,
		expense.ExpenseDate, expense.SettledAt, expense.CreatedBy, expense.CreatedAt, expense.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}

	return nil
}

// CreateSplits stores the participants of an expense
func (r *Repository) CreateSplits(ctx context.Context, splits []*Split) error {
	query := `
		INSERT INTO expense_splits (expense_id, member_id, amount, percentage, shares, owed_amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	for _, s := range splits {
		_, err := r.db.ExecContext(ctx, query, s.ExpenseID, s.MemberID, s.Amount, s.Percentage, s.Shares, s.OwedAmount)
		if err != nil {
			return fmt.Errorf("failed to create split: %w", err)
		}
	}

	return nil
}

// DeleteSplits removes every split of an expense before a re-split
func (r *Repository) DeleteSplits(ctx context.Context, expenseID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id = ?`, expenseID); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}
	return nil
}

// GetByID retrieves an expense by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*Expense, error) {
	expense, err := scanExpense(r.db.QueryRowContext(ctx, selectExpense+` WHERE e.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	return expense, nil
}

const selectSplit = `
	SELECT s.expense_id, s.member_id, s.amount, s.percentage, s.shares, s.owed_amount, COALESCE(u.display_name, '')
	FROM expense_splits s
	LEFT JOIN users u ON s.member_id = u.id
`

func scanSplit(row scanner) (*Split, error) {
	s := &Split{}
	err := row.Scan(
		&s.ExpenseID,
		&s.MemberID,
		&s.Amount,
		&s.Percentage,
		&s.Shares,
		&s.OwedAmount,
		&s.DisplayName,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetSplits retrieves the splits of an expense ordered by member id
func (r *Repository) GetSplits(ctx context.Context, expenseID string) ([]*Split, error) {
	rows, err := r.db.QueryContext(ctx, selectSplit+` WHERE s.expense_id = ? ORDER BY s.member_id`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	var splits []*Split
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		splits = append(splits, s)
	}

	return splits, rows.Err()
}

// ListByGroup retrieves a page of a group's expenses, newest first
func (r *Repository) ListByGroup(ctx context.Context, groupID string, filter ListFilter, limit, offset int) ([]*Expense, int, error) {
	where := ` WHERE e.group_id = ?`
	args := []any{groupID}
	if filter.Status != "" {
		where += ` AND e.status = ?`
		args = append(args, filter.Status)
	} else {
		where += ` AND e.status <> ?`
		args = append(args, ledger.ExpenseStatusDeleted)
	}
	if filter.PayerID != "" {
		where += ` AND e.payer_id = ?`
		args = append(args, filter.PayerID)
	}
	if filter.Search != "" {
		where += ` AND (LOWER(e.description) LIKE ? OR LOWER(COALESCE(e.notes, '')) LIKE ?)`
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses e`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	query := selectExpense + where + ` ORDER BY e.expense_date DESC, e.created_at DESC, e.id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	return expenses, total, nil
}

// Update writes every mutable column of an expense
func (r *Repository) Update(ctx context.Context, expense *Expense) error {
	query := `
		UPDATE expenses
		SET description = ?, notes = ?, category = ?, amount = ?, payer_id = ?, split_type = ?,
		    expense_date = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		expense.Description, expense.Notes, expense.Category, expense.Amount, expense.PayerID,
		expense.SplitType, expense.ExpenseDate, expense.UpdatedAt, expense.ID)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}

	return nil
}

// UpdateStatus moves an expense to a new status if it is still in the
// expected one. It reports false when another change got there first.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to ledger.ExpenseStatus, settledAt *time.Time, updatedAt time.Time) (bool, error) {
	query := `UPDATE expenses SET status = ?, settled_at = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, to, settledAt, updatedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update expense status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListForLedger loads the non-deleted expenses of the given groups with their
// persisted shares, oldest first
func (r *Repository) ListForLedger(ctx context.Context, groupIDs []string) ([]ledger.Expense, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(groupIDs)+1)
	for _, id := range groupIDs {
		args = append(args, id)
	}
	args = append(args, ledger.ExpenseStatusDeleted)
	in := database.Placeholders(len(groupIDs))

	rows, err := r.db.QueryContext(ctx,
		selectExpense+` WHERE e.group_id IN (`+in+`) AND e.status <> ? ORDER BY e.created_at, e.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	var expenses []*ExpenseWithSplits
	byID := make(map[string]*ExpenseWithSplits)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e := &ExpenseWithSplits{Expense: expense}
		expenses = append(expenses, e)
		byID[expense.ID] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	splitRows, err := r.db.QueryContext(ctx, selectSplit+`
		JOIN expenses e ON e.id = s.expense_id
		WHERE e.group_id IN (`+in+`) AND e.status <> ?
		ORDER BY s.member_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load splits: %w", err)
	}
	defer splitRows.Close()

	for splitRows.Next() {
		s, err := scanSplit(splitRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		if e, ok := byID[s.ExpenseID]; ok {
			e.Splits = append(e.Splits, s)
		}
	}
	if err := splitRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}

	out := make([]ledger.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = e.Ledger()
	}
	return out, nil
}

// CategoryTotals sums the non-deleted expenses of a group per category over
// [from, to], largest first
func (r *Repository) CategoryTotals(ctx context.Context, groupID string, from, to time.Time) ([]*CategoryTotal, error) {
	query := `
		SELECT category, amount
		FROM expenses
		WHERE group_id = ? AND status <> ? AND expense_date >= ? AND expense_date <= ?
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, ledger.ExpenseStatusDeleted, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load category totals: %w", err)
	}
	defer rows.Close()

	byCategory := make(map[string]*CategoryTotal)
	for rows.Next() {
		var category string
		var amount decimal.Decimal
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		t, ok := byCategory[category]
		if !ok {
			t = &CategoryTotal{Category: category}
			byCategory[category] = t
		}
		t.Total = t.Total.Add(amount)
		t.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category totals: %w", err)
	}

	totals := make([]*CategoryTotal, 0, len(byCategory))
	for _, t := range byCategory {
		totals = append(totals, t)
	}
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
	return totals, nil
}

// PurgeDeleted hard-deletes expenses that were soft-deleted before the cutoff
func (r *Repository) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE status = ? AND updated_at < ?`, ledger.ExpenseStatusDeleted, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expenses: %w", err)
	}

	return result.RowsAffected()
}

// InGroup reports which of the given expense ids belong to the group
func (r *Repository) InGroup(ctx context.Context, groupID string, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, groupID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM expenses WHERE group_id = ? AND id IN (`+database.Placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expense id: %w", err)
		}
		found[id] = true
	}

	return found, rows.Err()
}
