package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/ledger"
)

// Repository handles settlement data persistence
type Repository struct {
	db database.Querier
}

// NewRepository creates a new settlement repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to a transaction
func (r *Repository) WithTx(q database.Querier) *Repository {
	return &Repository{db: q}
}

const selectSettlement = `
	SELECT s.id, s.group_id, s.payer_id, s.payee_id, s.amount, s.currency, s.status, s.notes,
	       s.created_by, s.created_at, s.updated_at, s.completed_at,
	       COALESCE(p.display_name, ''), COALESCE(q.display_name, '')
	FROM settlements s
	LEFT JOIN users p ON s.payer_id = p.id
	LEFT JOIN users q ON s.payee_id = q.id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row scanner) (*Settlement, error) {
	settlement := &Settlement{}
	err := row.Scan(
		&settlement.ID,
		&settlement.GroupID,
		&settlement.PayerID,
		&settlement.PayeeID,
		&settlement.Amount,
		&settlement.Currency,
		&settlement.Status,
		&settlement.Notes,
		&settlement.CreatedBy,
		&settlement.CreatedAt,
		&settlement.UpdatedAt,
		&settlement.CompletedAt,
		&settlement.PayerName,
		&settlement.PayeeName,
	)
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// Create inserts a new settlement and links the expenses it pays for
func (r *Repository) Create(ctx context.Context, settlement *Settlement) error {
	query := `
		INSERT INTO settlements (id, group_id, payer_id, payee_id, amount, currency, status, notes,
		                         created_by, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		settlement.ID, settlement.GroupID, settlement.PayerID, settlement.PayeeID, settlement.Amount,
		settlement.Currency, settlement.Status, settlement.Notes, settlement.CreatedBy,
		settlement.CreatedAt, settlement.UpdatedAt, settlement.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}

	for _, expenseID := range settlement.ExpenseIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO settlement_expenses (settlement_id, expense_id) VALUES (?, ?)`, settlement.ID, expenseID)
		if err != nil {
			return fmt.Errorf("failed to link expense to settlement: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a settlement with its linked expense ids
func (r *Repository) GetByID(ctx context.Context, id string) (*Settlement, error) {
	settlement, err := scanSettlement(r.db.QueryRowContext(ctx, selectSettlement+` WHERE s.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT expense_id FROM settlement_expenses WHERE settlement_id = ? ORDER BY expense_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID string
		if err := rows.Scan(&expenseID); err != nil {
			return nil, fmt.Errorf("failed to scan settlement expense: %w", err)
		}
		settlement.ExpenseIDs = append(settlement.ExpenseIDs, expenseID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlement expenses: %w", err)
	}

	return settlement, nil
}

// ListByGroup retrieves a page of a group's settlements, newest first
func (r *Repository) ListByGroup(ctx context.Context, groupID string, filter ListFilter, limit, offset int) ([]*Settlement, int, error) {
	where := ` WHERE s.group_id = ?`
	args := []any{groupID}
	if filter.MemberID != "" {
		where += ` AND (s.payer_id = ? OR s.payee_id = ?)`
		args = append(args, filter.MemberID, filter.MemberID)
	}
	if filter.Status != "" {
		where += ` AND s.status = ?`
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlements s`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count settlements: %w", err)
	}

	query := selectSettlement + where + ` ORDER BY s.created_at DESC, s.id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return settlements, total, nil
}

// UpdateStatus moves a settlement to a new status if it is still in the
// expected one. It reports false when another change got there first.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to ledger.SettlementStatus, completedAt *time.Time, updatedAt time.Time) (bool, error) {
	query := `UPDATE settlements SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, to, completedAt, updatedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update settlement status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListForLedger loads the settlements of the given groups that are not
// cancelled, oldest first
func (r *Repository) ListForLedger(ctx context.Context, groupIDs []string) ([]ledger.Settlement, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(groupIDs)+1)
	for _, id := range groupIDs {
		args = append(args, id)
	}
	args = append(args, ledger.SettlementStatusCancelled)

	rows, err := r.db.QueryContext(ctx, selectSettlement+`
		WHERE s.group_id IN (`+database.Placeholders(len(groupIDs))+`) AND s.status <> ?
		ORDER BY s.created_at, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlements: %w", err)
	}
	defer rows.Close()

	var settlements []ledger.Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, settlement.Ledger())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return settlements, nil
}
