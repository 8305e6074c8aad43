package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fkhayef/expensesplitter/internal/database"
)

// Repository handles user data persistence
type Repository struct {
	db database.Querier
}

// NewRepository creates a new user repository with database dependency injected
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

const selectUser = `SELECT id, email, display_name, avatar_url, created_at FROM users`

// Create inserts a new user into the database
func (r *Repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, display_name, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.DisplayName, user.AvatarURL, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by their email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// List retrieves all users with pagination
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, selectUser+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.Email, &user.DisplayName, &user.AvatarURL, &user.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, total, nil
}

// Update modifies an existing user
func (r *Repository) Update(ctx context.Context, id string, req *UpdateUserRequest) (*User, error) {
	query := `
		UPDATE users
		SET display_name = COALESCE(?, display_name),
		    avatar_url = COALESCE(?, avatar_url)
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, req.DisplayName, req.AvatarURL, id); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return r.GetByID(ctx, id)
}

// Delete removes a user from the database
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// HasLedgerActivity reports whether the user belongs to a group or appears
// on any expense or settlement
func (r *Repository) HasLedgerActivity(ctx context.Context, id string) (bool, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM group_members WHERE member_id = ?)
			OR EXISTS (SELECT 1 FROM expenses WHERE payer_id = ?)
			OR EXISTS (SELECT 1 FROM expense_splits WHERE member_id = ?)
			OR EXISTS (SELECT 1 FROM settlements WHERE payer_id = ? OR payee_id = ?)
	`

	var active bool
	if err := r.db.QueryRowContext(ctx, query, id, id, id, id, id).Scan(&active); err != nil {
		return false, fmt.Errorf("failed to check user activity: %w", err)
	}
	return active, nil
}

// scanUser returns nil, nil when the row does not exist
func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.AvatarURL, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
