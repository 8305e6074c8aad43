package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/ledger"
)

// Repository handles group data persistence
type Repository struct {
	db database.Querier
}

// NewRepository creates a new group repository
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to a transaction
func (r *Repository) WithTx(q database.Querier) *Repository {
	return &Repository{db: q}
}

const selectGroup = `SELECT g.id, g.name, g.description, g.currency, g.created_by, g.created_at, g.updated_at FROM groups g`

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*Group, error) {
	group := &Group{}
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.Currency,
		&group.CreatedBy,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Create inserts a new group into the database
func (r *Repository) Create(ctx context.Context, group *Group) error {
	query := `
		INSERT INTO groups (id, name, description, currency, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		group.ID, group.Name, group.Description, group.Currency, group.CreatedBy, group.CreatedAt, group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	return nil
}

// GetByID retrieves a group by its ID
func (r *Repository) GetByID(ctx context.Context, id string) (*Group, error) {
	group, err := scanGroup(r.db.QueryRowContext(ctx, selectGroup+` WHERE g.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

// ListByMemberID retrieves all groups a member belongs to
func (r *Repository) ListByMemberID(ctx context.Context, memberID string, limit, offset int) ([]*Group, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM group_members WHERE member_id = ?`
	if err := r.db.QueryRowContext(ctx, countQuery, memberID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	query := selectGroup + `
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.member_id = ?
		ORDER BY g.created_at DESC, g.id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, memberID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, total, nil
}

// GroupIDsOf returns the ids of every group memberID belongs to, oldest first
func (r *Repository) GroupIDsOf(ctx context.Context, memberID string) ([]string, error) {
	query := `
		SELECT gm.group_id
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.member_id = ?
		ORDER BY g.created_at, g.id
	`

	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Memberships loads the ledger view of the given groups, in the order of
// groupIDs. Unknown ids are skipped.
func (r *Repository) Memberships(ctx context.Context, groupIDs []string) ([]ledger.GroupMembership, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(groupIDs))
	for i, id := range groupIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		selectGroup+` WHERE g.id IN (`+database.Placeholders(len(groupIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	groups := make(map[string]*Group, len(groupIDs))
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups[group.ID] = group
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	memberRows, err := r.db.QueryContext(ctx,
		`SELECT group_id, member_id FROM group_members WHERE group_id IN (`+database.Placeholders(len(groupIDs))+`) ORDER BY member_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	defer memberRows.Close()

	members := make(map[string][]string, len(groupIDs))
	for memberRows.Next() {
		var groupID, memberID string
		if err := memberRows.Scan(&groupID, &memberID); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members[groupID] = append(members[groupID], memberID)
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	out := make([]ledger.GroupMembership, 0, len(groupIDs))
	for _, id := range groupIDs {
		if g, ok := groups[id]; ok {
			out = append(out, g.Membership(members[id]))
		}
	}
	return out, nil
}

// Update modifies an existing group
func (r *Repository) Update(ctx context.Context, group *Group) error {
	query := `
		UPDATE groups
		SET name = ?, description = ?, updated_at = ?
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, group.Name, group.Description, group.UpdatedAt, group.ID); err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	return nil
}

// Delete removes a group and, by cascade, its members and ledger entries
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// AddMember adds a user to a group
func (r *Repository) AddMember(ctx context.Context, member *GroupMember) error {
	query := `
		INSERT INTO group_members (group_id, member_id, status, role, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, member.GroupID, member.MemberID, member.Status, member.Role, member.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

const selectMember = `
	SELECT gm.group_id, gm.member_id, gm.status, gm.role, gm.joined_at, u.display_name, u.email
	FROM group_members gm
	JOIN users u ON gm.member_id = u.id
`

func scanMember(row scanner) (*GroupMember, error) {
	member := &GroupMember{}
	err := row.Scan(
		&member.GroupID,
		&member.MemberID,
		&member.Status,
		&member.Role,
		&member.JoinedAt,
		&member.DisplayName,
		&member.Email,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}

// GetMembers retrieves all members of a group
func (r *Repository) GetMembers(ctx context.Context, groupID string) ([]*GroupMember, error) {
	rows, err := r.db.QueryContext(ctx, selectMember+` WHERE gm.group_id = ? ORDER BY gm.joined_at, gm.member_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// GetMember retrieves a specific member from a group
func (r *Repository) GetMember(ctx context.Context, groupID, memberID string) (*GroupMember, error) {
	member, err := scanMember(r.db.QueryRowContext(ctx, selectMember+` WHERE gm.group_id = ? AND gm.member_id = ?`, groupID, memberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// UpdateMember updates a member's status or role
func (r *Repository) UpdateMember(ctx context.Context, groupID, memberID string, req *UpdateMemberRequest) error {
	query := `
		UPDATE group_members
		SET status = COALESCE(?, status),
		    role = COALESCE(?, role)
		WHERE group_id = ? AND member_id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, req.Status, req.Role, groupID, memberID); err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}

	return nil
}

// RemoveMember removes a user from a group
func (r *Repository) RemoveMember(ctx context.Context, groupID, memberID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND member_id = ?`, groupID, memberID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// HasLedgerActivity reports whether the member pays for, takes part in or
// settles any live entry of the group
func (r *Repository) HasLedgerActivity(ctx context.Context, groupID, memberID string) (bool, error) {
	query := `
		SELECT
			EXISTS (
				SELECT 1 FROM expenses e
				WHERE e.group_id = ? AND e.status <> 'DELETED'
				  AND (e.payer_id = ? OR EXISTS (
					SELECT 1 FROM expense_splits s WHERE s.expense_id = e.id AND s.member_id = ?))
			)
			OR EXISTS (
				SELECT 1 FROM settlements
				WHERE group_id = ? AND status <> 'CANCELLED' AND (payer_id = ? OR payee_id = ?)
			)
	`

	var active bool
	err := r.db.QueryRowContext(ctx, query, groupID, memberID, memberID, groupID, memberID, memberID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("failed to check member activity: %w", err)
	}
	return active, nil
}
