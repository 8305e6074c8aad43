package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fkhayef/expensesplitter/internal/audit"
	"github.com/fkhayef/expensesplitter/internal/changefeed"
	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/money"
	"github.com/fkhayef/expensesplitter/internal/user"
	"github.com/fkhayef/expensesplitter/pkg/sanitize"
)

// Common errors
var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrMemberAlreadyExists = errors.New("user is already a member of this group")
	ErrNotAuthorized       = errors.New("not authorized to perform this action")
	ErrCannotRemoveCreator = errors.New("the group creator cannot be removed")
	ErrMemberHasActivity   = errors.New("member still has expenses or settlements in this group")
	ErrLastAdmin           = errors.New("a group needs at least one admin")
)

// Service handles group business logic
type Service struct {
	db              *database.DB
	repo            *Repository
	users           *user.Repository
	hub             *changefeed.Hub
	audit           audit.Recorder
	defaultCurrency string
}

// NewService creates a new group service
func NewService(db *database.DB, users *user.Repository, hub *changefeed.Hub, recorder audit.Recorder, defaultCurrency string) *Service {
	return &Service{
		db:              db,
		repo:            NewRepository(db),
		users:           users,
		hub:             hub,
		audit:           recorder,
		defaultCurrency: defaultCurrency,
	}
}

// Repository exposes the group repository for packages that read memberships
func (s *Service) Repository() *Repository {
	return s.repo
}

// Create creates a new group with the creator as admin and any initial
// members, all in one transaction
func (s *Service) Create(ctx context.Context, creatorID string, req *CreateGroupRequest) (*Group, error) {
	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	currency, err := money.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	group := &Group{
		ID:          uuid.NewString(),
		Name:        sanitize.Text(req.Name),
		Description: sanitize.OptionalText(req.Description),
		Currency:    currency,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	memberIDs := []string{creatorID}
	seen := map[string]bool{creatorID: true}
	for _, id := range req.MemberIDs {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			memberIDs = append(memberIDs, id)
		}
	}

	err = s.db.WithTx(ctx, func(q database.Querier) error {
		users := user.NewRepository(q)
		for _, id := range memberIDs {
			u, err := users.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("%w: %s", ErrUserNotFound, id)
			}
		}

		repo := s.repo.WithTx(q)
		if err := repo.Create(ctx, group); err != nil {
			return err
		}
		for _, id := range memberIDs {
			role := MemberRoleMember
			if id == creatorID {
				role = MemberRoleAdmin
			}
			member := &GroupMember{GroupID: group.ID, MemberID: id, Status: MemberStatusJoined, Role: role, JoinedAt: now}
			if err := repo.AddMember(ctx, member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(audit.NewEvent(audit.EntityGroup, group.ID, audit.ActionCreate,
		audit.WithGroup(group.ID), audit.WithActor(creatorID), audit.WithDetail("currency", currency)))
	return group, nil
}

// GetByID retrieves a group by its ID
func (s *Service) GetByID(ctx context.Context, id string) (*Group, error) {
	group, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// GetByIDWithMembers retrieves a group with all its members
func (s *Service) GetByIDWithMembers(ctx context.Context, id string) (*Group, []*GroupMember, error) {
	group, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.repo.GetMembers(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return group, members, nil
}

// ListByMemberID retrieves all groups for a member
func (s *Service) ListByMemberID(ctx context.Context, memberID string, page, perPage int) ([]*Group, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByMemberID(ctx, memberID, perPage, offset)
}

// Update renames or redescribes a group; admins only
func (s *Service) Update(ctx context.Context, id, actorID string, req *UpdateGroupRequest) (*Group, error) {
	group, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, id, actorID); err != nil {
		return nil, err
	}

	if req.Name != nil {
		group.Name = sanitize.Text(*req.Name)
	}
	if req.Description != nil {
		group.Description = sanitize.OptionalText(req.Description)
	}
	group.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, group); err != nil {
		return nil, err
	}

	s.audit.Record(audit.NewEvent(audit.EntityGroup, id, audit.ActionUpdate, audit.WithGroup(id), audit.WithActor(actorID)))
	return group, nil
}

// Delete removes a group with its whole ledger; admins only
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, id, actorID); err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrGroupNotFound
	}

	s.hub.Publish(id)
	s.audit.Record(audit.NewEvent(audit.EntityGroup, id, audit.ActionDelete, audit.WithGroup(id), audit.WithActor(actorID)))
	return nil
}

// AddMember invites a user to a group; any member may invite
func (s *Service) AddMember(ctx context.Context, groupID, actorID string, req *AddMemberRequest) (*GroupMember, error) {
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	existing, err := s.repo.GetMember(ctx, groupID, req.MemberID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrMemberAlreadyExists
	}

	role := req.Role
	if role == "" {
		role = MemberRoleMember
	}
	member := &GroupMember{
		GroupID:     groupID,
		MemberID:    req.MemberID,
		Status:      MemberStatusInvited,
		Role:        role,
		JoinedAt:    time.Now().UTC(),
		DisplayName: u.DisplayName,
		Email:       u.Email,
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, err
	}

	s.hub.Publish(groupID)
	s.audit.Record(audit.NewEvent(audit.EntityGroup, groupID, audit.ActionUpdate, audit.WithGroup(groupID),
		audit.WithActor(actorID), audit.WithDetail("member_added", req.MemberID)))
	return member, nil
}

// GetMembers retrieves all members of a group
func (s *Service) GetMembers(ctx context.Context, groupID string) ([]*GroupMember, error) {
	if _, err := s.GetByID(ctx, groupID); err != nil {
		return nil, err
	}

	return s.repo.GetMembers(ctx, groupID)
}

// UpdateMember changes a member's status or role; admins only
func (s *Service) UpdateMember(ctx context.Context, groupID, memberID, actorID string, req *UpdateMemberRequest) (*GroupMember, error) {
	group, err := s.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	member, err := s.repo.GetMember(ctx, groupID, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	if req.Role != nil && *req.Role != MemberRoleAdmin && memberID == group.CreatedBy {
		return nil, ErrLastAdmin
	}

	if err := s.repo.UpdateMember(ctx, groupID, memberID, req); err != nil {
		return nil, err
	}

	s.audit.Record(audit.NewEvent(audit.EntityGroup, groupID, audit.ActionUpdate, audit.WithGroup(groupID),
		audit.WithActor(actorID), audit.WithDetail("member_updated", memberID)))
	return s.repo.GetMember(ctx, groupID, memberID)
}

// RemoveMember removes a member who has no live ledger entries in the group.
// Members may leave on their own; removing someone else takes an admin.
func (s *Service) RemoveMember(ctx context.Context, groupID, memberID, actorID string) error {
	group, err := s.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if memberID == group.CreatedBy {
		return ErrCannotRemoveCreator
	}
	if memberID != actorID {
		if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
			return err
		}
	}

	active, err := s.repo.HasLedgerActivity(ctx, groupID, memberID)
	if err != nil {
		return err
	}
	if active {
		return ErrMemberHasActivity
	}

	removed, err := s.repo.RemoveMember(ctx, groupID, memberID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrMemberNotFound
	}

	s.hub.Publish(groupID)
	s.audit.Record(audit.NewEvent(audit.EntityGroup, groupID, audit.ActionUpdate, audit.WithGroup(groupID),
		audit.WithActor(actorID), audit.WithDetail("member_removed", memberID)))
	return nil
}

// AcceptInvitation allows a user to accept their group invitation
func (s *Service) AcceptInvitation(ctx context.Context, groupID, memberID string) (*GroupMember, error) {
	member, err := s.repo.GetMember(ctx, groupID, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	if member.Status != MemberStatusInvited {
		return member, nil // Already joined
	}

	status := MemberStatusJoined
	if err := s.repo.UpdateMember(ctx, groupID, memberID, &UpdateMemberRequest{Status: &status}); err != nil {
		return nil, err
	}
	member.Status = status
	return member, nil
}

// IsMember reports whether memberID belongs to the group
func (s *Service) IsMember(ctx context.Context, groupID, memberID string) (bool, error) {
	member, err := s.repo.GetMember(ctx, groupID, memberID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}

func (s *Service) requireMember(ctx context.Context, groupID, actorID string) error {
	ok, err := s.IsMember(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, groupID, actorID string) error {
	member, err := s.repo.GetMember(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if member == nil || member.Role != MemberRoleAdmin {
		return ErrNotAuthorized
	}
	return nil
}
