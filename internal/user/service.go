package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fkhayef/expensesplitter/internal/audit"
	"github.com/fkhayef/expensesplitter/pkg/sanitize"
)

// Common errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailAlreadyInUse = errors.New("email already in use")
	ErrIDAlreadyInUse    = errors.New("user id already in use")
	ErrUserInUse         = errors.New("user still takes part in a group ledger")
)

// Service handles user business logic
type Service struct {
	repo  *Repository
	audit audit.Recorder
}

// NewService creates a new user service with repository dependency injected
func NewService(repo *Repository, recorder audit.Recorder) *Service {
	return &Service{repo: repo, audit: recorder}
}

// Create creates a new user
func (s *Service) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyInUse
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	} else {
		existing, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrIDAlreadyInUse
		}
	}

	user := &User{
		ID:          id,
		Email:       email,
		DisplayName: sanitize.Text(req.DisplayName),
		AvatarURL:   req.AvatarURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.audit.Record(audit.NewEvent(audit.EntityUser, user.ID, audit.ActionCreate, audit.WithActor(user.ID)))
	return user, nil
}

// GetByID retrieves a user by their ID
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List retrieves all users with pagination
func (s *Service) List(ctx context.Context, page, perPage int) ([]*User, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.List(ctx, perPage, offset)
}

// Update modifies an existing user
func (s *Service) Update(ctx context.Context, id string, req *UpdateUserRequest) (*User, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrUserNotFound
	}

	if req.DisplayName != nil {
		name := sanitize.Text(*req.DisplayName)
		req.DisplayName = &name
	}

	user, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.audit.Record(audit.NewEvent(audit.EntityUser, id, audit.ActionUpdate, audit.WithActor(id)))
	return user, nil
}

// Delete removes a user who has no part in any ledger
func (s *Service) Delete(ctx context.Context, id string) error {
	active, err := s.repo.HasLedgerActivity(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return ErrUserInUse
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrUserNotFound
	}

	s.audit.Record(audit.NewEvent(audit.EntityUser, id, audit.ActionDelete))
	return nil
}
