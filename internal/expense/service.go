package expense

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fkhayef/expensesplitter/internal/audit"
	"github.com/fkhayef/expensesplitter/internal/changefeed"
	"github.com/fkhayef/expensesplitter/internal/database"
	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/group"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/metrics"
	"github.com/fkhayef/expensesplitter/internal/money"
	"github.com/fkhayef/expensesplitter/pkg/sanitize"
)

// Common errors
var (
	ErrExpenseNotFound      = errors.New("expense not found")
	ErrGroupNotFound        = errors.New("group not found")
	ErrNotGroupMember       = errors.New("you are not a member of this group")
	ErrPayerNotMember       = errors.New("payer is not a member of the group")
	ErrParticipantNotMember = errors.New("participant is not a member of the group")
	ErrNotAuthorized        = errors.New("only the payer or the creator can delete an expense")
	ErrExpenseDeleted       = errors.New("deleted expenses cannot be edited")
	ErrInvalidStatusChange  = errors.New("invalid status change")
)

// Service handles expense business logic
type Service struct {
	db           *database.DB
	repo         *Repository
	groups       *group.Repository
	splitFactory *split.Factory // Factory pattern for creating split strategies
	hub          *changefeed.Hub
	audit        audit.Recorder
	metrics      *metrics.Metrics
}

// NewService creates a new expense service with dependencies injected
func NewService(db *database.DB, groups *group.Repository, splitFactory *split.Factory, hub *changefeed.Hub, recorder audit.Recorder, m *metrics.Metrics) *Service {
	return &Service{
		db:           db,
		repo:         NewRepository(db),
		groups:       groups,
		splitFactory: splitFactory,
		hub:          hub,
		audit:        recorder,
		metrics:      m,
	}
}

// Repository exposes the expense repository for packages that read the ledger
func (s *Service) Repository() *Repository {
	return s.repo
}

// CreateExpense validates the payer and participants against the group,
// computes every share with the requested strategy and stores the expense
// together with its splits
func (s *Service) CreateExpense(ctx context.Context, actorID string, req *CreateExpenseRequest) (*ExpenseWithSplits, error) {
	payerID := strings.TrimSpace(req.PayerID)
	if payerID == "" {
		payerID = actorID
	}

	now := time.Now().UTC()
	expenseDate := now
	if req.ExpenseDate != nil {
		expenseDate = req.ExpenseDate.UTC()
	}
	category := sanitize.Text(req.Category)
	if category == "" {
		category = DefaultCategory
	}

	expense := &Expense{
		ID:          uuid.NewString(),
		GroupID:     req.GroupID,
		Description: sanitize.Text(req.Description),
		Notes:       sanitize.OptionalText(req.Notes),
		Category:    category,
		Amount:      req.Amount,
		PayerID:     payerID,
		SplitType:   req.SplitType,
		Status:      ledger.ExpenseStatusActive,
		ExpenseDate: expenseDate,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var result *ExpenseWithSplits
	err := s.db.WithTx(ctx, func(q database.Querier) error {
		membership, err := s.membership(ctx, q, req.GroupID)
		if err != nil {
			return err
		}
		if err := checkCurrency(req.Currency, membership.Currency); err != nil {
			return err
		}
		expense.Currency = membership.Currency

		splits, err := s.computeSplits(membership, actorID, expense, req.Participants)
		if err != nil {
			return err
		}

		repo := s.repo.WithTx(q)
		if err := repo.Create(ctx, expense); err != nil {
			return err
		}
		if err := repo.CreateSplits(ctx, splits); err != nil {
			return err
		}

		result = &ExpenseWithSplits{Expense: expense, Splits: splits}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(expense.GroupID, audit.NewEvent(audit.EntityExpense, expense.ID, audit.ActionCreate,
		audit.WithGroup(expense.GroupID), audit.WithActor(actorID),
		audit.WithDetail("amount", expense.Money().String()),
		audit.WithDetail("split_type", string(expense.SplitType))))
	return result, nil
}

// GetExpenseByID retrieves an expense with its splits
func (s *Service) GetExpenseByID(ctx context.Context, id string) (*ExpenseWithSplits, error) {
	expense, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expense == nil {
		return nil, ErrExpenseNotFound
	}

	splits, err := s.repo.GetSplits(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ExpenseWithSplits{
		Expense: expense,
		Splits:  splits,
	}, nil
}

// ListExpensesByGroupID retrieves a page of a group's expenses for one of its members
func (s *Service) ListExpensesByGroupID(ctx context.Context, groupID, actorID string, filter ListFilter, page, perPage int) ([]*Expense, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	membership, err := s.membership(ctx, s.db, groupID)
	if err != nil {
		return nil, 0, err
	}
	if !contains(membership.MemberIDs, actorID) {
		return nil, 0, ErrNotGroupMember
	}

	filter.Search = strings.ToLower(strings.TrimSpace(filter.Search))
	offset := (page - 1) * perPage
	return s.repo.ListByGroup(ctx, groupID, filter, perPage, offset)
}

// UpdateExpense edits an expense. When the amount, payer or split changes,
// every share is recomputed and replaced in the same transaction.
func (s *Service) UpdateExpense(ctx context.Context, id, actorID string, req *UpdateExpenseRequest) (*ExpenseWithSplits, error) {
	var result *ExpenseWithSplits
	err := s.db.WithTx(ctx, func(q database.Querier) error {
		repo := s.repo.WithTx(q)
		expense, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if expense == nil {
			return ErrExpenseNotFound
		}
		if expense.Status == ledger.ExpenseStatusDeleted {
			return ErrExpenseDeleted
		}

		membership, err := s.membership(ctx, q, expense.GroupID)
		if err != nil {
			return err
		}
		if !contains(membership.MemberIDs, actorID) {
			return ErrNotGroupMember
		}

		splits, err := repo.GetSplits(ctx, id)
		if err != nil {
			return err
		}

		if req.Description != nil {
			expense.Description = sanitize.Text(*req.Description)
		}
		if req.Notes != nil {
			expense.Notes = sanitize.OptionalText(req.Notes)
		}
		if req.Category != nil {
			expense.Category = sanitize.Text(*req.Category)
		}
		if req.ExpenseDate != nil {
			expense.ExpenseDate = req.ExpenseDate.UTC()
		}
		expense.UpdatedAt = time.Now().UTC()

		if req.Resplits() {
			if req.Amount != nil {
				expense.Amount = *req.Amount
			}
			if req.PayerID != nil {
				expense.PayerID = strings.TrimSpace(*req.PayerID)
			}
			if req.SplitType != nil {
				expense.SplitType = *req.SplitType
			}
			participants := req.Participants
			if participants == nil {
				participants = make([]split.SplitInput, len(splits))
				for i, sp := range splits {
					participants[i] = sp.Input()
				}
			}

			splits, err = s.computeSplits(membership, actorID, expense, participants)
			if err != nil {
				return err
			}
			if err := repo.DeleteSplits(ctx, id); err != nil {
				return err
			}
			if err := repo.CreateSplits(ctx, splits); err != nil {
				return err
			}
		}

		if err := repo.Update(ctx, expense); err != nil {
			return err
		}

		result = &ExpenseWithSplits{Expense: expense, Splits: splits}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(audit.EntityExpense, id, audit.ActionUpdate,
		audit.WithGroup(result.Expense.GroupID), audit.WithActor(actorID))
	if req.Resplits() {
		event.Details["amount"] = result.Expense.Money().String()
		event.Details["split_type"] = string(result.Expense.SplitType)
	}
	s.changed(result.Expense.GroupID, event)
	return result, nil
}

// SettleExpense marks an active expense as settled
func (s *Service) SettleExpense(ctx context.Context, id, actorID string) (*Expense, error) {
	return s.transition(ctx, id, actorID, ledger.ExpenseStatusSettled, audit.ActionSettle)
}

// UnsettleExpense puts a settled expense back into the balance
func (s *Service) UnsettleExpense(ctx context.Context, id, actorID string) (*Expense, error) {
	return s.transition(ctx, id, actorID, ledger.ExpenseStatusActive, audit.ActionUnsettle)
}

// DeleteExpense soft-deletes an expense; only its payer or creator may do so
func (s *Service) DeleteExpense(ctx context.Context, id, actorID string) (*Expense, error) {
	return s.transition(ctx, id, actorID, ledger.ExpenseStatusDeleted, audit.ActionDelete)
}

// RestoreExpense brings a deleted expense back as active
func (s *Service) RestoreExpense(ctx context.Context, id, actorID string) (*Expense, error) {
	return s.transition(ctx, id, actorID, ledger.ExpenseStatusActive, audit.ActionRestore)
}

func (s *Service) transition(ctx context.Context, id, actorID string, to ledger.ExpenseStatus, action audit.Action) (*Expense, error) {
	var expense *Expense
	err := s.db.WithTx(ctx, func(q database.Querier) error {
		repo := s.repo.WithTx(q)
		var err error
		expense, err = repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if expense == nil {
			return ErrExpenseNotFound
		}

		membership, err := s.membership(ctx, q, expense.GroupID)
		if err != nil {
			return err
		}
		if !contains(membership.MemberIDs, actorID) {
			return ErrNotGroupMember
		}
		if action == audit.ActionDelete && actorID != expense.PayerID && actorID != expense.CreatedBy {
			return ErrNotAuthorized
		}

		from := expense.Status
		// Unsettle and restore both lead to ACTIVE; each only from its own state
		if (action == audit.ActionUnsettle && from != ledger.ExpenseStatusSettled) ||
			(action == audit.ActionRestore && from != ledger.ExpenseStatusDeleted) ||
			!CanTransition(from, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusChange, from, to)
		}

		now := time.Now().UTC()
		settledAt := expense.SettledAt
		switch to {
		case ledger.ExpenseStatusSettled:
			settledAt = &now
		case ledger.ExpenseStatusActive:
			settledAt = nil
		}

		ok, err := repo.UpdateStatus(ctx, id, from, to, settledAt, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: expense changed concurrently", ErrInvalidStatusChange)
		}

		expense.Status = to
		expense.SettledAt = settledAt
		expense.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(expense.GroupID, audit.NewEvent(audit.EntityExpense, id, action,
		audit.WithGroup(expense.GroupID), audit.WithActor(actorID), audit.WithDetail("status", string(to))))
	return expense, nil
}

// PreviewSplit computes what every participant would owe without saving anything
func (s *Service) PreviewSplit(req *PreviewRequest) (split.Allocation, error) {
	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	return s.splitFactory.Calculate(req.SplitType, money.New(req.Amount, currency), req.Participants)
}

// CategoryTotals breaks a group's spending down by category over [from, to]
func (s *Service) CategoryTotals(ctx context.Context, groupID, actorID string, from, to time.Time) ([]*CategoryTotal, string, error) {
	membership, err := s.membership(ctx, s.db, groupID)
	if err != nil {
		return nil, "", err
	}
	if !contains(membership.MemberIDs, actorID) {
		return nil, "", ErrNotGroupMember
	}

	totals, err := s.repo.CategoryTotals(ctx, groupID, from.UTC(), to.UTC())
	if err != nil {
		return nil, "", err
	}
	return totals, membership.Currency, nil
}

// computeSplits checks the people on an expense against the group and runs
// the split strategy
func (s *Service) computeSplits(membership ledger.GroupMembership, actorID string, expense *Expense, participants []split.SplitInput) ([]*Split, error) {
	if !contains(membership.MemberIDs, actorID) {
		return nil, ErrNotGroupMember
	}
	if !contains(membership.MemberIDs, expense.PayerID) {
		return nil, fmt.Errorf("%w: %s", ErrPayerNotMember, expense.PayerID)
	}
	for _, p := range participants {
		if p.MemberID != "" && !contains(membership.MemberIDs, p.MemberID) {
			return nil, fmt.Errorf("%w: %s", ErrParticipantNotMember, p.MemberID)
		}
	}

	// Use STRATEGY PATTERN - calculate splits using the selected strategy
	allocation, err := s.splitFactory.Calculate(expense.SplitType, expense.Money(), participants)
	if err != nil {
		return nil, err
	}

	splits := make([]*Split, 0, len(participants))
	for _, p := range participants {
		splits = append(splits, &Split{
			ExpenseID:  expense.ID,
			MemberID:   p.MemberID,
			Amount:     p.Amount,
			Percentage: p.Percentage,
			Shares:     p.Shares,
			OwedAmount: allocation[p.MemberID].Amount,
		})
	}
	sort.Slice(splits, func(i, j int) bool {
		return splits[i].MemberID < splits[j].MemberID
	})
	return splits, nil
}

func (s *Service) membership(ctx context.Context, q database.Querier, groupID string) (ledger.GroupMembership, error) {
	memberships, err := s.groups.WithTx(q).Memberships(ctx, []string{groupID})
	if err != nil {
		return ledger.GroupMembership{}, err
	}
	if len(memberships) == 0 {
		return ledger.GroupMembership{}, ErrGroupNotFound
	}
	return memberships[0], nil
}

// changed runs after every committed mutation
func (s *Service) changed(groupID string, event audit.Event) {
	s.hub.Publish(groupID)
	s.metrics.Mutation(string(audit.EntityExpense))
	s.audit.Record(event)
}

func checkCurrency(requested, groupCurrency string) error {
	if requested == "" {
		return nil
	}
	currency, err := money.NormalizeCurrency(requested)
	if err != nil {
		return err
	}
	if currency != groupCurrency {
		return fmt.Errorf("%w: group keeps its ledger in %s", money.ErrCurrencyMismatch, groupCurrency)
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
