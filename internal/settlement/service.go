package settlement

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
	"github.com/fkhayef/expensesplitter/internal/expense"
	"github.com/fkhayef/expensesplitter/internal/group"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/metrics"
	"github.com/fkhayef/expensesplitter/internal/money"
	"github.com/fkhayef/expensesplitter/pkg/sanitize"
)

// Common errors
var (
	ErrSettlementNotFound  = errors.New("settlement not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrNotGroupMember      = errors.New("you are not a member of this group")
	ErrPartyNotMember      = errors.New("payer and payee must both be members of the group")
	ErrCannotSettleSelf    = errors.New("payer and payee must be different members")
	ErrNonPositiveAmount   = errors.New("settlement amount must be positive")
	ErrExpenseNotInGroup   = errors.New("linked expense does not belong to the group")
	ErrNotParty            = errors.New("only the payer or the payee can change a settlement")
	ErrInvalidStatusChange = errors.New("invalid status change")
)

// Service handles settlement business logic
type Service struct {
	db       *database.DB
	repo     *Repository
	groups   *group.Repository
	expenses *expense.Repository
	hub      *changefeed.Hub
	audit    audit.Recorder
	metrics  *metrics.Metrics
}

// NewService creates a new settlement service
func NewService(db *database.DB, groups *group.Repository, expenses *expense.Repository, hub *changefeed.Hub, recorder audit.Recorder, m *metrics.Metrics) *Service {
	return &Service{
		db:       db,
		repo:     NewRepository(db),
		groups:   groups,
		expenses: expenses,
		hub:      hub,
		audit:    recorder,
		metrics:  m,
	}
}

// Repository exposes the settlement repository for packages that read the ledger
func (s *Service) Repository() *Repository {
	return s.repo
}

// CreateSettlement records a payment between two members of a group. It is
// COMPLETED unless the request asks for PENDING.
func (s *Service) CreateSettlement(ctx context.Context, actorID string, req *CreateSettlementRequest) (*Settlement, error) {
	payerID := strings.TrimSpace(req.PayerID)
	if payerID == "" {
		payerID = actorID
	}
	payeeID := strings.TrimSpace(req.PayeeID)
	if payerID == payeeID {
		return nil, ErrCannotSettleSelf
	}
	if req.Amount.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}

	status := req.Status
	if status == "" {
		status = ledger.SettlementStatusCompleted
	}

	now := time.Now().UTC()
	settlement := &Settlement{
		ID:         uuid.NewString(),
		GroupID:    req.GroupID,
		PayerID:    payerID,
		PayeeID:    payeeID,
		Amount:     req.Amount,
		Status:     status,
		Notes:      sanitize.OptionalText(req.Notes),
		CreatedBy:  actorID,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpenseIDs: dedupe(req.ExpenseIDs),
	}
	if status == ledger.SettlementStatusCompleted {
		settlement.CompletedAt = &now
	}

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		memberships, err := s.groups.WithTx(q).Memberships(ctx, []string{req.GroupID})
		if err != nil {
			return err
		}
		if len(memberships) == 0 {
			return ErrGroupNotFound
		}
		membership := memberships[0]

		if !contains(membership.MemberIDs, actorID) {
			return ErrNotGroupMember
		}
		if !contains(membership.MemberIDs, payerID) || !contains(membership.MemberIDs, payeeID) {
			return ErrPartyNotMember
		}
		if err := checkCurrency(req.Currency, membership.Currency); err != nil {
			return err
		}
		settlement.Currency = membership.Currency
		if _, err := settlement.Money().MinorUnits(); err != nil {
			return err
		}

		found, err := s.expenses.WithTx(q).InGroup(ctx, req.GroupID, settlement.ExpenseIDs)
		if err != nil {
			return err
		}
		for _, id := range settlement.ExpenseIDs {
			if !found[id] {
				return fmt.Errorf("%w: %s", ErrExpenseNotInGroup, id)
			}
		}

		return s.repo.WithTx(q).Create(ctx, settlement)
	})
	if err != nil {
		return nil, err
	}

	s.changed(settlement.GroupID, audit.NewEvent(audit.EntitySettlement, settlement.ID, audit.ActionCreate,
		audit.WithGroup(settlement.GroupID), audit.WithActor(actorID),
		audit.WithDetail("amount", settlement.Money().String()),
		audit.WithDetail("status", string(settlement.Status))))
	return settlement, nil
}

// GetByID retrieves a settlement by its ID
func (s *Service) GetByID(ctx context.Context, id string) (*Settlement, error) {
	settlement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, ErrSettlementNotFound
	}
	return settlement, nil
}

// ListByGroup retrieves a page of a group's settlements for one of its members
func (s *Service) ListByGroup(ctx context.Context, groupID, actorID string, filter ListFilter, page, perPage int) ([]*Settlement, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	memberships, err := s.groups.Memberships(ctx, []string{groupID})
	if err != nil {
		return nil, 0, err
	}
	if len(memberships) == 0 {
		return nil, 0, ErrGroupNotFound
	}
	if !contains(memberships[0].MemberIDs, actorID) {
		return nil, 0, ErrNotGroupMember
	}

	offset := (page - 1) * perPage
	return s.repo.ListByGroup(ctx, groupID, filter, perPage, offset)
}

// CompleteSettlement confirms a pending payment; either party may confirm
func (s *Service) CompleteSettlement(ctx context.Context, id, actorID string) (*Settlement, error) {
	return s.transition(ctx, id, actorID, ledger.SettlementStatusCompleted, audit.ActionComplete,
		ledger.SettlementStatusPending)
}

// CancelSettlement voids a payment, taking it out of every balance
func (s *Service) CancelSettlement(ctx context.Context, id, actorID string) (*Settlement, error) {
	return s.transition(ctx, id, actorID, ledger.SettlementStatusCancelled, audit.ActionCancel,
		ledger.SettlementStatusPending, ledger.SettlementStatusCompleted)
}

func (s *Service) transition(ctx context.Context, id, actorID string, to ledger.SettlementStatus, action audit.Action, allowed ...ledger.SettlementStatus) (*Settlement, error) {
	var settlement *Settlement
	err := s.db.WithTx(ctx, func(q database.Querier) error {
		repo := s.repo.WithTx(q)
		var err error
		settlement, err = repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if settlement == nil {
			return ErrSettlementNotFound
		}
		if !settlement.IsParty(actorID) {
			return ErrNotParty
		}

		from := settlement.Status
		ok := false
		for _, st := range allowed {
			ok = ok || st == from
		}
		if !ok {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusChange, from, to)
		}

		now := time.Now().UTC()
		completedAt := settlement.CompletedAt
		if to == ledger.SettlementStatusCompleted {
			completedAt = &now
		}

		updated, err := repo.UpdateStatus(ctx, id, from, to, completedAt, now)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: settlement changed concurrently", ErrInvalidStatusChange)
		}

		settlement.Status = to
		settlement.CompletedAt = completedAt
		settlement.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(settlement.GroupID, audit.NewEvent(audit.EntitySettlement, id, action,
		audit.WithGroup(settlement.GroupID), audit.WithActor(actorID), audit.WithDetail("status", string(to))))
	return settlement, nil
}

// changed runs after every committed mutation
func (s *Service) changed(groupID string, event audit.Event) {
	s.hub.Publish(groupID)
	s.metrics.Mutation(string(audit.EntitySettlement))
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

func dedupe(ids []string) []string {
	var out []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
