// Package balance serves computed balances: it loads consistent snapshots
// from storage and runs the ledger engine over them.
package balance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/metrics"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// Common errors
var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrNotGroupMember = errors.New("you are not a member of this group")
)

// Query tunes one balance request
type Query struct {
	// IncludeSettled overrides the configured inclusion policy when set
	IncludeSettled *bool
	// SkipInconsistent returns a degraded result instead of failing on bad data
	SkipInconsistent bool
}

// Service computes balances from stored ledger data
type Service struct {
	loader     *Loader
	engine     *ledger.Engine
	aggregator *ledger.Aggregator
	metrics    *metrics.Metrics
}

// NewService creates a balance service. The engine's defaults apply to
// requests that do not choose an inclusion policy.
func NewService(loader *Loader, engine *ledger.Engine, m *metrics.Metrics) *Service {
	return &Service{
		loader:     loader,
		engine:     engine,
		aggregator: ledger.NewAggregator(engine),
		metrics:    m,
	}
}

func (s *Service) options(q Query) []ledger.Option {
	var opts []ledger.Option
	if q.IncludeSettled != nil {
		if *q.IncludeSettled {
			opts = append(opts, ledger.IncludeSettled())
		} else {
			opts = append(opts, ledger.WithInclusion(ledger.IncludeActive))
		}
	}
	if q.SkipInconsistent {
		opts = append(opts, ledger.SkipInconsistent())
	}
	return opts
}

// GroupBalances computes every member's balance in a group the actor belongs to
func (s *Service) GroupBalances(ctx context.Context, groupID, actorID string, q Query) (*ledger.GroupBalances, error) {
	snap, err := s.loader.Groups(ctx, groupID)
	if err != nil {
		return nil, err
	}
	g, ok := snap.Group(groupID)
	if !ok {
		return nil, ErrGroupNotFound
	}
	if !contains(g.MemberIDs, actorID) {
		return nil, ErrNotGroupMember
	}

	start := time.Now()
	balances, err := s.engine.ComputeAllBalances(groupID, snap, s.options(q)...)
	s.metrics.ObserveComputation("group", start, err)
	if err != nil {
		s.reportFailure(err)
		return nil, err
	}
	s.reportExcluded(balances.Excluded)
	return balances, nil
}

// MemberBalance returns one member's net balance in a group
func (s *Service) MemberBalance(ctx context.Context, groupID, memberID, actorID string, q Query) (money.Money, error) {
	balances, err := s.GroupBalances(ctx, groupID, actorID, q)
	if err != nil {
		return money.Money{}, err
	}
	balance, ok := balances.Balance(memberID)
	if !ok {
		return money.Money{}, ledger.ErrMemberNotInGroup
	}
	return balance, nil
}

// Debts suggests the transfers that would settle a group
func (s *Service) Debts(ctx context.Context, groupID, actorID string, q Query) ([]ledger.Transfer, error) {
	balances, err := s.GroupBalances(ctx, groupID, actorID, q)
	if err != nil {
		return nil, err
	}
	return ledger.Debts(balances), nil
}

// MemberSummary computes a member's balance in each of their groups
func (s *Service) MemberSummary(ctx context.Context, memberID string, q Query) (*ledger.MemberSummary, error) {
	snap, err := s.loader.Member(ctx, memberID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	summary, err := s.aggregator.ForMember(memberID, snap, s.options(q)...)
	s.metrics.ObserveComputation("member", start, err)
	if err != nil {
		s.reportFailure(err)
		return nil, err
	}
	for _, g := range summary.Groups {
		s.reportExcluded(g.Excluded)
	}
	return summary, nil
}

func (s *Service) reportFailure(err error) {
	var inconsistent *ledger.InconsistencyError
	if errors.As(err, &inconsistent) {
		s.metrics.Inconsistent(inconsistent.EntityType, 1)
		slog.Error("ledger inconsistency", "group_id", inconsistent.GroupID,
			"entity_type", inconsistent.EntityType, "entity_id", inconsistent.EntityID, "reason", inconsistent.Reason)
	}
}

func (s *Service) reportExcluded(excluded []*ledger.InconsistencyError) {
	for _, e := range excluded {
		s.metrics.Inconsistent(e.EntityType, 1)
		slog.Warn("left inconsistent entry out of balance", "group_id", e.GroupID,
			"entity_type", e.EntityType, "entity_id", e.EntityID, "reason", e.Reason)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
