package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fkhayef/expensesplitter/internal/money"
)

// GroupBalance is a member's balance in one group
type GroupBalance struct {
	GroupID   string                `json:"group_id"`
	GroupName string                `json:"group_name"`
	Balance   money.Money           `json:"balance"`
	Excluded  []*InconsistencyError `json:"excluded,omitempty"`
}

// MemberSummary is a member's balance across all their groups
type MemberSummary struct {
	MemberID string         `json:"member_id"`
	Groups   []GroupBalance `json:"groups"`
	// Totals holds one grand total per currency, sorted by currency code
	Totals []money.Money `json:"totals"`
}

// Aggregator runs the engine over every group a member belongs to
type Aggregator struct {
	engine *Engine
}

// NewAggregator creates an aggregator on top of engine
func NewAggregator(engine *Engine) *Aggregator {
	return &Aggregator{engine: engine}
}

// ForMember computes the member's balance in each of their groups and the
// grand total. Groups share no data, so they are computed concurrently.
func (a *Aggregator) ForMember(memberID string, snap *Snapshot, opts ...Option) (*MemberSummary, error) {
	groups := snap.GroupsOf(memberID)
	results := make([]GroupBalance, len(groups))

	var eg errgroup.Group
	for i, g := range groups {
		eg.Go(func() error {
			all, err := a.engine.ComputeAllBalances(g.GroupID, snap, opts...)
			if err != nil {
				return err
			}
			balance, _ := all.Balance(memberID)
			results[i] = GroupBalance{
				GroupID:   g.GroupID,
				GroupName: g.Name,
				Balance:   balance,
				Excluded:  all.Excluded,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, r := range results {
		totals[r.Balance.Currency] = totals[r.Balance.Currency].Add(r.Balance.Amount)
	}
	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	summary := &MemberSummary{MemberID: memberID, Groups: results, Totals: make([]money.Money, len(currencies))}
	for i, c := range currencies {
		summary.Totals[i] = money.New(totals[c], c)
	}
	return summary, nil
}
