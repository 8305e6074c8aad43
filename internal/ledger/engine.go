package ledger

import (
	"sort"
	"strings"

	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// InclusionPolicy decides which expense statuses count toward a balance
type InclusionPolicy string

const (
	// IncludeActive counts ACTIVE expenses only
	IncludeActive InclusionPolicy = "ACTIVE"
	// IncludeActiveAndSettled also counts SETTLED expenses (historical totals)
	IncludeActiveAndSettled InclusionPolicy = "ACTIVE_AND_SETTLED"
)

func (p InclusionPolicy) includes(status ExpenseStatus) bool {
	switch status {
	case ExpenseStatusActive:
		return true
	case ExpenseStatusSettled:
		return p == IncludeActiveAndSettled
	default:
		return false
	}
}

type options struct {
	inclusion        InclusionPolicy
	skipInconsistent bool
}

// Option tunes a computation
type Option func(*options)

// WithInclusion sets the inclusion policy
func WithInclusion(p InclusionPolicy) Option {
	return func(o *options) {
		o.inclusion = p
	}
}

// IncludeSettled counts SETTLED expenses as well as ACTIVE ones
func IncludeSettled() Option {
	return WithInclusion(IncludeActiveAndSettled)
}

// SkipInconsistent leaves inconsistent entries out of the computation and
// reports them in GroupBalances.Excluded instead of failing.
func SkipInconsistent() Option {
	return func(o *options) {
		o.skipInconsistent = true
	}
}

// Engine computes balances. It holds no state besides its defaults and is
// safe for concurrent use.
type Engine struct {
	factory  *split.Factory
	defaults []Option
}

// NewEngine creates an engine; opts become the defaults of every call
func NewEngine(factory *split.Factory, opts ...Option) *Engine {
	return &Engine{factory: factory, defaults: opts}
}

func (e *Engine) options(opts []Option) options {
	o := options{inclusion: IncludeActive}
	for _, opt := range e.defaults {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ApplySplitPolicy runs the expense's split policy and returns each
// participant's owed amount without saving anything.
func (e *Engine) ApplySplitPolicy(exp Expense) (split.Allocation, error) {
	return e.factory.Calculate(exp.SplitType, exp.Amount, exp.Participants)
}

// ComputeBalance returns the signed net balance of one member in one group
func (e *Engine) ComputeBalance(groupID, memberID string, snap *Snapshot, opts ...Option) (money.Money, error) {
	all, err := e.ComputeAllBalances(groupID, snap, opts...)
	if err != nil {
		return money.Money{}, err
	}
	balance, ok := all.Balance(memberID)
	if !ok {
		return money.Money{}, ErrMemberNotInGroup
	}
	return balance, nil
}

type tally struct {
	paid, owed, settled, net int64
}

// entry is one expense's or settlement's effect on a member's tally
type entry struct {
	paid, owed, settled int64
}

// addInt64 returns a+b, or false when the sum does not fit in an int64
func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// plus returns t with e applied, or false when any running total would overflow
func (t tally) plus(e entry) (tally, bool) {
	var ok bool
	if t.paid, ok = addInt64(t.paid, e.paid); !ok {
		return t, false
	}
	if t.owed, ok = addInt64(t.owed, e.owed); !ok {
		return t, false
	}
	if t.settled, ok = addInt64(t.settled, e.settled); !ok {
		return t, false
	}
	for _, d := range []int64{e.paid, -e.owed, e.settled} {
		if t.net, ok = addInt64(t.net, d); !ok {
			return t, false
		}
	}
	return t, true
}

// ComputeAllBalances returns the balance of every member of a group. Group
// members without any activity are included with a zero balance, as is
// anyone who appears on an expense or settlement without being a member.
func (e *Engine) ComputeAllBalances(groupID string, snap *Snapshot, opts ...Option) (*GroupBalances, error) {
	group, ok := snap.Group(groupID)
	if !ok {
		return nil, ErrGroupNotFound
	}
	o := e.options(opts)
	currency := strings.ToUpper(group.Currency)

	tallies := make(map[string]tally)
	for _, id := range group.MemberIDs {
		tallies[id] = tally{}
	}
	// apply adds every member's entry, or none of them when a total would overflow
	apply := func(entries map[string]entry) bool {
		next := make(map[string]tally, len(entries))
		for id, e := range entries {
			t, ok := tallies[id].plus(e)
			if !ok {
				return false
			}
			next[id] = t
		}
		for id, t := range next {
			tallies[id] = t
		}
		return true
	}

	result := &GroupBalances{GroupID: groupID, Currency: currency}
	fail := func(incErr *InconsistencyError) error {
		if o.skipInconsistent {
			result.Excluded = append(result.Excluded, incErr)
			return nil
		}
		return incErr
	}

	for _, exp := range snap.Expenses {
		if exp.GroupID != groupID || !o.inclusion.includes(exp.Status) {
			continue
		}
		total, shares, incErr := e.owedShares(exp, currency)
		if incErr != nil {
			if err := fail(incErr); err != nil {
				return nil, err
			}
			continue
		}
		entries := make(map[string]entry, len(shares)+1)
		entries[exp.PayerID] = entry{paid: total}
		for id, units := range shares {
			e := entries[id]
			e.owed = units
			entries[id] = e
		}
		if !apply(entries) {
			if err := fail(expenseInconsistency(exp, money.ErrAmountTooLarge,
				"balances overflow when adding %s", exp.Amount)); err != nil {
				return nil, err
			}
		}
	}

	for _, s := range snap.Settlements {
		if s.GroupID != groupID || s.Status != SettlementStatusCompleted {
			continue
		}
		units, incErr := settlementUnits(s, currency)
		if incErr != nil {
			if err := fail(incErr); err != nil {
				return nil, err
			}
			continue
		}
		// Paying a settlement reduces what the payer owes; receiving one
		// reduces what the payee is owed.
		if !apply(map[string]entry{s.PayerID: {settled: units}, s.PayeeID: {settled: -units}}) {
			incErr := settlementInconsistency(s, "balances overflow when adding %s", s.Amount)
			incErr.Err = money.ErrAmountTooLarge
			if err := fail(incErr); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]string, 0, len(tallies))
	for id := range tallies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result.Members = make([]MemberBalance, len(ids))
	for i, id := range ids {
		t := tallies[id]
		result.Members[i] = MemberBalance{
			MemberID:    id,
			Paid:        money.FromMinor(t.paid, currency),
			Owed:        money.FromMinor(t.owed, currency),
			Settlements: money.FromMinor(t.settled, currency),
			Net:         money.FromMinor(t.net, currency),
		}
	}
	return result, nil
}

// owedShares returns the expense total and each participant's share in minor
// units, failing when the stored data cannot produce shares that add up.
func (e *Engine) owedShares(exp Expense, currency string) (int64, map[string]int64, *InconsistencyError) {
	if !strings.EqualFold(exp.Amount.Currency, currency) {
		return 0, nil, expenseInconsistency(exp, money.ErrCurrencyMismatch,
			"expense currency %s differs from group currency %s", exp.Amount.Currency, currency)
	}
	if exp.PayerID == "" {
		return 0, nil, expenseInconsistency(exp, nil, "expense has no payer")
	}
	total, err := exp.Amount.MinorUnits()
	if err != nil {
		return 0, nil, expenseInconsistency(exp, err, "invalid amount %s", exp.Amount)
	}
	if total <= 0 {
		return 0, nil, expenseInconsistency(exp, nil, "non-positive amount %s", exp.Amount)
	}

	allocation := split.Allocation(exp.Shares)
	if len(allocation) == 0 {
		allocation, err = e.ApplySplitPolicy(exp)
		if err != nil {
			return 0, nil, expenseInconsistency(exp, err, "stored split no longer validates: %v", err)
		}
	}

	shares := make(map[string]int64, len(allocation))
	var sum int64
	for id, m := range allocation {
		if !strings.EqualFold(m.Currency, currency) {
			return 0, nil, expenseInconsistency(exp, money.ErrCurrencyMismatch,
				"share of %s is in %s", id, m.Currency)
		}
		units, err := m.MinorUnits()
		if err != nil {
			return 0, nil, expenseInconsistency(exp, err, "share of %s: %v", id, err)
		}
		if units < 0 {
			return 0, nil, expenseInconsistency(exp, nil, "negative share %s for %s", m, id)
		}
		if units > total-sum {
			return 0, nil, expenseInconsistency(exp, nil, "shares exceed the expense amount %s", exp.Amount)
		}
		shares[id] = units
		sum += units
	}
	if sum != total {
		return 0, nil, expenseInconsistency(exp, nil, "shares sum to %s, expense amount is %s",
			money.FromMinor(sum, currency), money.FromMinor(total, currency))
	}
	return total, shares, nil
}

func settlementUnits(s Settlement, currency string) (int64, *InconsistencyError) {
	if s.PayerID == "" || s.PayeeID == "" || s.PayerID == s.PayeeID {
		return 0, settlementInconsistency(s, "payer %q and payee %q must be two different members", s.PayerID, s.PayeeID)
	}
	if !strings.EqualFold(s.Amount.Currency, currency) {
		return 0, settlementInconsistency(s, "settlement currency %s differs from group currency %s", s.Amount.Currency, currency)
	}
	units, err := s.Amount.MinorUnits()
	if err != nil {
		return 0, settlementInconsistency(s, "invalid amount %s", s.Amount)
	}
	if units <= 0 {
		return 0, settlementInconsistency(s, "non-positive amount %s", s.Amount)
	}
	return units, nil
}
