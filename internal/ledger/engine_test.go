package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/money"
)

func inr(s string) money.Money {
	return money.MustParse(s, "INR")
}

func equalExpense(id, payer, amount string, members ...string) Expense {
	participants := make([]split.SplitInput, len(members))
	for i, m := range members {
		participants[i] = split.SplitInput{MemberID: m}
	}
	return Expense{
		ID:           id,
		GroupID:      "g1",
		Amount:       inr(amount),
		PayerID:      payer,
		SplitType:    split.SplitTypeEqual,
		Participants: participants,
		Status:       ExpenseStatusActive,
	}
}

func group(members ...string) GroupMembership {
	return GroupMembership{GroupID: "g1", Name: "Trip", Currency: "INR", MemberIDs: members}
}

func newEngine(opts ...Option) *Engine {
	return NewEngine(split.NewSplitStrategyFactory(), opts...)
}

func assertNet(t *testing.T, g *GroupBalances, want map[string]string) {
	t.Helper()
	for id, amount := range want {
		got, ok := g.Balance(id)
		require.True(t, ok, "no balance for %s", id)
		assert.True(t, got.Equal(inr(amount)), "%s: got %s, want %s", id, got, amount)
	}
	assert.True(t, g.Total().IsZero(), "balances do not net to zero: %s", g.Total())
}

func TestComputeAllBalances(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
		opts []Option
		want map[string]string
	}{
		{
			name: "equal split between two",
			snap: &Snapshot{
				Groups:   []GroupMembership{group("A", "B")},
				Expenses: []Expense{equalExpense("e1", "A", "100.00", "A", "B")},
			},
			want: map[string]string{"A": "50.00", "B": "-50.00"},
		},
		{
			name: "uneven equal split",
			snap: &Snapshot{
				Groups:   []GroupMembership{group("A", "B", "C")},
				Expenses: []Expense{equalExpense("e1", "B", "100.00", "A", "B", "C")},
			},
			want: map[string]string{"A": "-33.34", "B": "66.67", "C": "-33.33"},
		},
		{
			name: "completed settlement clears the debt",
			snap: &Snapshot{
				Groups:   []GroupMembership{group("A", "B")},
				Expenses: []Expense{equalExpense("e1", "A", "50.00", "A", "B")},
				Settlements: []Settlement{
					{ID: "s1", GroupID: "g1", PayerID: "B", PayeeID: "A", Amount: inr("25.00"), Status: SettlementStatusCompleted},
				},
			},
			want: map[string]string{"A": "0.00", "B": "0.00"},
		},
		{
			name: "pending and cancelled settlements are ignored",
			snap: &Snapshot{
				Groups:   []GroupMembership{group("A", "B")},
				Expenses: []Expense{equalExpense("e1", "A", "50.00", "A", "B")},
				Settlements: []Settlement{
					{ID: "s1", GroupID: "g1", PayerID: "B", PayeeID: "A", Amount: inr("25.00"), Status: SettlementStatusPending},
					{ID: "s2", GroupID: "g1", PayerID: "B", PayeeID: "A", Amount: inr("25.00"), Status: SettlementStatusCancelled},
				},
			},
			want: map[string]string{"A": "25.00", "B": "-25.00"},
		},
		{
			name: "deleted expense is excluded",
			snap: &Snapshot{
				Groups: []GroupMembership{group("A", "B")},
				Expenses: []Expense{
					equalExpense("e1", "A", "100.00", "A", "B"),
					func() Expense {
						e := equalExpense("e2", "B", "40.00", "A", "B")
						e.Status = ExpenseStatusDeleted
						return e
					}(),
				},
			},
			want: map[string]string{"A": "50.00", "B": "-50.00"},
		},
		{
			name: "settled expense excluded by default",
			snap: &Snapshot{
				Groups: []GroupMembership{group("A", "B")},
				Expenses: []Expense{
					func() Expense {
						e := equalExpense("e1", "A", "100.00", "A", "B")
						e.Status = ExpenseStatusSettled
						return e
					}(),
				},
			},
			want: map[string]string{"A": "0.00", "B": "0.00"},
		},
		{
			name: "settled expense included on request",
			snap: &Snapshot{
				Groups: []GroupMembership{group("A", "B")},
				Expenses: []Expense{
					func() Expense {
						e := equalExpense("e1", "A", "100.00", "A", "B")
						e.Status = ExpenseStatusSettled
						return e
					}(),
				},
			},
			opts: []Option{IncludeSettled()},
			want: map[string]string{"A": "50.00", "B": "-50.00"},
		},
		{
			name: "payer outside the participants",
			snap: &Snapshot{
				Groups:   []GroupMembership{group("A", "B", "C")},
				Expenses: []Expense{equalExpense("e1", "C", "30.00", "A", "B")},
			},
			want: map[string]string{"A": "-15.00", "B": "-15.00", "C": "30.00"},
		},
		{
			name: "stored shares are used as-is",
			snap: &Snapshot{
				Groups: []GroupMembership{group("A", "B")},
				Expenses: []Expense{
					func() Expense {
						e := equalExpense("e1", "A", "100.00", "A", "B")
						e.Shares = map[string]money.Money{"A": inr("20.00"), "B": inr("80.00")}
						return e
					}(),
				},
			},
			want: map[string]string{"A": "80.00", "B": "-80.00"},
		},
		{
			name: "expenses of other groups are ignored",
			snap: &Snapshot{
				Groups: []GroupMembership{group("A", "B")},
				Expenses: []Expense{
					func() Expense {
						e := equalExpense("e1", "A", "100.00", "A", "B")
						e.GroupID = "g2"
						return e
					}(),
				},
			},
			want: map[string]string{"A": "0.00", "B": "0.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newEngine().ComputeAllBalances("g1", tt.snap, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, "INR", got.Currency)
			assertNet(t, got, tt.want)
		})
	}
}

func TestComputeAllBalancesIsIdempotent(t *testing.T) {
	snap := &Snapshot{
		Groups: []GroupMembership{group("A", "B", "C")},
		Expenses: []Expense{
			equalExpense("e1", "A", "100.00", "A", "B", "C"),
			equalExpense("e2", "C", "17.03", "B", "C"),
		},
		Settlements: []Settlement{
			{ID: "s1", GroupID: "g1", PayerID: "B", PayeeID: "A", Amount: inr("10.00"), Status: SettlementStatusCompleted},
		},
	}
	engine := newEngine()

	first, err := engine.ComputeAllBalances("g1", snap)
	require.NoError(t, err)
	second, err := engine.ComputeAllBalances("g1", snap)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSettlementMovesBothMembersByTheSameAmount(t *testing.T) {
	base := &Snapshot{
		Groups:   []GroupMembership{group("A", "B", "C")},
		Expenses: []Expense{equalExpense("e1", "A", "90.00", "A", "B", "C")},
	}
	withSettlement := *base
	withSettlement.Settlements = []Settlement{
		{ID: "s1", GroupID: "g1", PayerID: "C", PayeeID: "A", Amount: inr("12.50"), Status: SettlementStatusCompleted},
	}

	engine := newEngine()
	before, err := engine.ComputeAllBalances("g1", base)
	require.NoError(t, err)
	after, err := engine.ComputeAllBalances("g1", &withSettlement)
	require.NoError(t, err)

	delta := func(id string) decimal.Decimal {
		b, _ := before.Balance(id)
		a, _ := after.Balance(id)
		return a.Amount.Sub(b.Amount)
	}
	assert.True(t, delta("C").Equal(decimal.RequireFromString("12.50")))
	assert.True(t, delta("A").Equal(decimal.RequireFromString("-12.50")))
	assert.True(t, delta("B").IsZero())
}

func TestRestoringAnExpenseRestoresBalances(t *testing.T) {
	exp := equalExpense("e1", "A", "60.00", "A", "B", "C")
	snap := &Snapshot{Groups: []GroupMembership{group("A", "B", "C")}, Expenses: []Expense{exp}}
	engine := newEngine()

	active, err := engine.ComputeAllBalances("g1", snap)
	require.NoError(t, err)

	snap.Expenses[0].Status = ExpenseStatusDeleted
	deleted, err := engine.ComputeAllBalances("g1", snap)
	require.NoError(t, err)
	assertNet(t, deleted, map[string]string{"A": "0", "B": "0", "C": "0"})

	snap.Expenses[0].Status = ExpenseStatusActive
	restored, err := engine.ComputeAllBalances("g1", snap)
	require.NoError(t, err)
	assert.Equal(t, active, restored)
}

func TestInconsistentData(t *testing.T) {
	badShares := equalExpense("bad", "A", "100.00", "A", "B")
	badShares.Shares = map[string]money.Money{"A": inr("50.00"), "B": inr("49.99")}

	badPolicy := Expense{
		ID: "bad-policy", GroupID: "g1", Amount: inr("100.00"), PayerID: "A",
		SplitType: split.SplitTypePercentages, Status: ExpenseStatusActive,
		Participants: []split.SplitInput{
			{MemberID: "A", Percentage: func() *decimal.Decimal { d := decimal.NewFromInt(50); return &d }()},
		},
	}

	otherCurrency := equalExpense("usd", "A", "10.00", "A", "B")
	otherCurrency.Amount = money.MustParse("10.00", "USD")

	selfSettlement := Settlement{ID: "s1", GroupID: "g1", PayerID: "A", PayeeID: "A", Amount: inr("5.00"), Status: SettlementStatusCompleted}

	tests := []struct {
		name     string
		snap     *Snapshot
		entityID string
	}{
		{"shares do not add up", &Snapshot{Expenses: []Expense{badShares}}, "bad"},
		{"policy no longer validates", &Snapshot{Expenses: []Expense{badPolicy}}, "bad-policy"},
		{"currency differs from group", &Snapshot{Expenses: []Expense{otherCurrency}}, "usd"},
		{"settlement to self", &Snapshot{Settlements: []Settlement{selfSettlement}}, "s1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.snap.Groups = []GroupMembership{group("A", "B")}
			tt.snap.Expenses = append(tt.snap.Expenses, equalExpense("ok", "B", "20.00", "A", "B"))

			_, err := newEngine().ComputeAllBalances("g1", tt.snap)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLedgerInconsistency)
			var incErr *InconsistencyError
			require.True(t, errors.As(err, &incErr))
			assert.Equal(t, tt.entityID, incErr.EntityID)

			got, err := newEngine().ComputeAllBalances("g1", tt.snap, SkipInconsistent())
			require.NoError(t, err)
			require.Len(t, got.Excluded, 1)
			assert.Equal(t, tt.entityID, got.Excluded[0].EntityID)
			assertNet(t, got, map[string]string{"A": "-10.00", "B": "10.00"})
		})
	}
}

func TestAmountsBeyondMinorUnitRange(t *testing.T) {
	huge := equalExpense("huge", "A", "100000000000000000000.00", "A", "B")
	big := func(id string) Expense {
		return equalExpense(id, "A", "50000000000000000.00", "A", "B")
	}
	bigSettlement := Settlement{
		ID: "s1", GroupID: "g1", PayerID: "A", PayeeID: "B",
		Amount: inr("90000000000000000.00"), Status: SettlementStatusCompleted,
	}

	tests := []struct {
		name     string
		snap     *Snapshot
		entityID string
		want     map[string]string
	}{
		{
			name:     "amount does not fit in minor units",
			snap:     &Snapshot{Expenses: []Expense{huge, equalExpense("ok", "B", "20.00", "A", "B")}},
			entityID: "huge",
			want:     map[string]string{"A": "-10.00", "B": "10.00"},
		},
		{
			name:     "paid total would overflow",
			snap:     &Snapshot{Expenses: []Expense{big("e1"), big("e2")}},
			entityID: "e2",
			want:     map[string]string{"A": "25000000000000000.00", "B": "-25000000000000000.00"},
		},
		{
			name:     "net balance would overflow",
			snap:     &Snapshot{Expenses: []Expense{big("e1")}, Settlements: []Settlement{bigSettlement}},
			entityID: "s1",
			want:     map[string]string{"A": "25000000000000000.00", "B": "-25000000000000000.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.snap.Groups = []GroupMembership{group("A", "B")}

			_, err := newEngine().ComputeAllBalances("g1", tt.snap)
			require.ErrorIs(t, err, ErrLedgerInconsistency)
			assert.ErrorIs(t, err, money.ErrAmountTooLarge)
			var incErr *InconsistencyError
			require.True(t, errors.As(err, &incErr))
			assert.Equal(t, tt.entityID, incErr.EntityID)

			got, err := newEngine().ComputeAllBalances("g1", tt.snap, SkipInconsistent())
			require.NoError(t, err)
			require.Len(t, got.Excluded, 1)
			assert.Equal(t, tt.entityID, got.Excluded[0].EntityID)
			assertNet(t, got, tt.want)
		})
	}
}

func TestPolicyErrorUnwrapsToValidationError(t *testing.T) {
	exp := Expense{
		ID: "e1", GroupID: "g1", Amount: inr("100.00"), PayerID: "A",
		SplitType: split.SplitTypeShares, Status: ExpenseStatusActive,
		Participants: []split.SplitInput{{MemberID: "A"}},
	}
	snap := &Snapshot{Groups: []GroupMembership{group("A")}, Expenses: []Expense{exp}}

	_, err := newEngine().ComputeAllBalances("g1", snap)
	assert.ErrorIs(t, err, split.ErrMissingShares)
	assert.True(t, split.IsValidationError(err))
}

func TestComputeBalance(t *testing.T) {
	snap := &Snapshot{
		Groups:   []GroupMembership{group("A", "B")},
		Expenses: []Expense{equalExpense("e1", "A", "100.00", "A", "B")},
	}
	engine := newEngine()

	balance, err := engine.ComputeBalance("g1", "B", snap)
	require.NoError(t, err)
	assert.True(t, balance.Equal(inr("-50.00")))

	_, err = engine.ComputeBalance("g1", "Z", snap)
	assert.ErrorIs(t, err, ErrMemberNotInGroup)

	_, err = engine.ComputeBalance("missing", "A", snap)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestEngineDefaults(t *testing.T) {
	exp := equalExpense("e1", "A", "100.00", "A", "B")
	exp.Status = ExpenseStatusSettled
	snap := &Snapshot{Groups: []GroupMembership{group("A", "B")}, Expenses: []Expense{exp}}

	balance, err := newEngine(IncludeSettled()).ComputeBalance("g1", "A", snap)
	require.NoError(t, err)
	assert.True(t, balance.Equal(inr("50.00")))

	balance, err = newEngine(IncludeSettled()).ComputeBalance("g1", "A", snap, WithInclusion(IncludeActive))
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestApplySplitPolicy(t *testing.T) {
	allocation, err := newEngine().ApplySplitPolicy(equalExpense("e1", "A", "100.00", "C", "B", "A"))
	require.NoError(t, err)
	assert.True(t, allocation["A"].Equal(inr("33.34")))
	assert.True(t, allocation["B"].Equal(inr("33.33")))
	assert.True(t, allocation["C"].Equal(inr("33.33")))
}
