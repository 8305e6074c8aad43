package ledger

import (
	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// ExpenseStatus is the lifecycle state of an expense
type ExpenseStatus string

const (
	ExpenseStatusActive  ExpenseStatus = "ACTIVE"
	ExpenseStatusSettled ExpenseStatus = "SETTLED"
	ExpenseStatusDeleted ExpenseStatus = "DELETED"
)

// Valid reports whether s is a known expense status
func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpenseStatusActive, ExpenseStatusSettled, ExpenseStatusDeleted:
		return true
	}
	return false
}

// SettlementStatus is the lifecycle state of a settlement
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusCompleted SettlementStatus = "COMPLETED"
	SettlementStatusCancelled SettlementStatus = "CANCELLED"
)

// Valid reports whether s is a known settlement status
func (s SettlementStatus) Valid() bool {
	switch s {
	case SettlementStatusPending, SettlementStatusCompleted, SettlementStatusCancelled:
		return true
	}
	return false
}

// Expense is the read-only view of an expense the engine works on
type Expense struct {
	ID           string
	GroupID      string
	Amount       money.Money
	PayerID      string
	SplitType    split.SplitType
	Participants []split.SplitInput
	Status       ExpenseStatus

	// Shares holds the owed amounts persisted when the expense was saved.
	// When present they are used as-is (after checking they add up to
	// Amount); otherwise the split policy is re-run.
	Shares map[string]money.Money
}

// Settlement is the read-only view of a direct payment between two members
type Settlement struct {
	ID      string
	GroupID string
	PayerID string
	PayeeID string
	Amount  money.Money
	Status  SettlementStatus
}

// GroupMembership lists the members of a group and the currency its ledger is kept in
type GroupMembership struct {
	GroupID   string
	Name      string
	Currency  string
	MemberIDs []string
}

// Snapshot is a consistent, immutable set of ledger inputs
type Snapshot struct {
	Groups      []GroupMembership
	Expenses    []Expense
	Settlements []Settlement
}

// Group finds a group by id
func (s *Snapshot) Group(groupID string) (GroupMembership, bool) {
	for _, g := range s.Groups {
		if g.GroupID == groupID {
			return g, true
		}
	}
	return GroupMembership{}, false
}

// GroupsOf returns the groups memberID belongs to, in snapshot order
func (s *Snapshot) GroupsOf(memberID string) []GroupMembership {
	var out []GroupMembership
	for _, g := range s.Groups {
		for _, m := range g.MemberIDs {
			if m == memberID {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// MemberBalance is one member's position within a group
type MemberBalance struct {
	MemberID    string      `json:"member_id"`
	Paid        money.Money `json:"paid"`        // amount fronted on included expenses
	Owed        money.Money `json:"owed"`        // own share of included expenses
	Settlements money.Money `json:"settlements"` // completed settlements paid minus received
	Net         money.Money `json:"net"`         // Paid - Owed + Settlements
}

// GroupBalances is the per-member breakdown of one group
type GroupBalances struct {
	GroupID  string          `json:"group_id"`
	Currency string          `json:"currency"`
	Members  []MemberBalance `json:"members"` // sorted by member id

	// Excluded lists entries left out in degraded mode (see SkipInconsistent)
	Excluded []*InconsistencyError `json:"excluded,omitempty"`
}

// Balance returns a member's net balance
func (g *GroupBalances) Balance(memberID string) (money.Money, bool) {
	for _, m := range g.Members {
		if m.MemberID == memberID {
			return m.Net, true
		}
	}
	return money.Zero(g.Currency), false
}

// Net returns every member's net balance keyed by member id
func (g *GroupBalances) Net() map[string]money.Money {
	out := make(map[string]money.Money, len(g.Members))
	for _, m := range g.Members {
		out[m.MemberID] = m.Net
	}
	return out
}

// Total sums all net balances; zero for any consistent ledger
func (g *GroupBalances) Total() money.Money {
	total := money.Zero(g.Currency)
	for _, m := range g.Members {
		total.Amount = total.Amount.Add(m.Net.Amount)
	}
	return total
}
