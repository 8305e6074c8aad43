package balance

import (
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// MemberBalanceResponse is one member's position in a group
type MemberBalanceResponse struct {
	MemberID    string `json:"member_id"`
	Paid        string `json:"paid"`
	Owed        string `json:"owed"`
	Settlements string `json:"settlements"`
	Net         string `json:"net"`
}

// ExcludedResponse describes an entry left out of a degraded computation
type ExcludedResponse struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Reason     string `json:"reason"`
}

// GroupBalancesResponse represents a group's balances in API responses
type GroupBalancesResponse struct {
	GroupID  string                  `json:"group_id"`
	Currency string                  `json:"currency"`
	Members  []MemberBalanceResponse `json:"members"`
	Excluded []ExcludedResponse      `json:"excluded,omitempty"`
}

// SingleBalanceResponse is one member's net balance in a group
type SingleBalanceResponse struct {
	GroupID  string `json:"group_id"`
	MemberID string `json:"member_id"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// TransferResponse is a suggested payment
type TransferResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// GroupSummaryResponse is a member's balance in one of their groups
type GroupSummaryResponse struct {
	GroupID   string             `json:"group_id"`
	GroupName string             `json:"group_name"`
	Currency  string             `json:"currency"`
	Balance   string             `json:"balance"`
	Excluded  []ExcludedResponse `json:"excluded,omitempty"`
}

// TotalResponse is a grand total in one currency
type TotalResponse struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// MemberSummaryResponse is a member's balance across all their groups
type MemberSummaryResponse struct {
	MemberID string                 `json:"member_id"`
	Groups   []GroupSummaryResponse `json:"groups"`
	Totals   []TotalResponse        `json:"totals"`
}

func format(m money.Money) string {
	return m.Amount.StringFixed(money.Exponent(m.Currency))
}

func excluded(errs []*ledger.InconsistencyError) []ExcludedResponse {
	if len(errs) == 0 {
		return nil
	}
	out := make([]ExcludedResponse, len(errs))
	for i, e := range errs {
		out[i] = ExcludedResponse{EntityType: e.EntityType, EntityID: e.EntityID, Reason: e.Reason}
	}
	return out
}

// NewGroupBalancesResponse converts computed balances to their API shape
func NewGroupBalancesResponse(b *ledger.GroupBalances) *GroupBalancesResponse {
	members := make([]MemberBalanceResponse, len(b.Members))
	for i, m := range b.Members {
		members[i] = MemberBalanceResponse{
			MemberID:    m.MemberID,
			Paid:        format(m.Paid),
			Owed:        format(m.Owed),
			Settlements: format(m.Settlements),
			Net:         format(m.Net),
		}
	}
	return &GroupBalancesResponse{
		GroupID:  b.GroupID,
		Currency: b.Currency,
		Members:  members,
		Excluded: excluded(b.Excluded),
	}
}

// NewTransfersResponse converts suggested transfers to their API shape
func NewTransfersResponse(transfers []ledger.Transfer) []TransferResponse {
	out := make([]TransferResponse, len(transfers))
	for i, t := range transfers {
		out[i] = TransferResponse{From: t.From, To: t.To, Amount: format(t.Amount), Currency: t.Amount.Currency}
	}
	return out
}

// NewMemberSummaryResponse converts a member summary to its API shape
func NewMemberSummaryResponse(s *ledger.MemberSummary) *MemberSummaryResponse {
	groups := make([]GroupSummaryResponse, len(s.Groups))
	for i, g := range s.Groups {
		groups[i] = GroupSummaryResponse{
			GroupID:   g.GroupID,
			GroupName: g.GroupName,
			Currency:  g.Balance.Currency,
			Balance:   format(g.Balance),
			Excluded:  excluded(g.Excluded),
		}
	}
	totals := make([]TotalResponse, len(s.Totals))
	for i, t := range s.Totals {
		totals[i] = TotalResponse{Currency: t.Currency, Amount: format(t)}
	}
	return &MemberSummaryResponse{MemberID: s.MemberID, Groups: groups, Totals: totals}
}
