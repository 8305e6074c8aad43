package ledger

import (
	"sort"

	"github.com/fkhayef/expensesplitter/internal/money"
)

// Transfer is a suggested payment that moves both members toward zero
type Transfer struct {
	From   string      `json:"from"` // member who owes
	To     string      `json:"to"`   // member who is owed
	Amount money.Money `json:"amount"`
}

type position struct {
	id    string
	units int64
}

// Debts turns net balances into a short list of transfers that settles the
// group: the largest debtor pays the largest creditor until one of them
// reaches zero, then the next pair is matched. Ties are broken by member id
// so the result is stable.
func Debts(g *GroupBalances) []Transfer {
	var creditors, debtors []position
	for _, m := range g.Members {
		units, err := m.Net.MinorUnits()
		if err != nil {
			continue
		}
		switch {
		case units > 0:
			creditors = append(creditors, position{m.MemberID, units})
		case units < 0:
			debtors = append(debtors, position{m.MemberID, -units})
		}
	}
	byLargest := func(p []position) func(i, j int) bool {
		return func(i, j int) bool {
			if p[i].units != p[j].units {
				return p[i].units > p[j].units
			}
			return p[i].id < p[j].id
		}
	}
	sort.Slice(creditors, byLargest(creditors))
	sort.Slice(debtors, byLargest(debtors))

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := min(debtors[i].units, creditors[j].units)
		transfers = append(transfers, Transfer{
			From:   debtors[i].id,
			To:     creditors[j].id,
			Amount: money.FromMinor(amount, g.Currency),
		})
		debtors[i].units -= amount
		creditors[j].units -= amount
		if debtors[i].units == 0 {
			i++
		}
		if creditors[j].units == 0 {
			j++
		}
	}
	return transfers
}
