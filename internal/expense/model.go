package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// DefaultCategory is used when an expense is saved without one
const DefaultCategory = "General"

// Expense represents an expense in the system
type Expense struct {
	ID          string               `json:"id"`
	GroupID     string               `json:"group_id"`
	Description string               `json:"description"`
	Notes       *string              `json:"notes,omitempty"`
	Category    string               `json:"category"`
	Amount      decimal.Decimal      `json:"amount"`
	Currency    string               `json:"currency"`
	PayerID     string               `json:"payer_id"`
	SplitType   split.SplitType      `json:"split_type"`
	Status      ledger.ExpenseStatus `json:"status"`
	ExpenseDate time.Time            `json:"expense_date"`
	SettledAt   *time.Time           `json:"settled_at,omitempty"`
	CreatedBy   string               `json:"created_by"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`

	// Populated via JOIN
	PayerName string `json:"payer_name,omitempty"`
}

// Split is one participant's part of an expense: the parameter the split
// policy was given and the amount it computed
type Split struct {
	ExpenseID  string           `json:"expense_id"`
	MemberID   string           `json:"member_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Shares     *int64           `json:"shares,omitempty"`
	OwedAmount decimal.Decimal  `json:"owed_amount"`

	// Populated via JOIN
	DisplayName string `json:"display_name,omitempty"`
}

// ExpenseWithSplits combines an expense with its calculated splits
type ExpenseWithSplits struct {
	Expense *Expense
	Splits  []*Split
}

// CategoryTotal is the amount spent in one category
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// Money returns the expense amount tagged with its currency
func (e *Expense) Money() money.Money {
	return money.New(e.Amount, e.Currency)
}

// Input returns the split policy parameters the split was created with
func (s *Split) Input() split.SplitInput {
	return split.SplitInput{
		MemberID:   s.MemberID,
		Amount:     s.Amount,
		Percentage: s.Percentage,
		Shares:     s.Shares,
	}
}

// Ledger converts the expense to the ledger engine's read-only view
func (e *ExpenseWithSplits) Ledger() ledger.Expense {
	participants := make([]split.SplitInput, len(e.Splits))
	shares := make(map[string]money.Money, len(e.Splits))
	for i, s := range e.Splits {
		participants[i] = s.Input()
		shares[s.MemberID] = money.New(s.OwedAmount, e.Expense.Currency)
	}
	return ledger.Expense{
		ID:           e.Expense.ID,
		GroupID:      e.Expense.GroupID,
		Amount:       e.Expense.Money(),
		PayerID:      e.Expense.PayerID,
		SplitType:    e.Expense.SplitType,
		Participants: participants,
		Status:       e.Expense.Status,
		Shares:       shares,
	}
}

// transitions lists the allowed status changes
var transitions = map[ledger.ExpenseStatus][]ledger.ExpenseStatus{
	ledger.ExpenseStatusActive:  {ledger.ExpenseStatusSettled, ledger.ExpenseStatusDeleted},
	ledger.ExpenseStatusSettled: {ledger.ExpenseStatusActive, ledger.ExpenseStatusDeleted},
	ledger.ExpenseStatusDeleted: {ledger.ExpenseStatusActive},
}

// CanTransition reports whether an expense may move from one status to another
func CanTransition(from, to ledger.ExpenseStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
