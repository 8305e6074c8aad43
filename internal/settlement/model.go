package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// Settlement represents a direct payment from one group member to another
type Settlement struct {
	ID          string                  `json:"id"`
	GroupID     string                  `json:"group_id"`
	PayerID     string                  `json:"payer_id"` // Who sends the money
	PayeeID     string                  `json:"payee_id"` // Who receives it
	Amount      decimal.Decimal         `json:"amount"`
	Currency    string                  `json:"currency"`
	Status      ledger.SettlementStatus `json:"status"`
	Notes       *string                 `json:"notes,omitempty"`
	CreatedBy   string                  `json:"created_by"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`

	// Expenses this payment was made for, if any
	ExpenseIDs []string `json:"expense_ids,omitempty"`

	// Populated via JOIN
	PayerName string `json:"payer_name,omitempty"`
	PayeeName string `json:"payee_name,omitempty"`
}

// Money returns the settlement amount tagged with its currency
func (s *Settlement) Money() money.Money {
	return money.New(s.Amount, s.Currency)
}

// Ledger converts the settlement to the ledger engine's read-only view
func (s *Settlement) Ledger() ledger.Settlement {
	return ledger.Settlement{
		ID:      s.ID,
		GroupID: s.GroupID,
		PayerID: s.PayerID,
		PayeeID: s.PayeeID,
		Amount:  s.Money(),
		Status:  s.Status,
	}
}

// IsParty reports whether memberID sent or received the payment
func (s *Settlement) IsParty(memberID string) bool {
	return memberID == s.PayerID || memberID == s.PayeeID
}
