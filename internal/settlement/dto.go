package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// CreateSettlementRequest represents the request to record a payment
type CreateSettlementRequest struct {
	GroupID string `json:"group_id" validate:"required"`
	// PayerID defaults to the acting member
	PayerID string          `json:"payer_id,omitempty"`
	PayeeID string          `json:"payee_id" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
	// Currency defaults to the group's currency and must match it when given
	Currency string `json:"currency,omitempty" validate:"omitempty,currency"`
	// Status defaults to COMPLETED; PENDING records a payment still to be confirmed
	Status     ledger.SettlementStatus `json:"status,omitempty" validate:"omitempty,oneof=PENDING COMPLETED"`
	Notes      *string                 `json:"notes,omitempty" validate:"omitempty,max=500"`
	ExpenseIDs []string                `json:"expense_ids,omitempty" validate:"omitempty,dive,required"`
}

// ListFilter narrows a group's settlement listing
type ListFilter struct {
	// MemberID keeps settlements the member paid or received
	MemberID string
	Status   ledger.SettlementStatus
}

// SettlementResponse represents the response for a settlement
type SettlementResponse struct {
	ID          string                  `json:"id"`
	GroupID     string                  `json:"group_id"`
	PayerID     string                  `json:"payer_id"`
	PayerName   string                  `json:"payer_name,omitempty"`
	PayeeID     string                  `json:"payee_id"`
	PayeeName   string                  `json:"payee_name,omitempty"`
	Amount      string                  `json:"amount"`
	Currency    string                  `json:"currency"`
	Status      ledger.SettlementStatus `json:"status"`
	Notes       *string                 `json:"notes,omitempty"`
	ExpenseIDs  []string                `json:"expense_ids,omitempty"`
	CreatedBy   string                  `json:"created_by"`
	CreatedAt   string                  `json:"created_at"`
	UpdatedAt   string                  `json:"updated_at"`
	CompletedAt *string                 `json:"completed_at,omitempty"`
}

// ToResponse converts a Settlement model to a SettlementResponse DTO
func (s *Settlement) ToResponse() *SettlementResponse {
	resp := &SettlementResponse{
		ID:         s.ID,
		GroupID:    s.GroupID,
		PayerID:    s.PayerID,
		PayerName:  s.PayerName,
		PayeeID:    s.PayeeID,
		PayeeName:  s.PayeeName,
		Amount:     s.Amount.StringFixed(money.Exponent(s.Currency)),
		Currency:   s.Currency,
		Status:     s.Status,
		Notes:      s.Notes,
		ExpenseIDs: s.ExpenseIDs,
		CreatedBy:  s.CreatedBy,
		CreatedAt:  s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if s.CompletedAt != nil {
		completed := s.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}
