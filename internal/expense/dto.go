package expense

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/expense/split"
	"github.com/fkhayef/expensesplitter/internal/ledger"
	"github.com/fkhayef/expensesplitter/internal/money"
)

// CreateExpenseRequest represents the request to create an expense
type CreateExpenseRequest struct {
	GroupID     string          `json:"group_id" validate:"required"`
	Description string          `json:"description" validate:"required,min=1,max=255"`
	Notes       *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Category    string          `json:"category,omitempty" validate:"omitempty,max=50"`
	Amount      decimal.Decimal `json:"amount"`
	// Currency defaults to the group's currency and must match it when given
	Currency string `json:"currency,omitempty" validate:"omitempty,currency"`
	// PayerID defaults to the acting member
	PayerID      string             `json:"payer_id,omitempty"`
	SplitType    split.SplitType    `json:"split_type" validate:"required,oneof=EQUAL EXACT_AMOUNTS PERCENTAGES SHARES"`
	Participants []split.SplitInput `json:"participants" validate:"required,min=1,dive"`
	ExpenseDate  *time.Time         `json:"expense_date,omitempty"`
}

// UpdateExpenseRequest represents the request to update an expense. Changing
// the amount, split type or participants recomputes every share.
type UpdateExpenseRequest struct {
	Description  *string            `json:"description,omitempty" validate:"omitempty,min=1,max=255"`
	Notes        *string            `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Category     *string            `json:"category,omitempty" validate:"omitempty,min=1,max=50"`
	ExpenseDate  *time.Time         `json:"expense_date,omitempty"`
	Amount       *decimal.Decimal   `json:"amount,omitempty"`
	PayerID      *string            `json:"payer_id,omitempty" validate:"omitempty,min=1"`
	SplitType    *split.SplitType   `json:"split_type,omitempty" validate:"omitempty,oneof=EQUAL EXACT_AMOUNTS PERCENTAGES SHARES"`
	Participants []split.SplitInput `json:"participants,omitempty" validate:"omitempty,min=1,dive"`
}

// Resplits reports whether the update touches the split
func (r *UpdateExpenseRequest) Resplits() bool {
	return r.Amount != nil || r.PayerID != nil || r.SplitType != nil || r.Participants != nil
}

// PreviewRequest asks for a split without saving anything
type PreviewRequest struct {
	Amount       decimal.Decimal    `json:"amount"`
	Currency     string             `json:"currency" validate:"required,currency"`
	SplitType    split.SplitType    `json:"split_type" validate:"required,oneof=EQUAL EXACT_AMOUNTS PERCENTAGES SHARES"`
	Participants []split.SplitInput `json:"participants" validate:"required,min=1,dive"`
}

// ListFilter narrows a group's expense listing
type ListFilter struct {
	Status  ledger.ExpenseStatus
	PayerID string
	Search  string
}

// ExpenseResponse represents the response for an expense
type ExpenseResponse struct {
	ID          string               `json:"id"`
	GroupID     string               `json:"group_id"`
	Description string               `json:"description"`
	Notes       *string              `json:"notes,omitempty"`
	Category    string               `json:"category"`
	Amount      string               `json:"amount"`
	Currency    string               `json:"currency"`
	PayerID     string               `json:"payer_id"`
	PayerName   string               `json:"payer_name,omitempty"`
	SplitType   split.SplitType      `json:"split_type"`
	Status      ledger.ExpenseStatus `json:"status"`
	ExpenseDate string               `json:"expense_date"`
	SettledAt   *string              `json:"settled_at,omitempty"`
	CreatedBy   string               `json:"created_by"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
	Splits      []*SplitResponse     `json:"splits,omitempty"`
}

// SplitResponse represents the response for a split
type SplitResponse struct {
	MemberID    string           `json:"member_id"`
	DisplayName string           `json:"display_name,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Percentage  *decimal.Decimal `json:"percentage,omitempty"`
	Shares      *int64           `json:"shares,omitempty"`
	OwedAmount  string           `json:"owed_amount"`
}

// PreviewResponse lists what every participant would owe
type PreviewResponse struct {
	Currency string            `json:"currency"`
	Shares   map[string]string `json:"shares"`
}

// ToResponse converts an Expense model to an ExpenseResponse DTO
func (e *Expense) ToResponse() *ExpenseResponse {
	resp := &ExpenseResponse{
		ID:          e.ID,
		GroupID:     e.GroupID,
		Description: e.Description,
		Notes:       e.Notes,
		Category:    e.Category,
		Amount:      e.Amount.StringFixed(money.Exponent(e.Currency)),
		Currency:    e.Currency,
		PayerID:     e.PayerID,
		PayerName:   e.PayerName,
		SplitType:   e.SplitType,
		Status:      e.Status,
		ExpenseDate: e.ExpenseDate.UTC().Format(time.RFC3339),
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if e.SettledAt != nil {
		settled := e.SettledAt.UTC().Format(time.RFC3339)
		resp.SettledAt = &settled
	}
	return resp
}

// ToResponse converts an expense and its splits to one DTO
func (e *ExpenseWithSplits) ToResponse() *ExpenseResponse {
	resp := e.Expense.ToResponse()
	resp.Splits = make([]*SplitResponse, len(e.Splits))
	for i, s := range e.Splits {
		resp.Splits[i] = s.ToResponse(e.Expense.Currency)
	}
	return resp
}

// ToResponse converts a Split model to a SplitResponse DTO
func (s *Split) ToResponse(currency string) *SplitResponse {
	return &SplitResponse{
		MemberID:    s.MemberID,
		DisplayName: s.DisplayName,
		Amount:      s.Amount,
		Percentage:  s.Percentage,
		Shares:      s.Shares,
		OwedAmount:  s.OwedAmount.StringFixed(money.Exponent(currency)),
	}
}

// CategoryTotalResponse is one row of a category breakdown
type CategoryTotalResponse struct {
	Category string `json:"category"`
	Total    string `json:"total"`
	Count    int    `json:"count"`
}

// ToResponse converts a category total to its wire form
func (c *CategoryTotal) ToResponse(currency string) *CategoryTotalResponse {
	return &CategoryTotalResponse{
		Category: c.Category,
		Total:    c.Total.StringFixed(money.Exponent(currency)),
		Count:    c.Count,
	}
}
