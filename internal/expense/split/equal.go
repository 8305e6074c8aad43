package split

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/money"
)

// =============================================================================
// EQUAL SPLIT STRATEGY
// Divides the expense equally among all participants
// =============================================================================

// EqualStrategy implements the Strategy interface for equal splits
type EqualStrategy struct{}

// Type returns the split type identifier
func (s *EqualStrategy) Type() SplitType {
	return SplitTypeEqual
}

// Validate checks if the inputs are valid for an equal split
func (s *EqualStrategy) Validate(total money.Money, participants []SplitInput) error {
	_, err := validateCommon(total, participants)
	return err
}

// Calculate gives everyone total/N. The remainder is handed out one minor
// unit at a time to the first participants in ascending member id order.
func (s *EqualStrategy) Calculate(total money.Money, participants []SplitInput) (Allocation, error) {
	units, err := validateCommon(total, participants)
	if err != nil {
		return nil, err
	}

	weights := make([]decimal.Decimal, len(participants))
	for i := range weights {
		weights[i] = decimal.NewFromInt(1)
	}
	return allocate(units, participants, weights, total.Currency), nil
}
