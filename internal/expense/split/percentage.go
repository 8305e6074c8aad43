package split

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/money"
)

// =============================================================================
// PERCENTAGE SPLIT STRATEGY
// Divides the expense based on specified percentages for each participant
// =============================================================================

var (
	hundred             = decimal.NewFromInt(100)
	percentageTolerance = decimal.RequireFromString("0.01")
)

// PercentageStrategy implements the Strategy interface for percentage-based splits
type PercentageStrategy struct{}

// Type returns the split type identifier
func (s *PercentageStrategy) Type() SplitType {
	return SplitTypePercentages
}

// Validate checks if the inputs are valid for a percentage split
func (s *PercentageStrategy) Validate(total money.Money, participants []SplitInput) error {
	_, _, err := s.weights(total, participants)
	return err
}

// Calculate divides the total amount based on each participant's percentage.
// Rounding residue is distributed by largest remainder so the sum is exact.
func (s *PercentageStrategy) Calculate(total money.Money, participants []SplitInput) (Allocation, error) {
	units, weights, err := s.weights(total, participants)
	if err != nil {
		return nil, err
	}
	return allocate(units, participants, weights, total.Currency), nil
}

func (s *PercentageStrategy) weights(total money.Money, participants []SplitInput) (int64, []decimal.Decimal, error) {
	units, err := validateCommon(total, participants)
	if err != nil {
		return 0, nil, err
	}

	weights := make([]decimal.Decimal, len(participants))
	sum := decimal.Zero
	for i, p := range participants {
		if p.Percentage == nil {
			return 0, nil, invalid(ErrMissingPercentage, "%s", p.MemberID)
		}
		pct := *p.Percentage
		if pct.Sign() < 0 {
			return 0, nil, invalid(ErrNegativeValue, "%s: %s", p.MemberID, pct)
		}
		if pct.GreaterThan(hundred) {
			return 0, nil, invalid(ErrPercentageOutOfRange, "%s: %s", p.MemberID, pct)
		}
		weights[i] = pct
		sum = sum.Add(pct)
	}

	// Allow for small rounding in user input (99.99 to 100.01)
	if sum.Sub(hundred).Abs().GreaterThan(percentageTolerance) {
		return 0, nil, invalid(ErrInvalidPercentages, "got %s", sum)
	}
	return units, weights, nil
}
