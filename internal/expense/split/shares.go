package split

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/money"
)

// =============================================================================
// SHARES SPLIT STRATEGY
// Divides the expense proportionally to integer share counts
// =============================================================================

// SharesStrategy implements the Strategy interface for share-based splits
type SharesStrategy struct{}

// Type returns the split type identifier
func (s *SharesStrategy) Type() SplitType {
	return SplitTypeShares
}

// Validate checks if the inputs are valid for a shares split
func (s *SharesStrategy) Validate(total money.Money, participants []SplitInput) error {
	_, _, err := s.weights(total, participants)
	return err
}

// Calculate gives each participant total*share/Σshares, with the leftover
// minor units distributed by largest remainder.
func (s *SharesStrategy) Calculate(total money.Money, participants []SplitInput) (Allocation, error) {
	units, weights, err := s.weights(total, participants)
	if err != nil {
		return nil, err
	}
	return allocate(units, participants, weights, total.Currency), nil
}

func (s *SharesStrategy) weights(total money.Money, participants []SplitInput) (int64, []decimal.Decimal, error) {
	units, err := validateCommon(total, participants)
	if err != nil {
		return 0, nil, err
	}

	weights := make([]decimal.Decimal, len(participants))
	positive := false
	for i, p := range participants {
		if p.Shares == nil {
			return 0, nil, invalid(ErrMissingShares, "%s", p.MemberID)
		}
		if *p.Shares < 0 {
			return 0, nil, invalid(ErrNegativeValue, "%s: %d", p.MemberID, *p.Shares)
		}
		weights[i] = decimal.NewFromInt(*p.Shares)
		positive = positive || *p.Shares > 0
	}
	if !positive {
		return 0, nil, invalid(ErrZeroShares, "")
	}
	return units, weights, nil
}
