package split

import (
	"github.com/fkhayef/expensesplitter/internal/money"
)

// =============================================================================
// EXACT AMOUNTS SPLIT STRATEGY
// Each participant owes a specific exact amount (must sum to total)
// =============================================================================

// ExactStrategy implements the Strategy interface for exact amount splits
type ExactStrategy struct{}

// Type returns the split type identifier
func (s *ExactStrategy) Type() SplitType {
	return SplitTypeExact
}

// Validate checks if the inputs are valid for an exact split
func (s *ExactStrategy) Validate(total money.Money, participants []SplitInput) error {
	_, err := s.units(total, participants)
	return err
}

// Calculate returns the exact amounts specified for each participant
func (s *ExactStrategy) Calculate(total money.Money, participants []SplitInput) (Allocation, error) {
	units, err := s.units(total, participants)
	if err != nil {
		return nil, err
	}

	out := make(Allocation, len(participants))
	for i, p := range participants {
		out[p.MemberID] = money.FromMinor(units[i], total.Currency)
	}
	return out, nil
}

// units converts every supplied amount to minor units. No tolerance is
// applied: the amounts must add up to the total exactly.
func (s *ExactStrategy) units(total money.Money, participants []SplitInput) ([]int64, error) {
	totalUnits, err := validateCommon(total, participants)
	if err != nil {
		return nil, err
	}

	units := make([]int64, len(participants))
	var sum int64
	for i, p := range participants {
		if p.Amount == nil {
			return nil, invalid(ErrMissingExactAmount, "%s", p.MemberID)
		}
		if p.Amount.Sign() < 0 {
			return nil, invalid(ErrNegativeValue, "%s: %s", p.MemberID, p.Amount)
		}
		u, err := money.New(*p.Amount, total.Currency).MinorUnits()
		if err != nil {
			return nil, amountError(err, "%s: %s", p.MemberID, p.Amount)
		}
		if u > totalUnits-sum {
			return nil, invalid(ErrInvalidExactAmounts, "amounts exceed the total %s",
				money.FromMinor(totalUnits, total.Currency))
		}
		units[i] = u
		sum += u
	}

	if sum != totalUnits {
		return nil, invalid(ErrInvalidExactAmounts, "got %s, want %s",
			money.FromMinor(sum, total.Currency), money.FromMinor(totalUnits, total.Currency))
	}
	return units, nil
}
