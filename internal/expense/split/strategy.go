package split

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/expensesplitter/internal/money"
)

// SplitType defines the type of split strategy
type SplitType string

const (
	SplitTypeEqual       SplitType = "EQUAL"
	SplitTypeExact       SplitType = "EXACT_AMOUNTS"
	SplitTypePercentages SplitType = "PERCENTAGES"
	SplitTypeShares      SplitType = "SHARES"
)

// Valid reports whether t names a known strategy
func (t SplitType) Valid() bool {
	switch t {
	case SplitTypeEqual, SplitTypeExact, SplitTypePercentages, SplitTypeShares:
		return true
	}
	return false
}

// SplitInput represents a participant in a split with the parameter its strategy needs
type SplitInput struct {
	MemberID   string           `json:"member_id" validate:"required"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`     // For EXACT_AMOUNTS split
	Percentage *decimal.Decimal `json:"percentage,omitempty"` // For PERCENTAGES split
	Shares     *int64           `json:"shares,omitempty"`     // For SHARES split
}

// Allocation maps a member ID to the amount that member owes
type Allocation map[string]money.Money

// Sum adds up every owed amount
func (a Allocation) Sum(currency string) money.Money {
	total := decimal.Zero
	for _, m := range a {
		total = total.Add(m.Amount)
	}
	return money.New(total, currency)
}

// Strategy is the interface that all split strategies must implement
type Strategy interface {
	// Calculate computes the owed amount of every participant, payer included.
	// The amounts always sum exactly to total.
	Calculate(total money.Money, participants []SplitInput) (Allocation, error)

	// Type returns the type identifier for this strategy
	Type() SplitType

	// Validate checks if the inputs are valid for this strategy
	Validate(total money.Money, participants []SplitInput) error
}

// Factory creates split strategies based on the requested type
type Factory struct{}

// NewSplitStrategyFactory creates a new factory instance
func NewSplitStrategyFactory() *Factory {
	return &Factory{}
}

// Create returns the appropriate strategy implementation based on the type
func (f *Factory) Create(splitType SplitType) (Strategy, error) {
	switch splitType {
	case SplitTypeEqual:
		return &EqualStrategy{}, nil
	case SplitTypeExact:
		return &ExactStrategy{}, nil
	case SplitTypePercentages:
		return &PercentageStrategy{}, nil
	case SplitTypeShares:
		return &SharesStrategy{}, nil
	default:
		return nil, invalid(ErrUnknownSplitType, "%q", splitType)
	}
}

// CreateFromString creates a strategy from a string type (useful for API requests)
func (f *Factory) CreateFromString(splitType string) (Strategy, error) {
	return f.Create(SplitType(splitType))
}

// Calculate picks the strategy for splitType and runs it
func (f *Factory) Calculate(splitType SplitType, total money.Money, participants []SplitInput) (Allocation, error) {
	strategy, err := f.Create(splitType)
	if err != nil {
		return nil, err
	}
	return strategy.Calculate(total, participants)
}

var (
	ErrNoParticipants       = errors.New("at least one participant is required")
	ErrEmptyMemberID        = errors.New("participant member id is required")
	ErrDuplicateParticipant = errors.New("participant listed more than once")
	ErrNonPositiveAmount    = errors.New("expense amount must be positive")
	ErrNegativeValue        = errors.New("split values cannot be negative")
	ErrTooPrecise           = errors.New("amount is finer than the currency's minor unit")
	ErrAmountTooLarge       = money.ErrAmountTooLarge
	ErrInvalidExactAmounts  = errors.New("exact amounts must sum to total amount")
	ErrMissingExactAmount   = errors.New("exact amount required for all participants")
	ErrInvalidPercentages   = errors.New("percentages must sum to 100")
	ErrMissingPercentage    = errors.New("percentage value required for all participants")
	ErrPercentageOutOfRange = errors.New("percentage must be between 0 and 100")
	ErrMissingShares        = errors.New("share count required for all participants")
	ErrZeroShares           = errors.New("share counts must not all be zero")
	ErrUnknownSplitType     = errors.New("unknown split type")
)

// ValidationError reports split input that cannot be reconciled with the expense total.
// It wraps one of the package's sentinel errors.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err carries a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(err error, format string, args ...any) error {
	return &ValidationError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// amountError turns a failed minor-unit conversion into a ValidationError
func amountError(err error, format string, args ...any) error {
	if errors.Is(err, money.ErrAmountTooLarge) {
		return invalid(ErrAmountTooLarge, format, args...)
	}
	return invalid(ErrTooPrecise, format, args...)
}

// ParticipantIDs returns the member ids of the inputs in input order
func ParticipantIDs(participants []SplitInput) []string {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.MemberID
	}
	return ids
}

// validateCommon checks the rules shared by every strategy and returns the
// total in minor units.
func validateCommon(total money.Money, participants []SplitInput) (int64, error) {
	if len(participants) == 0 {
		return 0, invalid(ErrNoParticipants, "")
	}
	if total.Sign() <= 0 {
		return 0, invalid(ErrNonPositiveAmount, "%s", total)
	}
	units, err := total.MinorUnits()
	if err != nil {
		return 0, amountError(err, "%s", total)
	}

	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p.MemberID == "" {
			return 0, invalid(ErrEmptyMemberID, "")
		}
		if _, dup := seen[p.MemberID]; dup {
			return 0, invalid(ErrDuplicateParticipant, "%s", p.MemberID)
		}
		seen[p.MemberID] = struct{}{}
	}
	return units, nil
}

// allocate divides totalUnits proportionally to weights using the largest
// remainder method. Every participant first gets floor(total*w/Σw); the units
// left over go one at a time to the largest remainders, ties broken by
// ascending member id, so the result always sums to totalUnits.
func allocate(totalUnits int64, participants []SplitInput, weights []decimal.Decimal, currency string) Allocation {
	sumWeights := decimal.Zero
	for _, w := range weights {
		sumWeights = sumWeights.Add(w)
	}

	total := decimal.NewFromInt(totalUnits)
	units := make([]int64, len(participants))
	remainders := make([]decimal.Decimal, len(participants))
	var assigned int64
	for i, w := range weights {
		q, r := total.Mul(w).QuoRem(sumWeights, 0)
		units[i] = q.IntPart()
		remainders[i] = r
		assigned += units[i]
	}

	order := make([]int, len(participants))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := remainders[order[a]], remainders[order[b]]
		if c := ra.Cmp(rb); c != 0 {
			return c > 0
		}
		return participants[order[a]].MemberID < participants[order[b]].MemberID
	})

	for left := totalUnits - assigned; left > 0; left-- {
		units[order[0]]++
		order = order[1:]
	}

	out := make(Allocation, len(participants))
	for i, p := range participants {
		out[p.MemberID] = money.FromMinor(units[i], currency)
	}
	return out
}
