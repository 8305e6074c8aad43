package split

import (
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/expensesplitter/internal/money"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func shares(n int64) *int64 {
	return &n
}

func members(ids ...string) []SplitInput {
	out := make([]SplitInput, len(ids))
	for i, id := range ids {
		out[i] = SplitInput{MemberID: id}
	}
	return out
}

func assertAllocation(t *testing.T, got Allocation, want map[string]string) {
	t.Helper()
	require.Len(t, got, len(want))
	for id, amount := range want {
		m, ok := got[id]
		require.True(t, ok, "missing member %s", id)
		assert.True(t, m.Amount.Equal(decimal.RequireFromString(amount)),
			"%s owes %s, want %s", id, m.Amount, amount)
	}
}

func TestCalculate(t *testing.T) {
	factory := NewSplitStrategyFactory()

	tests := []struct {
		name         string
		splitType    SplitType
		total        string
		participants []SplitInput
		want         map[string]string
		wantErr      error
	}{
		{
			name:         "equal split between two",
			splitType:    SplitTypeEqual,
			total:        "100.00",
			participants: members("A", "B"),
			want:         map[string]string{"A": "50.00", "B": "50.00"},
		},
		{
			name:         "equal split remainder goes to first member id",
			splitType:    SplitTypeEqual,
			total:        "100.00",
			participants: members("C", "B", "A"),
			want:         map[string]string{"A": "33.34", "B": "33.33", "C": "33.33"},
		},
		{
			name:         "equal split two leftover cents",
			splitType:    SplitTypeEqual,
			total:        "0.05",
			participants: members("b", "a", "c"),
			want:         map[string]string{"a": "0.02", "b": "0.02", "c": "0.01"},
		},
		{
			name:      "shares one to two",
			splitType: SplitTypeShares,
			total:     "90.00",
			participants: []SplitInput{
				{MemberID: "A", Shares: shares(1)},
				{MemberID: "B", Shares: shares(2)},
			},
			want: map[string]string{"A": "30.00", "B": "60.00"},
		},
		{
			name:      "shares with zero weight member",
			splitType: SplitTypeShares,
			total:     "10.00",
			participants: []SplitInput{
				{MemberID: "A", Shares: shares(1)},
				{MemberID: "B", Shares: shares(1)},
				{MemberID: "C", Shares: shares(1)},
				{MemberID: "D", Shares: shares(0)},
			},
			want: map[string]string{"A": "3.34", "B": "3.33", "C": "3.33", "D": "0.00"},
		},
		{
			name:      "percentages 33 33 34",
			splitType: SplitTypePercentages,
			total:     "100.00",
			participants: []SplitInput{
				{MemberID: "A", Percentage: dec("33")},
				{MemberID: "B", Percentage: dec("33")},
				{MemberID: "C", Percentage: dec("34")},
			},
			want: map[string]string{"A": "33.00", "B": "33.00", "C": "34.00"},
		},
		{
			name:      "percentages largest remainder",
			splitType: SplitTypePercentages,
			total:     "10.00",
			participants: []SplitInput{
				{MemberID: "A", Percentage: dec("33.33")},
				{MemberID: "B", Percentage: dec("33.33")},
				{MemberID: "C", Percentage: dec("33.34")},
			},
			want: map[string]string{"A": "3.33", "B": "3.33", "C": "3.34"},
		},
		{
			name:      "exact amounts",
			splitType: SplitTypeExact,
			total:     "100.00",
			participants: []SplitInput{
				{MemberID: "A", Amount: dec("70.00")},
				{MemberID: "B", Amount: dec("30.00")},
			},
			want: map[string]string{"A": "70.00", "B": "30.00"},
		},
		{
			name:      "exact amounts short by a cent",
			splitType: SplitTypeExact,
			total:     "100.00",
			participants: []SplitInput{
				{MemberID: "A", Amount: dec("50.00")},
				{MemberID: "B", Amount: dec("49.99")},
			},
			wantErr: ErrInvalidExactAmounts,
		},
		{
			name:      "exact amount missing",
			splitType: SplitTypeExact,
			total:     "100.00",
			participants: []SplitInput{
				{MemberID: "A", Amount: dec("100.00")},
				{MemberID: "B"},
			},
			wantErr: ErrMissingExactAmount,
		},
		{
			name:      "exact amount negative",
			splitType: SplitTypeExact,
			total:     "100.00",
			participants: []SplitInput{
				{MemberID: "A", Amount: dec("110.00")},
				{MemberID: "B", Amount: dec("-10.00")},
			},
			wantErr: ErrNegativeValue,
		},
		{
			name:      "percentages not summing to 100",
			splitType: SplitTypePercentages,
			total:     "100.00",
			participants: []SplitInput{
				{MemberID: "A", Percentage: dec("50")},
				{MemberID: "B", Percentage: dec("40")},
			},
			wantErr: ErrInvalidPercentages,
		},
		{
			name:      "percentage above 100",
			splitType: SplitTypePercentages,
			total:     "100.00",
			participants: []SplitInput{
				{MemberID: "A", Percentage: dec("150")},
				{MemberID: "B", Percentage: dec("-50")},
			},
			wantErr: ErrPercentageOutOfRange,
		},
		{
			name:      "all shares zero",
			splitType: SplitTypeShares,
			total:     "10.00",
			participants: []SplitInput{
				{MemberID: "A", Shares: shares(0)},
			},
			wantErr: ErrZeroShares,
		},
		{
			name:         "empty participants",
			splitType:    SplitTypeEqual,
			total:        "10.00",
			participants: nil,
			wantErr:      ErrNoParticipants,
		},
		{
			name:         "zero amount",
			splitType:    SplitTypeEqual,
			total:        "0",
			participants: members("A"),
			wantErr:      ErrNonPositiveAmount,
		},
		{
			name:         "negative amount",
			splitType:    SplitTypeEqual,
			total:        "-5.00",
			participants: members("A"),
			wantErr:      ErrNonPositiveAmount,
		},
		{
			name:         "duplicate participant",
			splitType:    SplitTypeEqual,
			total:        "5.00",
			participants: members("A", "A"),
			wantErr:      ErrDuplicateParticipant,
		},
		{
			name:         "sub-cent total",
			splitType:    SplitTypeEqual,
			total:        "5.001",
			participants: members("A"),
			wantErr:      ErrTooPrecise,
		},
		{
			name:         "largest representable total",
			splitType:    SplitTypeEqual,
			total:        "92233720368547758.07",
			participants: members("A", "B"),
			want:         map[string]string{"A": "46116860184273879.04", "B": "46116860184273879.03"},
		},
		{
			name:         "total beyond minor-unit range",
			splitType:    SplitTypeEqual,
			total:        "100000000000000000000.00",
			participants: members("A", "B"),
			wantErr:      ErrAmountTooLarge,
		},
		{
			name:      "exact amount beyond minor-unit range",
			splitType: SplitTypeExact,
			total:     "10.00",
			participants: []SplitInput{
				{MemberID: "A", Amount: dec("100000000000000000000.00")},
			},
			wantErr: ErrAmountTooLarge,
		},
		{
			name:      "exact amounts that wrap around to the total",
			splitType: SplitTypeExact,
			total:     "10.00",
			participants: []SplitInput{
				{MemberID: "A", Amount: dec("92233720368547758.07")},
				{MemberID: "B", Amount: dec("92233720368547758.07")},
				{MemberID: "C", Amount: dec("10.02")},
			},
			wantErr: ErrInvalidExactAmounts,
		},
		{
			name:      "share counts whose sum exceeds int64",
			splitType: SplitTypeShares,
			total:     "10.00",
			participants: []SplitInput{
				{MemberID: "A", Shares: shares(math.MaxInt64)},
				{MemberID: "B", Shares: shares(math.MaxInt64)},
				{MemberID: "C", Shares: shares(2)},
			},
			want: map[string]string{"A": "5.00", "B": "5.00", "C": "0.00"},
		},
		{
			name:         "unknown type",
			splitType:    SplitType("HALVES"),
			total:        "5.00",
			participants: members("A"),
			wantErr:      ErrUnknownSplitType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := factory.Calculate(tt.splitType, money.MustParse(tt.total, "INR"), tt.participants)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidationError(err), "expected *ValidationError, got %T", err)
				return
			}
			require.NoError(t, err)
			assertAllocation(t, got, tt.want)
			assert.True(t, got.Sum("INR").Equal(money.MustParse(tt.total, "INR")))
		})
	}
}

func TestAllocationSumsExactly(t *testing.T) {
	factory := NewSplitStrategyFactory()
	ids := []string{"m01", "m02", "m03", "m04", "m05", "m06", "m07"}

	for n := 1; n <= len(ids); n++ {
		for _, total := range []string{"0.01", "0.07", "1.00", "10.01", "99.99", "100.00", "12345.67"} {
			amount := money.MustParse(total, "USD")

			equal := members(ids[:n]...)

			weighted := make([]SplitInput, n)
			for i := 0; i < n; i++ {
				weighted[i] = SplitInput{MemberID: ids[i], Shares: shares(int64(i + 1))}
			}

			pct := make([]SplitInput, n)
			for i := 0; i < n; i++ {
				// 100/n rounded, the last member absorbs the difference
				p := decimal.NewFromInt(100).DivRound(decimal.NewFromInt(int64(n)), 2)
				if i == n-1 {
					p = decimal.NewFromInt(100).Sub(p.Mul(decimal.NewFromInt(int64(n - 1))))
				}
				pct[i] = SplitInput{MemberID: ids[i], Percentage: &p}
			}

			cases := map[SplitType][]SplitInput{
				SplitTypeEqual:       equal,
				SplitTypeShares:      weighted,
				SplitTypePercentages: pct,
			}
			for splitType, participants := range cases {
				t.Run(fmt.Sprintf("%s/%d/%s", splitType, n, total), func(t *testing.T) {
					got, err := factory.Calculate(splitType, amount, participants)
					require.NoError(t, err)
					assert.True(t, got.Sum("USD").Equal(amount), "sum %s != %s", got.Sum("USD"), amount)
					for id, m := range got {
						assert.GreaterOrEqual(t, m.Sign(), 0, id)
					}
				})
			}
		}
	}
}

func TestEqualSplitIsDeterministic(t *testing.T) {
	strategy := &EqualStrategy{}
	total := money.MustParse("100.00", "INR")

	first, err := strategy.Calculate(total, members("z", "y", "x"))
	require.NoError(t, err)
	second, err := strategy.Calculate(total, members("x", "z", "y"))
	require.NoError(t, err)

	for id := range first {
		assert.True(t, first[id].Equal(second[id]), id)
	}
	assert.True(t, first["x"].Equal(money.MustParse("33.34", "INR")))
}
