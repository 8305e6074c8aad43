package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
		wantErr  error
	}{
		{name: "two decimals", amount: "33.34", currency: "INR", want: 3334},
		{name: "whole amount", amount: "100", currency: "USD", want: 10000},
		{name: "zero exponent currency", amount: "1500", currency: "JPY", want: 1500},
		{name: "three decimal currency", amount: "1.005", currency: "KWD", want: 1005},
		{name: "too precise", amount: "10.001", currency: "INR", wantErr: ErrTooPrecise},
		{name: "fractional yen", amount: "10.5", currency: "JPY", wantErr: ErrTooPrecise},
		{name: "largest int64", amount: "92233720368547758.07", currency: "INR", want: 9223372036854775807},
		{name: "smallest int64", amount: "-92233720368547758.08", currency: "INR", want: -9223372036854775808},
		{name: "one unit past int64", amount: "92233720368547758.08", currency: "INR", wantErr: ErrAmountTooLarge},
		{name: "far past int64", amount: "100000000000000000000.00", currency: "INR", wantErr: ErrAmountTooLarge},
		{name: "negative past int64", amount: "-92233720368547758.09", currency: "INR", wantErr: ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MustParse(tt.amount, tt.currency).MinorUnits()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromMinorRoundTrip(t *testing.T) {
	m := FromMinor(3334, "inr")
	assert.Equal(t, "INR", m.Currency)
	assert.Equal(t, "33.34 INR", m.String())

	units, err := m.MinorUnits()
	require.NoError(t, err)
	assert.Equal(t, int64(3334), units)
}

func TestArithmetic(t *testing.T) {
	a := MustParse("50.00", "INR")
	b := MustParse("25.50", "INR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Equal(MustParse("75.50", "INR")))

	diff, err := b.Sub(a)
	require.NoError(t, err)
	assert.Equal(t, -1, diff.Sign())
	assert.True(t, diff.Neg().Equal(MustParse("24.50", "INR")))

	_, err = a.Add(MustParse("1", "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestNormalizeCurrency(t *testing.T) {
	c, err := NormalizeCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", c)

	for _, bad := range []string{"", "US", "USDT", "U$D"} {
		_, err := NormalizeCurrency(bad)
		assert.ErrorIs(t, err, ErrInvalidCurrency, bad)
	}
}
