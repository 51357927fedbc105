package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse("303.90", "INR")
	require.NoError(t, err)
	assert.Equal(t, int64(30390), m.Amount)
	assert.Equal(t, "INR", m.Currency)
}

func TestParse_RejectsSubMinorPrecision(t *testing.T) {
	_, err := Parse("10.005", "INR")
	require.ErrorIs(t, err, ErrFractionalMinorUnit)
}

func TestFromDecimal_Exact(t *testing.T) {
	m, err := FromDecimal(decimal.RequireFromString("38.45"), "INR")
	require.NoError(t, err)
	assert.Equal(t, int64(3845), m.Amount)
}

func TestString(t *testing.T) {
	assert.Equal(t, "303.90 INR", New(30390, "INR").String())
	assert.Equal(t, "0.05 INR", New(5, "INR").String())
	assert.Equal(t, "-1.00 INR", New(-100, "INR").String())
}

func TestAddSub(t *testing.T) {
	a := New(15000, "INR")
	b := New(7690, "INR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(22690), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(7310), diff.Amount)
}

func TestAdd_CurrencyMismatch(t *testing.T) {
	_, err := New(100, "INR").Add(New(100, "USD"))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = New(100, "INR").Sub(New(100, "USD"))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = New(100, "INR").Cmp(New(100, "USD"))
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMulInt_Exact(t *testing.T) {
	// 38.45 * 2 must be exactly 76.90 with no representation drift.
	assert.Equal(t, int64(7690), New(3845, "INR").MulInt(2).Amount)
}

// Summing a cart line by line must equal the product of unit price and
// quantity exactly, for amounts that are classic float troublemakers.
func TestSum_NoPrecisionLoss(t *testing.T) {
	unit := New(1, "INR") // 0.01
	var sum Money
	sum = Zero("INR")
	for range 1000 {
		s, err := sum.Add(unit)
		require.NoError(t, err)
		sum = s
	}
	assert.Equal(t, unit.MulInt(1000), sum)
	assert.Equal(t, int64(1000), sum.Amount)
}

func TestPercentBP(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		bp     int64
		want   int64
	}{
		{"18 percent of 100.50", 10050, 1800, 1809},
		{"half rounds up", 50, 100, 1}, // 1% of 0.50 = 0.005 -> 0.01
		{"zero rate", 10050, 0, 0},
		{"negative amount rounds away from zero", -50, 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.amount, "INR").PercentBP(tt.bp)
			assert.Equal(t, tt.want, got.Amount)
		})
	}
}

func TestCmp(t *testing.T) {
	lo := New(42010, "INR")
	hi := New(88190, "INR")

	c, err := lo.Cmp(hi)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = hi.Cmp(lo)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = lo.Cmp(lo)
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestDecimalRoundTrip(t *testing.T) {
	m := New(30390, "INR")
	back, err := FromDecimal(m.Decimal(), "INR")
	require.NoError(t, err)
	assert.True(t, m.Equal(back))
}
