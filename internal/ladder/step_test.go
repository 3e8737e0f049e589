package ladder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder-trading/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Five-segment table exercising both step types: multiplier above 50, then
// progressively tighter fixed steps down to a 0.10 floor.
func tieredTable(t *testing.T) Table {
	t.Helper()
	table, err := NewTable([]PriceCoordinate{
		{StartPrice: dec("50"), Quantity: 1, StepType: StepMultiplier},
		{StartPrice: dec("25"), Quantity: 1, StepType: StepFixed, FixedStep: dec("1")},
		{StartPrice: dec("15"), Quantity: 2, StepType: StepFixed, FixedStep: dec("0.5")},
		{StartPrice: dec("7"), Quantity: 4, StepType: StepFixed, FixedStep: dec("0.25")},
		{StartPrice: dec("0"), Quantity: 10, StepType: StepFixed, FixedStep: dec("0.1")},
	})
	require.NoError(t, err)
	return table
}

func flatTable(t *testing.T, quantity int64, step string) Table {
	t.Helper()
	table, err := NewTable([]PriceCoordinate{
		{StartPrice: decimal.Zero, Quantity: quantity, StepType: StepFixed, FixedStep: dec(step)},
	})
	require.NoError(t, err)
	return table
}

func TestNewTableRejectsBadCoordinates(t *testing.T) {
	cases := []struct {
		name   string
		coords []PriceCoordinate
	}{
		{"empty", nil},
		{"zero fixed step", []PriceCoordinate{
			{StartPrice: decimal.Zero, Quantity: 1, StepType: StepFixed, FixedStep: decimal.Zero},
		}},
		{"negative fixed step", []PriceCoordinate{
			{StartPrice: decimal.Zero, Quantity: 1, StepType: StepFixed, FixedStep: dec("-0.5")},
		}},
		{"multiplier on floor segment", []PriceCoordinate{
			{StartPrice: decimal.Zero, Quantity: 1, StepType: StepMultiplier},
		}},
		{"duplicate start price", []PriceCoordinate{
			{StartPrice: dec("10"), Quantity: 1, StepType: StepFixed, FixedStep: dec("1")},
			{StartPrice: dec("10"), Quantity: 2, StepType: StepFixed, FixedStep: dec("1")},
		}},
		{"non-positive quantity", []PriceCoordinate{
			{StartPrice: decimal.Zero, Quantity: 0, StepType: StepFixed, FixedStep: dec("1")},
		}},
		{"unknown step type", []PriceCoordinate{
			{StartPrice: decimal.Zero, Quantity: 1, StepType: "GEOMETRIC", FixedStep: dec("1")},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable(tc.coords)
			require.ErrorIs(t, err, core.ErrInvalidCoordinates)
		})
	}
}

func TestTableQuantityAt(t *testing.T) {
	table := tieredTable(t)

	cases := []struct {
		price string
		want  int64
	}{
		{"71", 1},
		{"50", 1},
		{"49.99", 1},
		{"25", 1},
		{"15", 2},
		{"14.25", 4},
		{"7", 4},
		{"6.99", 10},
		{"0", 10},
		{"-0.45", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, table.QuantityAt(dec(tc.price)), "price %s", tc.price)
	}
}

func TestPreviousGridPrice(t *testing.T) {
	st := NewStepper(dec("71"), tieredTable(t))

	cases := []struct {
		price string
		want  string
	}{
		{"71", "69"},    // floor(71/50)+1 = 2
		{"50", "48"},    // floor(50/50)+1 = 2
		{"49", "48"},    // fixed 1 segment
		{"25", "24"},
		{"15", "14.5"},
		{"14.5", "14.25"},
		{"7", "6.75"},
		{"6.9", "6.8"},
		{"0.05", "-0.05"},
	}
	for _, tc := range cases {
		got := st.PreviousGridPrice(dec(tc.price))
		assert.True(t, got.Equal(dec(tc.want)), "prev(%s) = %s, want %s", tc.price, got, tc.want)
	}

	// Below every segment the grid bottoms out at zero.
	assert.True(t, st.PreviousGridPrice(dec("-1")).IsZero())
}

func TestNextGridPriceAtStart(t *testing.T) {
	st := NewStepper(dec("71"), tieredTable(t))
	next, err := st.NextGridPrice(dec("71"))
	require.NoError(t, err)
	assert.True(t, next.Equal(dec("73")))
}

func TestNextGridPriceBySearch(t *testing.T) {
	st := NewStepper(dec("71"), tieredTable(t))

	// Walk down a few steps, then invert each one.
	prices := []decimal.Decimal{dec("71")}
	for i := 0; i < 40; i++ {
		prices = append(prices, st.PreviousGridPrice(prices[len(prices)-1]))
	}
	for i := 1; i < len(prices); i++ {
		next, err := st.NextGridPrice(prices[i])
		require.NoError(t, err)
		assert.True(t, next.Equal(prices[i-1]), "next(%s) = %s, want %s", prices[i], next, prices[i-1])
	}
}

func TestNextGridPriceUnreachable(t *testing.T) {
	st := NewStepper(dec("71"), tieredTable(t))

	// 70 sits between the grid points 71 and 69.
	_, err := st.NextGridPrice(dec("70"))
	require.ErrorIs(t, err, core.ErrUnreachableGridPrice)

	// Above the start price nothing is reachable.
	_, err = st.NextGridPrice(dec("80"))
	require.ErrorIs(t, err, core.ErrUnreachableGridPrice)

	// Below the grid floor.
	_, err = st.NextGridPrice(dec("-3"))
	require.ErrorIs(t, err, core.ErrUnreachableGridPrice)
}

func TestNextGridPriceMemoizedWalkIsStable(t *testing.T) {
	st := NewStepper(dec("20.55"), flatTable(t, 2, "1"))

	first, err := st.NextGridPrice(dec("15.55"))
	require.NoError(t, err)
	second, err := st.NextGridPrice(dec("15.55"))
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.True(t, first.Equal(dec("16.55")))
}
