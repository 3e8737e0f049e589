package ladder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSellPriceForFixed(t *testing.T) {
	it := Item{
		StartPrice:  dec("20.55"),
		Coordinates: flatTable(t, 2, "1"),
		SellPolicy:  SellFixed,
		SellStep:    dec("2"),
	}
	st := it.NewStepper()

	sell, err := st.SellPriceFor(it, dec("20.55"))
	require.NoError(t, err)
	assert.True(t, sell.Equal(dec("22.55")))

	buy, err := st.BuyPriceFor(it, sell)
	require.NoError(t, err)
	assert.True(t, buy.Equal(dec("20.55")))
}

func TestSellPriceForPercentage(t *testing.T) {
	it := Item{
		StartPrice:  dec("16"),
		Coordinates: flatTable(t, 1, "1"),
		SellPolicy:  SellPercentage,
		SellStep:    dec("10"),
	}
	st := it.NewStepper()

	sell, err := st.SellPriceFor(it, dec("16"))
	require.NoError(t, err)
	assert.True(t, sell.Equal(dec("17.6")), "got %s", sell)

	buy, err := st.BuyPriceFor(it, sell)
	require.NoError(t, err)
	assert.True(t, buy.Equal(dec("16")))
}

func TestSellPriceForNextGrid(t *testing.T) {
	it := Item{
		StartPrice:  dec("71"),
		Coordinates: tieredTable(t),
		SellPolicy:  SellNextGrid,
	}
	st := it.NewStepper()

	buy := st.PreviousGridPrice(dec("71")) // 69
	sell, err := st.SellPriceFor(it, buy)
	require.NoError(t, err)
	assert.True(t, sell.Equal(dec("71")))

	back, err := st.BuyPriceFor(it, sell)
	require.NoError(t, err)
	assert.True(t, back.Equal(buy))
}

// Round-tripping holds for every policy on grid points, except NEXTGRID fed
// a price off the backward grid: the multiplier delta is computed from the
// price itself, so starting from an off-grid sell price lands on a
// different grid point. Documented divergence, pinned here.
func TestNextGridRoundTripDivergesOffGrid(t *testing.T) {
	it := Item{
		StartPrice:  dec("71"),
		Coordinates: tieredTable(t),
		SellPolicy:  SellNextGrid,
	}
	st := it.NewStepper()

	// 50 is not on the grid walked from 71 (…51, 49…). Stepping it backward
	// uses the multiplier delta floor(50/50)+1 = 2.
	buy, err := st.BuyPriceFor(it, dec("50"))
	require.NoError(t, err)
	assert.True(t, buy.Equal(dec("48")))

	sell, err := st.SellPriceFor(it, buy)
	require.NoError(t, err)
	assert.False(t, sell.Equal(dec("50")), "inversion across the multiplier boundary is not exact")
	assert.True(t, sell.Equal(dec("49")))
}

func TestPolicyRoundTripAcrossGrid(t *testing.T) {
	for _, policy := range []SellPolicy{SellFixed, SellPercentage} {
		it := Item{
			StartPrice:  dec("71"),
			Coordinates: tieredTable(t),
			SellPolicy:  policy,
			SellStep:    dec("3"),
		}
		st := it.NewStepper()
		price := it.StartPrice
		for i := 0; i < 30; i++ {
			sell, err := st.SellPriceFor(it, price)
			require.NoError(t, err)
			buy, err := st.BuyPriceFor(it, sell)
			require.NoError(t, err)
			diff := buy.Sub(price).Abs()
			assert.True(t, diff.LessThanOrEqual(dec("0.01")),
				"policy %s: round trip of %s drifted to %s", policy, price, buy)
			price = st.PreviousGridPrice(price)
		}
	}
}

func TestUnsupportedSellPolicy(t *testing.T) {
	it := Item{
		StartPrice:  dec("10"),
		Coordinates: flatTable(t, 1, "1"),
		SellPolicy:  "TRAILING",
	}
	st := it.NewStepper()
	_, err := st.SellPriceFor(it, dec("10"))
	require.Error(t, err)
	_, err = st.BuyPriceFor(it, dec("10"))
	require.Error(t, err)
}
