package ladder

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder-trading/internal/core"
)

func TestGenerateFixedCommissionSpreadsPerShare(t *testing.T) {
	it := flatItem(t)
	it.Commission = Commission{
		Type: CommissionFixed,
		Buy:  dec("0.50"),
		Sell: dec("0.50"),
	}

	got, err := Generate(it, 9)
	require.NoError(t, err)

	// Full sells carry 0.50/2 per fee; the partial single-share sell
	// absorbs both fees whole. Buy legs stay on the grid.
	want := []core.TargetOrder{
		wantOrder("XXXX", "23.05", 2, false, core.Sell),
		wantOrder("XXXX", "22.05", 2, false, core.Sell),
		wantOrder("XXXX", "21.05", 2, false, core.Sell),
		wantOrder("XXXX", "20.05", 2, false, core.Sell),
		wantOrder("XXXX", "19.55", 1, true, core.Sell),
		wantOrder("XXXX", "16.55", 1, true, core.Buy),
		wantOrder("XXXX", "15.55", 2, false, core.Buy),
	}
	assertLadder(t, want, got)
}

func TestGeneratePercentageCommissionUsesBothNotionals(t *testing.T) {
	it := flatItem(t)
	it.Commission = Commission{
		Type: CommissionPercentage,
		Buy:  dec("1"),
		Sell: dec("1"),
	}

	got, err := Generate(it, 2)
	require.NoError(t, err)

	// Sell at 22.55 acquired at 20.55: buy fee 20.55%*1/2 = 0.10,
	// sell fee 22.55%*1/2 = 0.11, so the leg moves to 22.76.
	want := []core.TargetOrder{
		wantOrder("XXXX", "22.76", 2, false, core.Sell),
		wantOrder("XXXX", "19.55", 2, false, core.Buy),
		wantOrder("XXXX", "18.55", 2, false, core.Buy),
	}
	assertLadder(t, want, got)
}

func TestGeneratePercentageCommissionNextGridPolicy(t *testing.T) {
	it := flatItem(t)
	it.SellPolicy = SellNextGrid
	it.SellStep = decimal.Zero
	it.Commission = Commission{
		Type: CommissionPercentage,
		Buy:  dec("1"),
		Sell: dec("1"),
	}

	got, err := Generate(it, 2)
	require.NoError(t, err)

	// NEXTGRID sells one step up: 21.55, acquired at the 20.55 grid
	// point. Fees: 20.55%*1/2 = 0.10 and 21.55%*1/2 = 0.11.
	want := []core.TargetOrder{
		wantOrder("XXXX", "21.76", 2, false, core.Sell),
		wantOrder("XXXX", "19.55", 2, false, core.Buy),
		wantOrder("XXXX", "18.55", 2, false, core.Buy),
	}
	assertLadder(t, want, got)
}

func TestGenerateZeroCommissionLeavesLadderUnchanged(t *testing.T) {
	base, err := Generate(flatItem(t), 9)
	require.NoError(t, err)

	it := flatItem(t)
	it.Commission = Commission{Type: CommissionFixed}
	got, err := Generate(it, 9)
	require.NoError(t, err)

	assertLadder(t, base, got)
}

func TestCommissionValidate(t *testing.T) {
	cases := []struct {
		name       string
		commission Commission
		wantErr    string
	}{
		{"none", Commission{}, ""},
		{"fixed", Commission{Type: CommissionFixed, Buy: dec("0.5")}, ""},
		{"percentage", Commission{Type: CommissionPercentage, Sell: dec("1")}, ""},
		{"bad type", Commission{Type: "FLAT"}, "commission type must be FIXED or PERCENTAGE"},
		{"negative buy", Commission{Type: CommissionFixed, Buy: dec("-1")}, "buy commission must be >= 0"},
		{"negative sell", Commission{Type: CommissionFixed, Sell: dec("-1")}, "sell commission must be >= 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.commission.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
