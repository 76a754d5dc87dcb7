package launchpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBuyReferenceScenario(t *testing.T) {
	// 1 SOL into the canonical initial curve.
	raw, err := ComputeBuy(30_000_000_000, 1_073_000_000_000_000, 1_000_000_000)
	require.NoError(t, err)
	// (1e9 * 1_073e12) / 31e9 = 34_612_903_225_806 atoms -> 34_612_903 raw.
	require.Equal(t, uint64(34_612_903), raw)
}

func TestComputeBuyRejectsZeroAmount(t *testing.T) {
	_, err := ComputeBuy(30_000_000_000, 1_073_000_000_000_000, 0)
	require.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestComputeBuyRejectsZeroReserves(t *testing.T) {
	_, err := ComputeBuy(0, 1_073_000_000_000_000, 1_000_000_000)
	require.ErrorIs(t, err, ErrZeroReserves)

	_, err = ComputeBuy(30_000_000_000, 0, 1_000_000_000)
	require.ErrorIs(t, err, ErrZeroReserves)
}

func TestComputeBuyRejectsDustAmount(t *testing.T) {
	// 1 lamport buys less than one raw token unit on this curve.
	_, err := ComputeBuy(30_000_000_000, 1_073_000_000_000_000, 1)
	require.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestComputeSellBySolRejectsDrainingReserves(t *testing.T) {
	_, err := ComputeSellBySol(30_000_000_000, 1_073_000_000_000_000, 30_000_000_000)
	require.ErrorIs(t, err, ErrExceedsReserves)

	_, err = ComputeSellBySol(30_000_000_000, 1_073_000_000_000_000, 31_000_000_000)
	require.ErrorIs(t, err, ErrExceedsReserves)
}

func TestComputeSellBySol(t *testing.T) {
	raw, err := ComputeSellBySol(30_000_000_000, 1_073_000_000_000_000, 1_000_000_000)
	require.NoError(t, err)
	// (1e9 * 1_073e12) / 29e9 = 37_000_000_000_000 atoms -> 37_000_000 raw.
	require.Equal(t, uint64(37_000_000), raw)
}

func TestRoundTripNeverProfits(t *testing.T) {
	cases := []struct {
		name string
		x, y uint64
		dx   uint64
	}{
		{"initial curve 1 SOL", 30_000_000_000, 1_073_000_000_000_000, 1_000_000_000},
		{"initial curve 5 SOL", 30_000_000_000, 1_073_000_000_000_000, 5_000_000_000},
		{"deep curve", 85_000_000_000, 279_900_000_000_000, 2_500_000_000},
		{"small curve", 1_000_000_000, 9_000_000_000_000, 400_000_000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bought, err := ComputeBuy(tc.x, tc.y, tc.dx)
			require.NoError(t, err)

			// Selling the bought amount back at the same reserves must not
			// return more SOL than was paid in. The sell-by-SOL inverse at
			// dx lamports always needs at least `bought` tokens.
			needed, err := ComputeSellBySol(tc.x, tc.y, tc.dx)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, needed, bought,
				"curve allowed a profitable round trip at fixed reserves")
		})
	}
}
