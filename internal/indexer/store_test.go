package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "numbers placeholders in order",
			input: "SELECT * FROM launches WHERE status = ? AND creator = ?",
			want:  "SELECT * FROM launches WHERE status = $1 AND creator = $2",
		},
		{
			name:  "ignores question marks inside string literals",
			input: "SELECT '?' AS q, address FROM launches WHERE address = ?",
			want:  "SELECT '?' AS q, address FROM launches WHERE address = $1",
		},
		{
			name:  "handles escaped quotes inside literals",
			input: "SELECT 'it''s ?' FROM launches WHERE slot > ?",
			want:  "SELECT 'it''s ?' FROM launches WHERE slot > $1",
		},
		{
			name:  "no placeholders",
			input: "SELECT 1",
			want:  "SELECT 1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, rebindPostgresPlaceholders(tc.input))
		})
	}
}

func TestNormalizePagination(t *testing.T) {
	limit, offset := normalizePagination(0, -5)
	require.Equal(t, defaultPageLimit, limit)
	require.Equal(t, 0, offset)

	limit, offset = normalizePagination(10_000, 40)
	require.Equal(t, maxPageLimit, limit)
	require.Equal(t, 40, offset)

	limit, offset = normalizePagination(25, 50)
	require.Equal(t, 25, limit)
	require.Equal(t, 50, offset)
}

func TestNormalizeSymbol(t *testing.T) {
	require.Equal(t, "SOLUSD", normalizeSymbol(""))
	require.Equal(t, "SOLUSD", normalizeSymbol("  sol/usd  "))
	require.Equal(t, "SOLUSD", normalizeSymbol("!!!"))
	require.Equal(t, "BTC2USD", normalizeSymbol("btc2-usd"))
}

func TestBuildPriceStreamURL(t *testing.T) {
	streamURL, err := buildPriceStreamURL(
		"https://hermes.pyth.network/v2/updates/price/stream",
		"ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	)
	require.NoError(t, err)
	require.Contains(t, streamURL, "ids%5B%5D=ef0d8b6f")
	require.Contains(t, streamURL, "parsed=true")

	_, err = buildPriceStreamURL("not a url at all", "feed")
	require.Error(t, err)
}

func TestDecodeFeedPrice(t *testing.T) {
	price, err := decodeFeedPrice("18342005678", -8)
	require.NoError(t, err)
	require.InDelta(t, 183.42005678, price, 1e-9)

	price, err = decodeFeedPrice("42", 0)
	require.NoError(t, err)
	require.Equal(t, 42.0, price)

	_, err = decodeFeedPrice("", -8)
	require.Error(t, err)
}
