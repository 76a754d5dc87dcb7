package launchpad

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func buildSpotPriceBytes(initialPrice uint64, slope *big.Int, tokensSold uint64) []byte {
	data := make([]byte, 0, 256)

	data = append(data, make([]byte, 8)...) // record kind discriminator
	data = append(data, solana.NewWallet().PublicKey().Bytes()...)

	appendString := func(s string) {
		var length [4]byte
		binary.LittleEndian.PutUint32(length[:], uint32(len(s)))
		data = append(data, length[:]...)
		data = append(data, []byte(s)...)
	}
	appendString("Moonshot")
	appendString("MOON")
	appendString("https://example.invalid/moon.json")

	appendU64 := func(v uint64) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		data = append(data, buf[:]...)
	}
	appendU64(1_000_000_000_000_000) // total supply, skipped
	appendU64(793_100_000_000_000)   // sale allocation, skipped

	appendU64(initialPrice)

	var slopeLE [16]byte
	slopeBytes := slope.Bytes() // big-endian
	for i, b := range slopeBytes {
		slopeLE[len(slopeBytes)-1-i] = b
	}
	data = append(data, slopeLE[:]...)

	appendU64(250) // fee field, skipped
	appendU64(tokensSold)

	return data
}

func TestDecodeSpotPriceModel(t *testing.T) {
	slope := big.NewInt(28)
	data := buildSpotPriceBytes(3_500, slope, 34_612_903)

	model, err := DecodeSpotPriceModel(data)
	require.NoError(t, err)
	require.Equal(t, uint64(3_500), model.InitialPriceLamports)
	require.Zero(t, model.Slope.Cmp(slope))
	require.Equal(t, uint64(34_612_903), model.TokensSoldRaw)

	// P(s) = 3_500 + 28 * 34_612_903
	want := big.NewInt(3_500 + 28*34_612_903)
	require.Zero(t, model.Price().Cmp(want))
}

func TestDecodeSpotPriceModelWideSlope(t *testing.T) {
	slope := new(big.Int).Lsh(big.NewInt(1), 80) // exceeds u64
	data := buildSpotPriceBytes(1, slope, 2)

	model, err := DecodeSpotPriceModel(data)
	require.NoError(t, err)
	require.Zero(t, model.Slope.Cmp(slope))

	want := new(big.Int).Mul(slope, big.NewInt(2))
	want.Add(want, big.NewInt(1))
	require.Zero(t, model.Price().Cmp(want))
}

func TestDecodeSpotPriceModelRejectsTruncatedBuffer(t *testing.T) {
	data := buildSpotPriceBytes(3_500, big.NewInt(28), 34_612_903)

	// Every prefix short of the final sold counter must fail loudly rather
	// than decode a wrong value.
	for _, cut := range []int{0, 7, 39, 41, 60, len(data) - 9, len(data) - 1} {
		_, err := DecodeSpotPriceModel(data[:cut])
		require.ErrorIs(t, err, ErrInvalidAccountData, "cut=%d", cut)
	}
}
