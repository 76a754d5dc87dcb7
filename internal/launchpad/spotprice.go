package launchpad

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// SpotPriceModel is the linear pricing model decoded straight from raw
// account bytes for the read path: P(s) = InitialPriceLamports + Slope * s.
//
// This model is structurally distinct from the constant-product reserves the
// swap engine prices against; the two are never reconciled here. The swap
// path reads the typed LaunchState, the spot path reads these offsets, and
// which model the program ultimately enforces is an upstream question.
type SpotPriceModel struct {
	InitialPriceLamports uint64
	Slope                *big.Int
	TokensSoldRaw        uint64
}

// DecodeSpotPriceModel walks the raw account layout at fixed offsets:
// 8-byte record discriminator, 32-byte authority, three u32-LE
// length-prefixed strings, two skipped u64 fields, u64 initial price,
// u128 slope, one skipped u64, u64 sold counter.
//
// There is no self-describing schema: the offsets are coupled to the
// external program's struct order, and a silent upstream reorder corrupts
// every decoded value. Validation here can only catch short buffers.
func DecodeSpotPriceModel(data []byte) (*SpotPriceModel, error) {
	offset, err := skipBytes(data, 0, 8+32)
	if err != nil {
		return nil, err
	}

	// name, symbol, uri
	for i := 0; i < 3; i++ {
		offset, err = skipLengthPrefixedString(data, offset)
		if err != nil {
			return nil, err
		}
	}

	offset, err = skipBytes(data, offset, 8+8)
	if err != nil {
		return nil, err
	}

	initialPrice, offset, err := readU64(data, offset)
	if err != nil {
		return nil, err
	}
	slope, offset, err := readU128(data, offset)
	if err != nil {
		return nil, err
	}
	offset, err = skipBytes(data, offset, 8)
	if err != nil {
		return nil, err
	}
	tokensSold, _, err := readU64(data, offset)
	if err != nil {
		return nil, err
	}

	return &SpotPriceModel{
		InitialPriceLamports: initialPrice,
		Slope:                slope,
		TokensSoldRaw:        tokensSold,
	}, nil
}

// Price evaluates the linear model at the decoded sold counter, in lamports
// per whole token.
func (m *SpotPriceModel) Price() *big.Int {
	sold := new(big.Int).SetUint64(m.TokensSoldRaw)
	price := new(big.Int).Mul(m.Slope, sold)
	return price.Add(price, new(big.Int).SetUint64(m.InitialPriceLamports))
}

func skipBytes(data []byte, offset, n int) (int, error) {
	if len(data) < offset+n {
		return offset, fmt.Errorf("%w: truncated at offset %d (need %d bytes)", ErrInvalidAccountData, offset, n)
	}
	return offset + n, nil
}

func skipLengthPrefixedString(data []byte, offset int) (int, error) {
	if len(data) < offset+4 {
		return offset, fmt.Errorf("%w: truncated string length at offset %d", ErrInvalidAccountData, offset)
	}
	length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+length {
		return offset, fmt.Errorf("%w: truncated string body at offset %d", ErrInvalidAccountData, offset)
	}
	return offset + length, nil
}

func readU64(data []byte, offset int) (uint64, int, error) {
	if len(data) < offset+8 {
		return 0, offset, fmt.Errorf("%w: truncated u64 at offset %d", ErrInvalidAccountData, offset)
	}
	return binary.LittleEndian.Uint64(data[offset : offset+8]), offset + 8, nil
}

func readU128(data []byte, offset int) (*big.Int, int, error) {
	if len(data) < offset+16 {
		return nil, offset, fmt.Errorf("%w: truncated u128 at offset %d", ErrInvalidAccountData, offset)
	}
	lo := binary.LittleEndian.Uint64(data[offset : offset+8])
	hi := binary.LittleEndian.Uint64(data[offset+8 : offset+16])

	out := new(big.Int).SetUint64(hi)
	out.Lsh(out, 64)
	out.Or(out, new(big.Int).SetUint64(lo))
	return out, offset + 16, nil
}
