package launchpad

import (
	"math/big"
)

// The swap engine prices against virtual reserves under the constant-product
// relation x*y = k. All arithmetic runs on big.Int because intermediate
// products of reserve-scale values exceed 64 bits; division truncates toward
// zero, matching the on-chain program.

// ComputeBuy returns the raw token amount received for solLamports paid in,
// given virtual reserves (x = SOL lamports, y = token atoms):
//
//	dy = (dx * y) / (x + dx), then descaled to raw transferable units.
func ComputeBuy(virtualSolReserves, virtualTokenReserves, solLamports uint64) (uint64, error) {
	if virtualSolReserves == 0 || virtualTokenReserves == 0 {
		return 0, ErrZeroReserves
	}
	if solLamports == 0 {
		return 0, ErrAmountTooSmall
	}

	x := new(big.Int).SetUint64(virtualSolReserves)
	y := new(big.Int).SetUint64(virtualTokenReserves)
	dx := new(big.Int).SetUint64(solLamports)

	numerator := new(big.Int).Mul(dx, y)
	denominator := new(big.Int).Add(x, dx)
	scaled := numerator.Div(numerator, denominator)

	return descaleTokenAmount(scaled)
}

// ComputeSellBySol returns the raw token amount that must be sold to receive
// solLamports, the inverse swap:
//
//	dy = (dx * y) / (x - dx), requiring dx < x.
func ComputeSellBySol(virtualSolReserves, virtualTokenReserves, solLamports uint64) (uint64, error) {
	if virtualSolReserves == 0 || virtualTokenReserves == 0 {
		return 0, ErrZeroReserves
	}
	if solLamports == 0 {
		return 0, ErrAmountTooSmall
	}
	if solLamports >= virtualSolReserves {
		return 0, ErrExceedsReserves
	}

	x := new(big.Int).SetUint64(virtualSolReserves)
	y := new(big.Int).SetUint64(virtualTokenReserves)
	dx := new(big.Int).SetUint64(solLamports)

	numerator := new(big.Int).Mul(dx, y)
	denominator := new(big.Int).Sub(x, dx)
	scaled := numerator.Div(numerator, denominator)

	return descaleTokenAmount(scaled)
}

func descaleTokenAmount(scaled *big.Int) (uint64, error) {
	if scaled.Sign() <= 0 {
		return 0, ErrAmountTooSmall
	}
	raw := scaled.Div(scaled, new(big.Int).SetUint64(TokenAtomsPerWhole))
	if raw.Sign() <= 0 {
		return 0, ErrAmountTooSmall
	}
	if !raw.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return raw.Uint64(), nil
}
