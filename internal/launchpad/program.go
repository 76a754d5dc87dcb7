// Package launchpad is the program client for the on-chain token launchpad:
// account layouts, bonding-curve math, PDA derivation, and instruction
// construction. It performs no I/O; callers supply fetched account bytes and
// receive fully-formed instructions back.
package launchpad

import (
	"crypto/sha256"
	"errors"

	"github.com/gagliardetto/solana-go"
)

const (
	// LamportsPerSol scales whole-SOL request amounts into lamports.
	LamportsPerSol = uint64(1_000_000_000)

	// TokenAtomsPerWhole is the smallest-unit scale of launchpad mints
	// (6 decimals). Virtual reserves are tracked in atom-scaled units;
	// instructions take raw transferable amounts, so swap results are
	// divided by this factor.
	TokenAtomsPerWhole = uint64(1_000_000)
)

var (
	ErrInvalidAccountData = errors.New("unexpected account data")
	ErrZeroReserves       = errors.New("virtual reserves are zero")
	ErrAmountTooSmall     = errors.New("amount too small to produce a positive result")
	ErrExceedsReserves    = errors.New("sol amount must be below virtual sol reserves")
	ErrAmountOverflow     = errors.New("computed amount overflows u64")
)

var (
	DefaultProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	launchAuthoritySeed = []byte("launch-authority")
	solVaultSeed        = []byte("sol-vault")
)

// Account discriminators follow the anchor convention:
// sha256("account:<Name>")[:8].
var LaunchStateDiscriminator = anchorAccountDiscriminator("LaunchState")

// Instruction discriminators: sha256("global:<name>")[:8].
var (
	initializeDiscriminator     = anchorInstructionDiscriminator("initialize")
	createTokenDiscriminator    = anchorInstructionDiscriminator("create_token")
	buyTokenDiscriminator       = anchorInstructionDiscriminator("buy_token")
	sellTokenDiscriminator      = anchorInstructionDiscriminator("sell_token")
	graduateToSafeDiscriminator = anchorInstructionDiscriminator("graduate_to_safe")
)

func anchorInstructionDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

func anchorAccountDiscriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}
