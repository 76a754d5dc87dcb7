package launchpad

import (
	"github.com/gagliardetto/solana-go"
)

// Derived addresses must reproduce, byte for byte, what the on-chain program
// derives from the same seeds. A mismatch is a correctness bug, not a
// recoverable error.

func DeriveLaunchAuthority(programID, state solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{launchAuthoritySeed, state.Bytes()}, programID)
}

func DeriveSolVault(programID, state solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{solVaultSeed, state.Bytes()}, programID)
}

// DeriveTokenAccount resolves the associated token account for an owner and
// mint via the associated-account convention.
func DeriveTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	return account, err
}
