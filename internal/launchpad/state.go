package launchpad

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Status is the lifecycle phase recorded on chain. Transitions only ever
// move forward: Trading -> Transition -> Safe.
type Status uint8

const (
	StatusTrading Status = iota
	StatusTransition
	StatusSafe
)

func (s Status) String() string {
	switch s {
	case StatusTrading:
		return "Trading"
	case StatusTransition:
		return "Transition"
	case StatusSafe:
		return "Safe"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// LaunchState is the read-only projection of the on-chain launch account.
// Field order is the program's borsh layout and must not be rearranged.
type LaunchState struct {
	Creator              solana.PublicKey
	PlatformAuthority    solana.PublicKey
	Status               Status
	Mint                 *solana.PublicKey `bin:"optional"`
	TokenVault           *solana.PublicKey `bin:"optional"`
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	K                    bin.Uint128
	SolRaised            uint64
	TokensSold           uint64
	SolRaiseTarget       uint64
	TokensForSale        uint64
}

// ParseLaunchState decodes a launch account. The leading 8 bytes must match
// the LaunchState discriminator; the rest is borsh per the struct order.
func ParseLaunchState(data []byte) (*LaunchState, error) {
	if len(data) < len(LaunchStateDiscriminator) {
		return nil, fmt.Errorf("%w: %d bytes is below discriminator size", ErrInvalidAccountData, len(data))
	}
	if !bytes.Equal(data[:8], LaunchStateDiscriminator[:]) {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccountData)
	}

	var state LaunchState
	if err := bin.UnmarshalBorsh(&state, data[8:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return &state, nil
}

// Initialized reports whether create_token has run: both the mint and the
// token vault must be recorded before any swap is legal.
func (s *LaunchState) Initialized() bool {
	return s.Mint != nil && s.TokenVault != nil
}
