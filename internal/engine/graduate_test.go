package engine

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/launchpad/backend/internal/launchpad"
)

func TestGraduateWrongPhaseNeverSubmits(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, signer := newTestService(t, chain)

	state := tradingState(signer.PublicKey())
	state.Status = launchpad.StatusTrading
	chain.accounts[launch] = launchStateBytes(t, state)

	_, err := svc.Graduate(context.Background(), launch.String())
	require.ErrorIs(t, err, ErrState)
	require.Contains(t, err.Error(), "Trading")

	require.Zero(t, chain.blockhashCalls)
	require.Zero(t, chain.sendCalls)
}

func TestGraduateAuthorityMismatchNeverSubmits(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, _ := newTestService(t, chain)

	// Platform authority recorded on chain is not the held key.
	state := tradingState(solana.NewWallet().PublicKey())
	state.Status = launchpad.StatusTransition
	chain.accounts[launch] = launchStateBytes(t, state)

	_, err := svc.Graduate(context.Background(), launch.String())
	require.ErrorIs(t, err, ErrAuthorization)

	require.Zero(t, chain.blockhashCalls)
	require.Zero(t, chain.sendCalls)
}

func TestGraduateConfirmsAndReportsTransition(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	chain := &fakeChain{
		accounts:             map[solana.PublicKey][]byte{},
		lastValidBlockHeight: 500,
		blockHeight:          100,
		confirmOnPoll:        true,
		signature:            solana.Signature{1, 2, 3},
	}
	svc, signer := newTestService(t, chain)

	state := tradingState(signer.PublicKey())
	state.Status = launchpad.StatusTransition
	chain.accounts[launch] = launchStateBytes(t, state)

	// The re-fetch after confirmation must observe the on-chain flip.
	chain.afterConfirm = func() {
		graduated := state
		graduated.Status = launchpad.StatusSafe
		chain.accounts[launch] = launchStateBytes(t, graduated)
	}

	result, err := svc.Graduate(context.Background(), launch.String())
	require.NoError(t, err)

	require.Equal(t, chain.signature.String(), result.Signature)
	require.Equal(t, "Transition", result.PreviousStatus)
	require.Equal(t, "Safe", result.NewStatus)
	require.Equal(t, 1, chain.sendCalls)
}

func TestGraduateExpiresWhenBlockHeightPasses(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	chain := &fakeChain{
		accounts:             map[solana.PublicKey][]byte{},
		lastValidBlockHeight: 500,
		blockHeight:          501,
		confirmOnPoll:        false,
	}
	svc, signer := newTestService(t, chain)

	state := tradingState(signer.PublicKey())
	state.Status = launchpad.StatusTransition
	chain.accounts[launch] = launchStateBytes(t, state)

	_, err := svc.Graduate(context.Background(), launch.String())
	require.ErrorIs(t, err, ErrExpiry)
	require.Equal(t, 1, chain.sendCalls)
}
