package engine

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/launchpad/backend/internal/launchpad"
)

type fakeDocgen struct {
	calls  int
	result DocumentResult
}

func (f *fakeDocgen) Generate(_ context.Context, _ DocumentRequest) (*DocumentResult, error) {
	f.calls++
	out := f.result
	return &out, nil
}

func TestGenerateLegalDocumentIsIdempotentPerLaunch(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, signer := newTestService(t, chain)

	docgen := &fakeDocgen{result: DocumentResult{
		URL:      "https://docs.example.com/launch.pdf",
		Filename: "launch.pdf",
	}}
	svc.docgen = docgen

	state := tradingState(signer.PublicKey())
	state.Status = launchpad.StatusTransition
	chain.accounts[launch] = launchStateBytes(t, state)

	first, err := svc.GenerateLegalDocument(context.Background(), launch.String())
	require.NoError(t, err)
	second, err := svc.GenerateLegalDocument(context.Background(), launch.String())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, docgen.calls)
}

func TestGenerateLegalDocumentRequiresTransition(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, signer := newTestService(t, chain)

	docgen := &fakeDocgen{result: DocumentResult{URL: "https://docs.example.com/x.pdf"}}
	svc.docgen = docgen

	state := tradingState(signer.PublicKey())
	state.Status = launchpad.StatusSafe
	chain.accounts[launch] = launchStateBytes(t, state)

	_, err := svc.GenerateLegalDocument(context.Background(), launch.String())
	require.ErrorIs(t, err, ErrState)
	require.Zero(t, docgen.calls)
}
