package engine

import (
	"context"
	"io"
	"log/slog"
	"math/bits"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/launchpad/backend/internal/config"
	"github.com/coldbell/launchpad/backend/internal/launchpad"
)

type fakeChain struct {
	accounts map[solana.PublicKey][]byte

	accountCalls   int
	blockhashCalls int
	sendCalls      int
	statusCalls    int

	blockHeight          uint64
	lastValidBlockHeight uint64
	signature            solana.Signature
	confirmOnPoll        bool
	afterConfirm         func()
}

func (f *fakeChain) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	f.accountCalls++
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)},
	}, nil
}

func (f *fakeChain) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.blockhashCalls++
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            solana.Hash{},
			LastValidBlockHeight: f.lastValidBlockHeight,
		},
	}, nil
}

func (f *fakeChain) GetBlockHeight(_ context.Context, _ rpc.CommitmentType) (uint64, error) {
	return f.blockHeight, nil
}

func (f *fakeChain) SendTransactionWithOpts(_ context.Context, _ *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.sendCalls++
	return f.signature, nil
}

func (f *fakeChain) GetSignatureStatuses(_ context.Context, _ bool, _ ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.statusCalls++
	if !f.confirmOnPoll {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	if f.afterConfirm != nil {
		f.afterConfirm()
		f.afterConfirm = nil
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		},
	}, nil
}

func newTestService(t *testing.T, chain *fakeChain) (*Service, solana.PrivateKey) {
	t.Helper()

	signer := solana.NewWallet().PrivateKey
	cfg := config.EngineConfig{
		Commitment:         rpc.CommitmentConfirmed,
		LaunchpadProgramID: launchpad.DefaultProgramID,
		TxTimeout:          10 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newService(cfg, chain, signer, nil, logger), signer
}

func launchStateBytes(t *testing.T, state launchpad.LaunchState) []byte {
	t.Helper()
	body, err := bin.MarshalBorsh(&state)
	require.NoError(t, err)
	out := make([]byte, 0, 8+len(body))
	out = append(out, launchpad.LaunchStateDiscriminator[:]...)
	return append(out, body...)
}

func tradingState(platformAuthority solana.PublicKey) launchpad.LaunchState {
	mint := solana.NewWallet().PublicKey()
	vault := solana.NewWallet().PublicKey()
	x := uint64(30_000_000_000)
	y := uint64(1_073_000_000_000_000)
	hi, lo := bits.Mul64(x, y)

	return launchpad.LaunchState{
		Creator:              solana.NewWallet().PublicKey(),
		PlatformAuthority:    platformAuthority,
		Status:               launchpad.StatusTrading,
		Mint:                 &mint,
		TokenVault:           &vault,
		VirtualSolReserves:   x,
		VirtualTokenReserves: y,
		K:                    bin.Uint128{Lo: lo, Hi: hi},
		SolRaised:            12_000_000_000,
		TokensSold:           400_000_000,
		SolRaiseTarget:       85_000_000_000,
		TokensForSale:        800_000_000_000,
	}
}

func TestBuildBuyReferenceScenario(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	state := tradingState(solana.NewWallet().PublicKey())
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{
		launch: launchStateBytes(t, state),
	}}
	svc, _ := newTestService(t, chain)

	result, err := svc.BuildBuy(context.Background(), BuyRequest{
		LaunchAddress:  launch.String(),
		BuyerAddress:   solana.NewWallet().PublicKey().String(),
		SolAmountWhole: 1,
	})
	require.NoError(t, err)

	require.Equal(t, uint64(34_612_903), result.TokenAmountRaw)
	require.Equal(t, uint64(1_000_000_000), result.MaxSolCost)
	require.Equal(t, launchpad.DefaultProgramID.String(), result.Instruction.ProgramID)
	require.Len(t, result.Instruction.Accounts, 10)
	require.Equal(t, launch.String(), result.Instruction.Accounts[0].Address)
	require.Len(t, result.Instruction.Data, 24)

	// Unsigned build path: nothing may touch the submission primitives.
	require.Zero(t, chain.blockhashCalls)
	require.Zero(t, chain.sendCalls)
}

func TestBuildBuyRejectsZeroAmountBeforeFetch(t *testing.T) {
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, _ := newTestService(t, chain)

	_, err := svc.BuildBuy(context.Background(), BuyRequest{
		LaunchAddress:  solana.NewWallet().PublicKey().String(),
		BuyerAddress:   solana.NewWallet().PublicKey().String(),
		SolAmountWhole: 0,
	})
	require.ErrorIs(t, err, ErrValidation)
	require.Zero(t, chain.accountCalls)
}

func TestBuildBuyMissingLaunch(t *testing.T) {
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, _ := newTestService(t, chain)

	_, err := svc.BuildBuy(context.Background(), BuyRequest{
		LaunchAddress:  solana.NewWallet().PublicKey().String(),
		BuyerAddress:   solana.NewWallet().PublicKey().String(),
		SolAmountWhole: 1,
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, "not_found", Kind(err))
}

func TestBuildSellAmountFieldsAreExclusive(t *testing.T) {
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, _ := newTestService(t, chain)

	tokenAmount := uint64(5_000_000)
	solAmount := uint64(2)

	// Both present.
	_, err := svc.BuildSell(context.Background(), SellRequest{
		LaunchAddress:  solana.NewWallet().PublicKey().String(),
		SellerAddress:  solana.NewWallet().PublicKey().String(),
		TokenAmountRaw: &tokenAmount,
		SolAmountWhole: &solAmount,
	})
	require.ErrorIs(t, err, ErrValidation)

	// Neither present.
	_, err = svc.BuildSell(context.Background(), SellRequest{
		LaunchAddress: solana.NewWallet().PublicKey().String(),
		SellerAddress: solana.NewWallet().PublicKey().String(),
	})
	require.ErrorIs(t, err, ErrValidation)

	// Contradictory requests never reach the ledger.
	require.Zero(t, chain.accountCalls)
}

func TestBuildSellByTokenAmountPassesThrough(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	state := tradingState(solana.NewWallet().PublicKey())
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{
		launch: launchStateBytes(t, state),
	}}
	svc, _ := newTestService(t, chain)

	tokenAmount := uint64(7_500_000)
	result, err := svc.BuildSell(context.Background(), SellRequest{
		LaunchAddress:  launch.String(),
		SellerAddress:  solana.NewWallet().PublicKey().String(),
		TokenAmountRaw: &tokenAmount,
	})
	require.NoError(t, err)
	require.Equal(t, tokenAmount, result.TokenAmountRaw)
	require.Len(t, result.Instruction.Accounts, 9)
}

func TestBuildSellBySolComputesInverseSwap(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	state := tradingState(solana.NewWallet().PublicKey())
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{
		launch: launchStateBytes(t, state),
	}}
	svc, _ := newTestService(t, chain)

	solAmount := uint64(1)
	result, err := svc.BuildSell(context.Background(), SellRequest{
		LaunchAddress:  launch.String(),
		SellerAddress:  solana.NewWallet().PublicKey().String(),
		SolAmountWhole: &solAmount,
	})
	require.NoError(t, err)

	// (1e9 * 1.073e15) / (30e9 - 1e9) / 1e6 = 37_000_000
	require.Equal(t, uint64(37_000_000), result.TokenAmountRaw)
}

func TestSwapRejectedBeforeTokenCreated(t *testing.T) {
	launch := solana.NewWallet().PublicKey()
	state := tradingState(solana.NewWallet().PublicKey())
	state.Mint = nil
	state.TokenVault = nil
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{
		launch: launchStateBytes(t, state),
	}}
	svc, _ := newTestService(t, chain)

	_, err := svc.BuildBuy(context.Background(), BuyRequest{
		LaunchAddress:  launch.String(),
		BuyerAddress:   solana.NewWallet().PublicKey().String(),
		SolAmountWhole: 1,
	})
	require.ErrorIs(t, err, ErrState)
	require.Equal(t, "lifecycle_state", Kind(err))
}

func TestBuildInitializeAndCreateToken(t *testing.T) {
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, _ := newTestService(t, chain)

	result, err := svc.BuildInitializeAndCreateToken(context.Background(), CreateLaunchRequest{
		AuthorityAddress:  solana.NewWallet().PublicKey().String(),
		LaunchAddress:     solana.NewWallet().PublicKey().String(),
		MintAddress:       solana.NewWallet().PublicKey().String(),
		TokenVaultAddress: solana.NewWallet().PublicKey().String(),
		SolRaiseTarget:    85_000_000_000,
		TokensForSale:     800_000_000_000,
		Name:              "Moonshot",
		Symbol:            "MOON",
		URI:               "https://example.com/moon.json",
	})
	require.NoError(t, err)
	require.Len(t, result.Initialize.Accounts, 3)
	require.Len(t, result.CreateToken.Accounts, 8)

	// Pure construction: no ledger access at all.
	require.Zero(t, chain.accountCalls)
}

func TestBuildInitializeRejectsMissingMetadata(t *testing.T) {
	chain := &fakeChain{accounts: map[solana.PublicKey][]byte{}}
	svc, _ := newTestService(t, chain)

	_, err := svc.BuildInitializeAndCreateToken(context.Background(), CreateLaunchRequest{
		AuthorityAddress:  solana.NewWallet().PublicKey().String(),
		LaunchAddress:     solana.NewWallet().PublicKey().String(),
		MintAddress:       solana.NewWallet().PublicKey().String(),
		TokenVaultAddress: solana.NewWallet().PublicKey().String(),
		SolRaiseTarget:    85_000_000_000,
		TokensForSale:     800_000_000_000,
		Symbol:            "MOON",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestKindTagsAreDistinct(t *testing.T) {
	seen := map[string]error{}
	for _, err := range []error{
		ErrValidation, ErrNotFound, ErrStateInvariant, ErrState,
		ErrAuthorization, ErrDecode, ErrNetwork, ErrExpiry,
	} {
		kind := Kind(err)
		require.NotEqual(t, "internal", kind)
		prev, dup := seen[kind]
		require.False(t, dup, "kind %q maps both %v and %v", kind, prev, err)
		seen[kind] = err
	}
}
