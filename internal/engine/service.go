// Package engine is the launchpad decision layer: it fetches fresh on-chain
// state per request, validates it through the lifecycle gate, prices swaps
// against the bonding curve, and assembles instruction descriptors. Buy and
// sell descriptors are returned unsigned for client-side signing; graduate is
// signed with the held platform-authority key and submitted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/coldbell/launchpad/backend/internal/config"
	"github.com/coldbell/launchpad/backend/internal/launchpad"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type Service struct {
	cfg    config.EngineConfig
	chain  ChainClient
	signer solana.PrivateKey
	docgen DocumentGenerator
	logger *slog.Logger

	docMu       sync.Mutex
	docByLaunch map[solana.PublicKey]*DocumentResult
}

func New(cfg config.EngineConfig, logger *slog.Logger) (*Service, error) {
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}

	var docgen DocumentGenerator
	if cfg.DocgenURL != "" {
		docgen = NewHTTPDocumentGenerator(cfg.DocgenURL, cfg.DocgenTimeout)
	}

	return newService(cfg, rpc.New(cfg.RPCURL), signer, docgen, logger), nil
}

func newService(
	cfg config.EngineConfig,
	chain ChainClient,
	signer solana.PrivateKey,
	docgen DocumentGenerator,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		chain:       chain,
		signer:      signer,
		docgen:      docgen,
		logger:      logger,
		docByLaunch: make(map[solana.PublicKey]*DocumentResult),
	}
}

// PlatformAuthority is the public half of the held signing key.
func (s *Service) PlatformAuthority() solana.PublicKey {
	return s.signer.PublicKey()
}

// AccountMeta mirrors one ordered instruction account for JSON transport.
type AccountMeta struct {
	Address    string `json:"address"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// InstructionDescriptor is the unsigned data product handed back to clients:
// program id, the ordered account list, and the opaque encoded data. It is
// immutable once constructed.
type InstructionDescriptor struct {
	ProgramID string        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

func describeInstruction(ix solana.Instruction) (InstructionDescriptor, error) {
	data, err := ix.Data()
	if err != nil {
		return InstructionDescriptor{}, fmt.Errorf("extract instruction data: %w", err)
	}

	accounts := make([]AccountMeta, 0, len(ix.Accounts()))
	for _, account := range ix.Accounts() {
		accounts = append(accounts, AccountMeta{
			Address:    account.PublicKey.String(),
			IsSigner:   account.IsSigner,
			IsWritable: account.IsWritable,
		})
	}

	return InstructionDescriptor{
		ProgramID: ix.ProgramID().String(),
		Accounts:  accounts,
		Data:      data,
	}, nil
}

type BuyRequest struct {
	LaunchAddress  string `json:"launchAddress"`
	BuyerAddress   string `json:"buyerAddress"`
	SolAmountWhole uint64 `json:"solAmount"`
}

type BuyResult struct {
	Instruction    InstructionDescriptor `json:"instruction"`
	TokenAmountRaw uint64                `json:"tokenAmount"`
	MaxSolCost     uint64                `json:"maxSolCost"`
}

// BuildBuy prices a buy of SolAmountWhole SOL against the current virtual
// reserves and returns the unsigned buy_token descriptor. The computed token
// amount and the lamport cost cap ride along for display.
func (s *Service) BuildBuy(ctx context.Context, req BuyRequest) (*BuyResult, error) {
	launchKey, err := parseAddress("launchAddress", req.LaunchAddress)
	if err != nil {
		return nil, err
	}
	buyerKey, err := parseAddress("buyerAddress", req.BuyerAddress)
	if err != nil {
		return nil, err
	}
	if req.SolAmountWhole == 0 {
		return nil, fmt.Errorf("%w: solAmount must be > 0", ErrValidation)
	}
	solLamports, err := wholeSolToLamports(req.SolAmountWhole)
	if err != nil {
		return nil, err
	}

	state, err := s.fetchState(ctx, launchKey)
	if err != nil {
		return nil, err
	}
	if err := requireSwapReady(state); err != nil {
		return nil, err
	}

	tokenAmount, err := launchpad.ComputeBuy(state.VirtualSolReserves, state.VirtualTokenReserves, solLamports)
	if err != nil {
		return nil, mapCurveError(err)
	}

	accounts, err := s.resolveSwapAccounts(launchKey, state, buyerKey)
	if err != nil {
		return nil, err
	}

	ix, err := launchpad.NewBuyTokenInstruction(
		s.cfg.LaunchpadProgramID,
		launchKey,
		accounts.launchAuthority,
		accounts.solVault,
		*state.TokenVault,
		*state.Mint,
		buyerKey,
		accounts.userTokenAccount,
		tokenAmount,
		solLamports,
	)
	if err != nil {
		return nil, err
	}

	descriptor, err := describeInstruction(ix)
	if err != nil {
		return nil, err
	}

	s.logger.Info("buy instruction built",
		"launch", launchKey,
		"buyer", buyerKey,
		"sol_lamports", solLamports,
		"token_amount", tokenAmount,
	)

	return &BuyResult{
		Instruction:    descriptor,
		TokenAmountRaw: tokenAmount,
		MaxSolCost:     solLamports,
	}, nil
}

// SellRequest carries exactly one amount field: TokenAmountRaw sells a known
// raw token amount as-is, SolAmountWhole asks the curve how many tokens must
// be sold to receive that much SOL. Both or neither is a validation failure.
type SellRequest struct {
	LaunchAddress  string  `json:"launchAddress"`
	SellerAddress  string  `json:"sellerAddress"`
	TokenAmountRaw *uint64 `json:"tokenAmount"`
	SolAmountWhole *uint64 `json:"solAmount"`
}

type SellResult struct {
	Instruction    InstructionDescriptor `json:"instruction"`
	TokenAmountRaw uint64                `json:"tokenAmount"`
}

func (s *Service) BuildSell(ctx context.Context, req SellRequest) (*SellResult, error) {
	launchKey, err := parseAddress("launchAddress", req.LaunchAddress)
	if err != nil {
		return nil, err
	}
	sellerKey, err := parseAddress("sellerAddress", req.SellerAddress)
	if err != nil {
		return nil, err
	}
	if (req.TokenAmountRaw == nil) == (req.SolAmountWhole == nil) {
		return nil, fmt.Errorf("%w: exactly one of tokenAmount or solAmount must be provided", ErrValidation)
	}
	if req.TokenAmountRaw != nil && *req.TokenAmountRaw == 0 {
		return nil, fmt.Errorf("%w: tokenAmount must be > 0", ErrValidation)
	}
	if req.SolAmountWhole != nil && *req.SolAmountWhole == 0 {
		return nil, fmt.Errorf("%w: solAmount must be > 0", ErrValidation)
	}

	state, err := s.fetchState(ctx, launchKey)
	if err != nil {
		return nil, err
	}
	if err := requireSwapReady(state); err != nil {
		return nil, err
	}

	var tokenAmount uint64
	if req.TokenAmountRaw != nil {
		// Raw token amounts pass through untouched; the SOL received is
		// computed on chain.
		tokenAmount = *req.TokenAmountRaw
	} else {
		solLamports, convErr := wholeSolToLamports(*req.SolAmountWhole)
		if convErr != nil {
			return nil, convErr
		}
		tokenAmount, err = launchpad.ComputeSellBySol(state.VirtualSolReserves, state.VirtualTokenReserves, solLamports)
		if err != nil {
			return nil, mapCurveError(err)
		}
	}

	accounts, err := s.resolveSwapAccounts(launchKey, state, sellerKey)
	if err != nil {
		return nil, err
	}

	ix, err := launchpad.NewSellTokenInstruction(
		s.cfg.LaunchpadProgramID,
		launchKey,
		accounts.solVault,
		*state.TokenVault,
		*state.Mint,
		sellerKey,
		accounts.userTokenAccount,
		tokenAmount,
	)
	if err != nil {
		return nil, err
	}

	descriptor, err := describeInstruction(ix)
	if err != nil {
		return nil, err
	}

	s.logger.Info("sell instruction built",
		"launch", launchKey,
		"seller", sellerKey,
		"token_amount", tokenAmount,
	)

	return &SellResult{
		Instruction:    descriptor,
		TokenAmountRaw: tokenAmount,
	}, nil
}

type CreateLaunchRequest struct {
	AuthorityAddress  string `json:"authorityAddress"`
	LaunchAddress     string `json:"launchAddress"`
	MintAddress       string `json:"mintAddress"`
	TokenVaultAddress string `json:"tokenVaultAddress"`
	SolRaiseTarget    uint64 `json:"solRaiseTarget"`
	TokensForSale     uint64 `json:"tokensForSale"`
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	URI               string `json:"uri"`
}

type CreateLaunchResult struct {
	Initialize  InstructionDescriptor `json:"initialize"`
	CreateToken InstructionDescriptor `json:"createToken"`
}

// BuildInitializeAndCreateToken assembles the two-instruction launch opening:
// initialize records the raise parameters, create_token mints and binds the
// token. Both descriptors are returned unsigned; the launch creator signs and
// submits them together.
func (s *Service) BuildInitializeAndCreateToken(ctx context.Context, req CreateLaunchRequest) (*CreateLaunchResult, error) {
	_ = ctx

	authorityKey, err := parseAddress("authorityAddress", req.AuthorityAddress)
	if err != nil {
		return nil, err
	}
	launchKey, err := parseAddress("launchAddress", req.LaunchAddress)
	if err != nil {
		return nil, err
	}
	mintKey, err := parseAddress("mintAddress", req.MintAddress)
	if err != nil {
		return nil, err
	}
	vaultKey, err := parseAddress("tokenVaultAddress", req.TokenVaultAddress)
	if err != nil {
		return nil, err
	}
	if req.SolRaiseTarget == 0 {
		return nil, fmt.Errorf("%w: solRaiseTarget must be > 0", ErrValidation)
	}
	if req.TokensForSale == 0 {
		return nil, fmt.Errorf("%w: tokensForSale must be > 0", ErrValidation)
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Symbol) == "" {
		return nil, fmt.Errorf("%w: name and symbol are required", ErrValidation)
	}

	launchAuthority, _, err := launchpad.DeriveLaunchAuthority(s.cfg.LaunchpadProgramID, launchKey)
	if err != nil {
		return nil, fmt.Errorf("derive launch authority: %w", err)
	}

	initIx, err := launchpad.NewInitializeInstruction(
		s.cfg.LaunchpadProgramID,
		launchKey,
		authorityKey,
		launchpad.InitializeArgs{
			SolRaiseTarget: req.SolRaiseTarget,
			TokensForSale:  req.TokensForSale,
		},
	)
	if err != nil {
		return nil, err
	}

	createIx, err := launchpad.NewCreateTokenInstruction(
		s.cfg.LaunchpadProgramID,
		launchKey,
		authorityKey,
		mintKey,
		vaultKey,
		launchAuthority,
		launchpad.TokenMetadata{
			Name:   req.Name,
			Symbol: req.Symbol,
			URI:    req.URI,
		},
	)
	if err != nil {
		return nil, err
	}

	initDescriptor, err := describeInstruction(initIx)
	if err != nil {
		return nil, err
	}
	createDescriptor, err := describeInstruction(createIx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("launch creation instructions built",
		"launch", launchKey,
		"authority", authorityKey,
		"mint", mintKey,
	)

	return &CreateLaunchResult{
		Initialize:  initDescriptor,
		CreateToken: createDescriptor,
	}, nil
}

// SpotPriceResult reports the linear-model price with its decoded breakdown.
// The price is carried as a decimal string because slope * sold can exceed
// 64 bits.
type SpotPriceResult struct {
	PriceLamports        string `json:"priceLamports"`
	InitialPriceLamports uint64 `json:"initialPriceLamports"`
	Slope                string `json:"slope"`
	TokensSoldRaw        uint64 `json:"tokensSold"`
}

// SpotPrice decodes the linear pricing model from raw account bytes and
// evaluates it at the current sold counter. This read path never touches the
// constant-product reserves the swap engine prices against.
func (s *Service) SpotPrice(ctx context.Context, launchAddress string) (*SpotPriceResult, error) {
	launchKey, err := parseAddress("launchAddress", launchAddress)
	if err != nil {
		return nil, err
	}

	raw, err := s.fetchRawAccount(ctx, launchKey)
	if err != nil {
		return nil, err
	}

	model, err := launchpad.DecodeSpotPriceModel(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &SpotPriceResult{
		PriceLamports:        model.Price().String(),
		InitialPriceLamports: model.InitialPriceLamports,
		Slope:                model.Slope.String(),
		TokensSoldRaw:        model.TokensSoldRaw,
	}, nil
}

type swapAccounts struct {
	launchAuthority  solana.PublicKey
	solVault         solana.PublicKey
	userTokenAccount solana.PublicKey
}

func (s *Service) resolveSwapAccounts(launchKey solana.PublicKey, state *launchpad.LaunchState, user solana.PublicKey) (*swapAccounts, error) {
	launchAuthority, _, err := launchpad.DeriveLaunchAuthority(s.cfg.LaunchpadProgramID, launchKey)
	if err != nil {
		return nil, fmt.Errorf("derive launch authority: %w", err)
	}
	solVault, _, err := launchpad.DeriveSolVault(s.cfg.LaunchpadProgramID, launchKey)
	if err != nil {
		return nil, fmt.Errorf("derive sol vault: %w", err)
	}
	userTokenAccount, err := launchpad.DeriveTokenAccount(user, *state.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive user token account: %w", err)
	}

	return &swapAccounts{
		launchAuthority:  launchAuthority,
		solVault:         solVault,
		userTokenAccount: userTokenAccount,
	}, nil
}

func (s *Service) fetchState(ctx context.Context, launchKey solana.PublicKey) (*launchpad.LaunchState, error) {
	raw, err := s.fetchRawAccount(ctx, launchKey)
	if err != nil {
		return nil, err
	}

	state, err := launchpad.ParseLaunchState(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: launch %s: %v", ErrDecode, launchKey, err)
	}
	return state, nil
}

func (s *Service) fetchRawAccount(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	resp, err := s.chain.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: s.cfg.Commitment})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, account)
		}
		return nil, fmt.Errorf("%w: fetch account %s: %v", ErrNetwork, account, err)
	}
	if resp == nil || resp.Value == nil {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, account)
	}
	return resp.Value.Data.GetBinary(), nil
}

func mapCurveError(err error) error {
	switch {
	case errors.Is(err, launchpad.ErrZeroReserves),
		errors.Is(err, launchpad.ErrAmountTooSmall),
		errors.Is(err, launchpad.ErrExceedsReserves),
		errors.Is(err, launchpad.ErrAmountOverflow):
		return fmt.Errorf("%w: %v", ErrStateInvariant, err)
	default:
		return err
	}
}

func wholeSolToLamports(solWhole uint64) (uint64, error) {
	lamports := solWhole * launchpad.LamportsPerSol
	if lamports/launchpad.LamportsPerSol != solWhole {
		return 0, fmt.Errorf("%w: solAmount overflows lamports", ErrValidation)
	}
	return lamports, nil
}

func parseAddress(field, raw string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	key, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s is not a valid address: %v", ErrValidation, field, err)
	}
	return key, nil
}
