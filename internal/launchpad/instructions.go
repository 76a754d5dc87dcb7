package launchpad

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// The instruction family is a closed set: initialize, create_token,
// buy_token, sell_token, graduate_to_safe. Each variant carries a fixed
// argument encoding (discriminator ++ borsh args) and a fixed account order
// that is part of the program ABI. Never reorder an account list.

type InitializeArgs struct {
	SolRaiseTarget uint64
	TokensForSale  uint64
}

type TokenMetadata struct {
	Name   string
	Symbol string
	URI    string
}

// NewInitializeInstruction opens a launch: records the raise target and the
// token allocation under the given state account.
func NewInitializeInstruction(
	programID solana.PublicKey,
	state solana.PublicKey,
	authority solana.PublicKey,
	args InitializeArgs,
) (solana.Instruction, error) {
	data, err := encodeArgs(initializeDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteUint64(args.SolRaiseTarget, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteUint64(args.TokensForSale, binary.LittleEndian)
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewCreateTokenInstruction mints the launch token and binds the mint and
// vault into the state account.
func NewCreateTokenInstruction(
	programID solana.PublicKey,
	state solana.PublicKey,
	authority solana.PublicKey,
	mint solana.PublicKey,
	tokenVault solana.PublicKey,
	launchAuthority solana.PublicKey,
	meta TokenMetadata,
) (solana.Instruction, error) {
	data, err := encodeArgs(createTokenDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteString(meta.Name); err != nil {
			return err
		}
		if err := enc.WriteString(meta.Symbol); err != nil {
			return err
		}
		return enc.WriteString(meta.URI)
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(tokenVault, true, false),
		solana.NewAccountMeta(launchAuthority, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewBuyTokenInstruction builds the buy variant. tokenAmount is the raw
// amount computed off chain; maxSolCost caps lamports spent.
func NewBuyTokenInstruction(
	programID solana.PublicKey,
	state solana.PublicKey,
	launchAuthority solana.PublicKey,
	solVault solana.PublicKey,
	tokenVault solana.PublicKey,
	mint solana.PublicKey,
	buyer solana.PublicKey,
	buyerTokenAccount solana.PublicKey,
	tokenAmount uint64,
	maxSolCost uint64,
) (solana.Instruction, error) {
	data, err := encodeArgs(buyTokenDiscriminator, func(enc *bin.Encoder) error {
		if err := enc.WriteUint64(tokenAmount, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteUint64(maxSolCost, binary.LittleEndian)
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(launchAuthority, false, false),
		solana.NewAccountMeta(solVault, true, false),
		solana.NewAccountMeta(tokenVault, true, false),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(buyerTokenAccount, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewSellTokenInstruction builds the sell variant. The SOL received is
// computed on chain; only the raw token amount is carried.
func NewSellTokenInstruction(
	programID solana.PublicKey,
	state solana.PublicKey,
	solVault solana.PublicKey,
	tokenVault solana.PublicKey,
	mint solana.PublicKey,
	seller solana.PublicKey,
	sellerTokenAccount solana.PublicKey,
	tokenAmount uint64,
) (solana.Instruction, error) {
	data, err := encodeArgs(sellTokenDiscriminator, func(enc *bin.Encoder) error {
		return enc.WriteUint64(tokenAmount, binary.LittleEndian)
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(solVault, true, false),
		solana.NewAccountMeta(tokenVault, true, false),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(seller, true, true),
		solana.NewAccountMeta(sellerTokenAccount, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewGraduateInstruction moves a launch from Transition to Safe. The
// platform authority must sign.
func NewGraduateInstruction(
	programID solana.PublicKey,
	state solana.PublicKey,
	platformAuthority solana.PublicKey,
) solana.Instruction {
	data := make([]byte, len(graduateToSafeDiscriminator))
	copy(data, graduateToSafeDiscriminator[:])

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(platformAuthority, true, true),
	}
	return solana.NewInstruction(programID, accounts, data)
}

func encodeArgs(discriminator [8]byte, write func(*bin.Encoder) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if err := write(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode instruction args: %w", err)
	}
	return buf.Bytes(), nil
}
