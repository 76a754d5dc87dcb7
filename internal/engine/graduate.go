package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/coldbell/launchpad/backend/internal/launchpad"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const confirmationPollInterval = 700 * time.Millisecond

// GraduateResult reports a confirmed graduation: the transaction signature
// and the observed status change, re-fetched from chain after confirmation.
type GraduateResult struct {
	Signature      string `json:"signature"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
}

// Graduate moves a launch from Transition to Safe. The gate runs before
// anything touches the network submission path: wrong phase or an authority
// mismatch fails without a transaction ever being built. Once sent, the call
// blocks until the network confirms, rejects, or the blockhash expires;
// an in-flight submission is never abandoned.
func (s *Service) Graduate(ctx context.Context, launchAddress string) (*GraduateResult, error) {
	launchKey, err := parseAddress("launchAddress", launchAddress)
	if err != nil {
		return nil, err
	}

	state, err := s.fetchState(ctx, launchKey)
	if err != nil {
		return nil, err
	}
	if err := requireTransition(state); err != nil {
		return nil, err
	}
	if !s.signer.PublicKey().Equals(state.PlatformAuthority) {
		return nil, fmt.Errorf("%w: held key %s is not the platform authority for launch %s",
			ErrAuthorization, s.signer.PublicKey(), launchKey)
	}
	previousStatus := state.Status

	ix := launchpad.NewGraduateInstruction(s.cfg.LaunchpadProgramID, launchKey, s.signer.PublicKey())

	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	signature, lastValidBlockHeight, err := s.sendTransaction(txCtx, []solana.Instruction{ix})
	if err != nil {
		return nil, err
	}
	if err := s.waitForConfirmation(txCtx, signature, lastValidBlockHeight); err != nil {
		return nil, fmt.Errorf("confirm graduate %s: %w", signature, err)
	}

	// Re-fetch so the reported transition is what the chain recorded, not
	// what we expect it to be.
	confirmed, err := s.fetchState(ctx, launchKey)
	if err != nil {
		return nil, fmt.Errorf("re-fetch after graduate %s: %w", signature, err)
	}

	s.logger.Info("launch graduated",
		"launch", launchKey,
		"signature", signature,
		"previous_status", previousStatus,
		"new_status", confirmed.Status,
	)

	return &GraduateResult{
		Signature:      signature.String(),
		PreviousStatus: previousStatus.String(),
		NewStatus:      confirmed.Status.String(),
	}, nil
}

func (s *Service) sendTransaction(ctx context.Context, instructions []solana.Instruction) (solana.Signature, uint64, error) {
	recent, err := s.chain.GetLatestBlockhash(ctx, s.cfg.Commitment)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("%w: get latest blockhash: %v", ErrNetwork, err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(s.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.signer.PublicKey().Equals(key) {
			return &s.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       s.cfg.SkipPreflight,
		PreflightCommitment: s.cfg.Commitment,
	}
	if s.cfg.MaxRetries != nil {
		retries := *s.cfg.MaxRetries
		opts.MaxRetries = &retries
	}

	sig, err := s.chain.SendTransactionWithOpts(ctx, tx, opts)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("%w: send transaction: %v", ErrNetwork, err)
	}
	return sig, recent.Value.LastValidBlockHeight, nil
}

func (s *Service) waitForConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	ticker := time.NewTicker(confirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
		case <-ticker.C:
			result, err := s.chain.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				// Not observed yet; a passed expiry height means the
				// blockhash can no longer land.
				height, heightErr := s.chain.GetBlockHeight(ctx, s.cfg.Commitment)
				if heightErr == nil && height > lastValidBlockHeight {
					return fmt.Errorf("%w: block height %d passed last valid %d", ErrExpiry, height, lastValidBlockHeight)
				}
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
