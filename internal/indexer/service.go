package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/launchpad/backend/internal/config"
	"github.com/coldbell/launchpad/backend/internal/launchpad"
)

type Service struct {
	cfg    config.IndexerConfig
	rpc    *rpc.Client
	store  *Store
	logger *slog.Logger
}

func New(cfg config.IndexerConfig, logger *slog.Logger) (*Service, error) {
	store, err := NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &Service{
		cfg:    cfg,
		rpc:    rpc.New(cfg.RPCURL),
		store:  store,
		logger: logger,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("indexer started",
		"rpc", s.cfg.RPCURL,
		"db_driver", "postgres",
		"commitment", s.cfg.Commitment,
		"program", s.cfg.LaunchpadProgramID,
	)

	if err := s.syncOnce(ctx); err != nil {
		s.logger.Error("initial sync failed", "err", err)
	}
	if s.cfg.EnableSolPriceStream {
		go s.runSolPriceStream(ctx)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				s.logger.Error("sync failed", "err", err)
			}
		}
	}
}

func (s *Service) syncOnce(ctx context.Context) error {
	slot, err := s.rpc.GetSlot(ctx, s.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}

	launches := 0
	err = s.store.WithTx(ctx, func(tx *Tx) error {
		count, err := s.syncLaunchAccounts(ctx, tx, slot)
		if err != nil {
			return err
		}
		launches = count
		return s.store.UpsertSyncStateTx(ctx, tx, slot)
	})
	if err != nil {
		return err
	}

	s.logger.Info("sync complete", "slot", slot, "launches", launches)
	return nil
}

func (s *Service) syncLaunchAccounts(ctx context.Context, tx *Tx, slot uint64) (int, error) {
	programID := s.cfg.LaunchpadProgramID

	accounts, err := s.rpc.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
		Commitment: s.cfg.Commitment,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(launchpad.LaunchStateDiscriminator[:])}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("scan launch accounts for program %s: %w", programID, err)
	}

	stored := 0
	for _, item := range accounts {
		if item == nil || item.Account == nil {
			continue
		}

		state, err := launchpad.ParseLaunchState(item.Account.Data.GetBinary())
		if err != nil {
			s.logger.Warn("failed to index launch account",
				"program", programID,
				"pubkey", item.Pubkey,
				"slot", slot,
				"err", err,
			)
			continue
		}

		if err := s.store.UpsertLaunchTx(ctx, tx, item.Pubkey, slot, state); err != nil {
			return stored, fmt.Errorf("upsert launch %s: %w", item.Pubkey, err)
		}
		stored++
	}

	return stored, nil
}
