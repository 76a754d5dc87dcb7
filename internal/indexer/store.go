package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coldbell/launchpad/backend/internal/launchpad"
	"github.com/gagliardetto/solana-go"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *DB
}

type DB struct {
	raw *sql.DB
}

type Tx struct {
	raw *sql.Tx
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{raw: tx}, nil
}

func (db *DB) Close() error {
	return db.raw.Close()
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) Commit() error {
	return tx.raw.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.raw.Rollback()
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func NewStore(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: &DB{raw: db}}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			id BIGINT PRIMARY KEY CHECK (id = 1),
			last_slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS launches (
			address TEXT PRIMARY KEY,
			creator TEXT NOT NULL,
			platform_authority TEXT NOT NULL,
			status TEXT NOT NULL,
			mint TEXT,
			token_vault TEXT,
			virtual_sol_reserves TEXT NOT NULL,
			virtual_token_reserves TEXT NOT NULL,
			k TEXT NOT NULL,
			sol_raised TEXT NOT NULL,
			tokens_sold TEXT NOT NULL,
			sol_raise_target TEXT NOT NULL,
			tokens_for_sale TEXT NOT NULL,
			slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_launches_status_updated ON launches(status, updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_launches_creator ON launches(creator);`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			launch_address TEXT PRIMARY KEY REFERENCES launches(address) ON DELETE CASCADE,
			name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			uri TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sol_price_ticks (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			source TEXT NOT NULL,
			feed_id TEXT NOT NULL,
			slot BIGINT NOT NULL,
			publish_time BIGINT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			conf DOUBLE PRECISION NOT NULL,
			expo INTEGER NOT NULL,
			received_at BIGINT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sol_price_ticks_dedupe ON sol_price_ticks(symbol, source, publish_time, slot);`,
		`CREATE INDEX IF NOT EXISTS idx_sol_price_ticks_symbol_time ON sol_price_ticks(symbol, publish_time DESC, slot DESC, id DESC);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *Store) UpsertSyncStateTx(ctx context.Context, tx *Tx, slot uint64) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_slot, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_slot = excluded.last_slot,
			updated_at = excluded.updated_at
	`, int64(slot), now)
	return err
}

func (s *Store) UpsertLaunchTx(ctx context.Context, tx *Tx, address solana.PublicKey, slot uint64, state *launchpad.LaunchState) error {
	var mint, tokenVault any
	if state.Mint != nil {
		mint = state.Mint.String()
	}
	if state.TokenVault != nil {
		tokenVault = state.TokenVault.String()
	}
	now := time.Now().Unix()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO launches (
			address, creator, platform_authority, status, mint, token_vault,
			virtual_sol_reserves, virtual_token_reserves, k,
			sol_raised, tokens_sold, sol_raise_target, tokens_for_sale,
			slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			creator = excluded.creator,
			platform_authority = excluded.platform_authority,
			status = excluded.status,
			mint = excluded.mint,
			token_vault = excluded.token_vault,
			virtual_sol_reserves = excluded.virtual_sol_reserves,
			virtual_token_reserves = excluded.virtual_token_reserves,
			k = excluded.k,
			sol_raised = excluded.sol_raised,
			tokens_sold = excluded.tokens_sold,
			sol_raise_target = excluded.sol_raise_target,
			tokens_for_sale = excluded.tokens_for_sale,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		address.String(),
		state.Creator.String(),
		state.PlatformAuthority.String(),
		state.Status.String(),
		mint,
		tokenVault,
		strconv.FormatUint(state.VirtualSolReserves, 10),
		strconv.FormatUint(state.VirtualTokenReserves, 10),
		state.K.BigInt().String(),
		strconv.FormatUint(state.SolRaised, 10),
		strconv.FormatUint(state.TokensSold, 10),
		strconv.FormatUint(state.SolRaiseTarget, 10),
		strconv.FormatUint(state.TokensForSale, 10),
		int64(slot),
		now,
	)
	return err
}

func (s *Store) UpsertCampaign(ctx context.Context, input CampaignInput) error {
	name := strings.TrimSpace(input.Name)
	symbol := strings.TrimSpace(input.Symbol)
	if input.LaunchAddress == "" || name == "" || symbol == "" {
		return fmt.Errorf("launch address, name, symbol are required")
	}
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (launch_address, name, symbol, uri, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(launch_address) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			uri = excluded.uri,
			description = excluded.description,
			updated_at = excluded.updated_at
	`,
		input.LaunchAddress,
		name,
		symbol,
		strings.TrimSpace(input.URI),
		strings.TrimSpace(input.Description),
		now,
		now,
	)
	return err
}

type CampaignInput struct {
	LaunchAddress string
	Name          string
	Symbol        string
	URI           string
	Description   string
}
