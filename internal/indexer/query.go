package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

var ErrNotFound = errors.New("not found")

type LaunchFilter struct {
	Status  string
	Creator string
	Limit   int
	Offset  int
}

// LaunchRecord is the stored snapshot of a launch account. Reserve-scale
// integers travel as decimal strings because k exceeds 64 bits.
type LaunchRecord struct {
	Address              string  `json:"address"`
	Creator              string  `json:"creator"`
	PlatformAuthority    string  `json:"platform_authority"`
	Status               string  `json:"status"`
	Mint                 *string `json:"mint,omitempty"`
	TokenVault           *string `json:"token_vault,omitempty"`
	VirtualSolReserves   string  `json:"virtual_sol_reserves"`
	VirtualTokenReserves string  `json:"virtual_token_reserves"`
	K                    string  `json:"k"`
	SolRaised            string  `json:"sol_raised"`
	TokensSold           string  `json:"tokens_sold"`
	SolRaiseTarget       string  `json:"sol_raise_target"`
	TokensForSale        string  `json:"tokens_for_sale"`
	Slot                 uint64  `json:"slot"`
	UpdatedAt            int64   `json:"updated_at"`
}

type CampaignRecord struct {
	LaunchAddress string `json:"launch_address"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	URI           string `json:"uri"`
	Description   string `json:"description"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

func (s *Store) ListLaunches(ctx context.Context, filter LaunchFilter) ([]LaunchRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	clauses := []string{"1 = 1"}
	args := make([]any, 0, 4)

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Creator != "" {
		clauses = append(clauses, "creator = ?")
		args = append(args, filter.Creator)
	}

	query := fmt.Sprintf(`
		SELECT
			address, creator, platform_authority, status, mint, token_vault,
			virtual_sol_reserves, virtual_token_reserves, k,
			sol_raised, tokens_sold, sol_raise_target, tokens_for_sale,
			slot, updated_at
		FROM launches
		WHERE %s
		ORDER BY updated_at DESC, address ASC
		LIMIT ? OFFSET ?
	`, strings.Join(clauses, " AND "))
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]LaunchRecord, 0, limit)
	for rows.Next() {
		item, err := scanLaunchRecord(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	return items, limit, offset, nil
}

func (s *Store) GetLaunch(ctx context.Context, address string) (LaunchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			address, creator, platform_authority, status, mint, token_vault,
			virtual_sol_reserves, virtual_token_reserves, k,
			sol_raised, tokens_sold, sol_raise_target, tokens_for_sale,
			slot, updated_at
		FROM launches
		WHERE address = ?
		LIMIT 1
	`, address)
	if err != nil {
		return LaunchRecord{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return LaunchRecord{}, err
		}
		return LaunchRecord{}, ErrNotFound
	}
	return scanLaunchRecord(rows)
}

func (s *Store) GetCampaign(ctx context.Context, launchAddress string) (CampaignRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT launch_address, name, symbol, uri, description, created_at, updated_at
		FROM campaigns
		WHERE launch_address = ?
	`, launchAddress)

	var item CampaignRecord
	err := row.Scan(
		&item.LaunchAddress,
		&item.Name,
		&item.Symbol,
		&item.URI,
		&item.Description,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CampaignRecord{}, ErrNotFound
	}
	if err != nil {
		return CampaignRecord{}, err
	}
	return item, nil
}

func scanLaunchRecord(rows *sql.Rows) (LaunchRecord, error) {
	var item LaunchRecord
	var mint, tokenVault sql.NullString
	var slot int64
	if err := rows.Scan(
		&item.Address,
		&item.Creator,
		&item.PlatformAuthority,
		&item.Status,
		&mint,
		&tokenVault,
		&item.VirtualSolReserves,
		&item.VirtualTokenReserves,
		&item.K,
		&item.SolRaised,
		&item.TokensSold,
		&item.SolRaiseTarget,
		&item.TokensForSale,
		&slot,
		&item.UpdatedAt,
	); err != nil {
		return LaunchRecord{}, err
	}
	if mint.Valid {
		item.Mint = &mint.String
	}
	if tokenVault.Valid {
		item.TokenVault = &tokenVault.String
	}
	item.Slot = uint64(slot)
	return item, nil
}

func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
