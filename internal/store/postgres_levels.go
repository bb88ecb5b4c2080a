package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ladder-maker-go/ladder"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresConfig holds connection parameters for the PostgreSQL pool.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"maxConns"`
	MinConns int    `yaml:"minConns"`
}

// NewPostgresPool connects, pings and returns a pool.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// RunMigrations applies embedded SQL files in lexicographic order; every file is idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", entry.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("postgres: exec migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// PostgresLevelRepository 实现 ladder.Repository。数值列以 NUMERIC 保存，经 text 与 decimal 互转。
type PostgresLevelRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresLevelRepository(pool *pgxpool.Pool) *PostgresLevelRepository {
	return &PostgresLevelRepository{pool: pool}
}

const upsertLevelSQL = `
	INSERT INTO ladder_levels (name, delta, original_volume, seeded, reference,
		volume_sell, volume_buy, inventory, opposite_inventory, updated_at)
	VALUES ($1, $2::numeric, $3::numeric, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10)
	ON CONFLICT (name) DO UPDATE SET
		delta              = EXCLUDED.delta,
		original_volume    = EXCLUDED.original_volume,
		seeded             = EXCLUDED.seeded,
		reference          = EXCLUDED.reference,
		volume_sell        = EXCLUDED.volume_sell,
		volume_buy         = EXCLUDED.volume_buy,
		inventory          = EXCLUDED.inventory,
		opposite_inventory = EXCLUDED.opposite_inventory,
		updated_at         = EXCLUDED.updated_at`

func (r *PostgresLevelRepository) List(ctx context.Context) ([]ladder.State, error) {
	const query = `
		SELECT name, delta::text, original_volume::text, seeded, reference::text,
			volume_sell::text, volume_buy::text, inventory::text, opposite_inventory::text, updated_at
		FROM ladder_levels ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list levels: %w", err)
	}
	defer rows.Close()

	var states []ladder.State
	for rows.Next() {
		var (
			s   ladder.State
			raw [7]string
		)
		if err := rows.Scan(&s.Name, &raw[0], &raw[1], &s.Seeded, &raw[2],
			&raw[3], &raw[4], &raw[5], &raw[6], &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan level: %w", err)
		}
		vals, err := parseDecimals(raw[:])
		if err != nil {
			return nil, fmt.Errorf("postgres: level %s: %w", s.Name, err)
		}
		s.Delta, s.OriginalVolume, s.Reference = vals[0], vals[1], vals[2]
		s.VolumeSell, s.VolumeBuy = vals[3], vals[4]
		s.Inventory, s.OppositeInventory = vals[5], vals[6]
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate levels: %w", err)
	}
	return states, nil
}

func (r *PostgresLevelRepository) Add(ctx context.Context, s ladder.State) error {
	const query = `
		INSERT INTO ladder_levels (name, delta, original_volume, seeded, reference,
			volume_sell, volume_buy, inventory, opposite_inventory, updated_at)
		VALUES ($1, $2::numeric, $3::numeric, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10)
		ON CONFLICT (name) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, stateArgs(s)...)
	if err != nil {
		return fmt.Errorf("postgres: add level %s: %w", s.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("level %s: %w", s.Name, ErrExists)
	}
	return nil
}

func (r *PostgresLevelRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ladder_levels WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("postgres: delete level %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("level %s: %w", name, ErrNotFound)
	}
	return nil
}

func (r *PostgresLevelRepository) UpdateSettings(ctx context.Context, name string, delta, volume decimal.Decimal) error {
	const query = `
		UPDATE ladder_levels
		SET delta = $2::numeric, original_volume = $3::numeric,
			volume_sell = -$3::numeric, volume_buy = $3::numeric, updated_at = NOW()
		WHERE name = $1`

	tag, err := r.pool.Exec(ctx, query, name, delta.String(), volume.String())
	if err != nil {
		return fmt.Errorf("postgres: update level %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("level %s: %w", name, ErrNotFound)
	}
	return nil
}

// SaveStates 在一个事务里批量写入所有档位状态。
func (r *PostgresLevelRepository) SaveStates(ctx context.Context, states []ladder.State) error {
	if len(states) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range states {
			batch.Queue(upsertLevelSQL, stateArgs(s)...)
		}
		br := tx.SendBatch(ctx, batch)
		for _, s := range states {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("postgres: save level %s: %w", s.Name, err)
			}
		}
		return br.Close()
	})
}

func stateArgs(s ladder.State) []any {
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return []any{
		s.Name,
		s.Delta.String(),
		s.OriginalVolume.String(),
		s.Seeded,
		s.Reference.String(),
		s.VolumeSell.String(),
		s.VolumeBuy.String(),
		s.Inventory.String(),
		s.OppositeInventory.String(),
		updated,
	}
}

func parseDecimals(raw []string) ([]decimal.Decimal, error) {
	res := make([]decimal.Decimal, len(raw))
	for i, v := range raw {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", v, err)
		}
		res[i] = parsed
	}
	return res, nil
}

var _ ladder.Repository = (*PostgresLevelRepository)(nil)
var _ ladder.Repository = (*MemoryLevelRepository)(nil)
