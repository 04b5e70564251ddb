package writer

import (
	"context"
	"fmt"
	"time"

	"bomet/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// CopyThreshold is the batch size from which WriteBatch stages rows with COPY.
const CopyThreshold = 100

// ArchiveWriter writes batches of archive rows.
type ArchiveWriter interface {
	// WriteBatch upserts rows in a single transaction. Duplicate ids are
	// merged first.
	WriteBatch(ctx context.Context, rows []ArchiveRow) error

	Close() error
}

// PGWriter implements ArchiveWriter on a pgx pool.
type PGWriter struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

type PostgresConfig struct {
	URI             string
	MinConns        int32
	MaxConns        int32
	MaxConnLifetime time.Duration
}

const schema = `
	CREATE TABLE IF NOT EXISTS score_archive (
		id            TEXT PRIMARY KEY,
		player_name   TEXT,
		score         DOUBLE PRECISION,
		submitted_at  TIMESTAMPTZ,
		stats         JSONB,
		removed_at    TIMESTAMPTZ,
		last_event_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS score_archive_rank_idx
		ON score_archive (score DESC, submitted_at ASC)
		WHERE removed_at IS NULL;
`

const mergeSet = `
	ON CONFLICT (id) DO UPDATE SET
		player_name   = COALESCE(EXCLUDED.player_name, score_archive.player_name),
		score         = COALESCE(EXCLUDED.score, score_archive.score),
		submitted_at  = COALESCE(EXCLUDED.submitted_at, score_archive.submitted_at),
		stats         = COALESCE(EXCLUDED.stats, score_archive.stats),
		removed_at    = COALESCE(EXCLUDED.removed_at, score_archive.removed_at),
		last_event_at = GREATEST(EXCLUDED.last_event_at, score_archive.last_event_at)
`

// NewPostgresWriter connects the pool and pings it.
func NewPostgresWriter(ctx context.Context, cfg PostgresConfig, l *logger.Logger) (*PGWriter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PGWriter{pool: pool, logger: l}, nil
}

// EnsureSchema creates score_archive and its ranking index if missing.
func (w *PGWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

func (w *PGWriter) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

func (w *PGWriter) WriteBatch(ctx context.Context, rows []ArchiveRow) error {
	rows = MergeRows(rows)
	if len(rows) == 0 {
		return nil
	}

	if ShouldUseCopy(rows) {
		return w.writeBatchCopy(ctx, rows)
	}
	return w.writeBatchInsert(ctx, rows)
}

func (w *PGWriter) writeBatchInsert(ctx context.Context, rows []ArchiveRow) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO score_archive (id, player_name, score, submitted_at, stats, removed_at, last_event_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)` + mergeSet + `
		RETURNING (xmax = 0) AS inserted`

	for _, r := range rows {
		var inserted bool
		if err := tx.QueryRow(ctx, query, r.values()...).Scan(&inserted); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}

		status := "updated"
		if inserted {
			status = "inserted"
		}
		w.logger.Debug("archive upsert", zap.String("id", r.ID), zap.String("status", status))
	}
	return tx.Commit(ctx)
}

func (w *PGWriter) writeBatchCopy(ctx context.Context, rows []ArchiveRow) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "CREATE TEMP TABLE score_archive_stage (LIKE score_archive INCLUDING DEFAULTS) ON COMMIT DROP")
	if err != nil {
		return fmt.Errorf("failed to create stage table: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"score_archive_stage"}, archiveColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return rows[i].values(), nil
		}))
	if err != nil {
		return fmt.Errorf("copy from failed: %w", err)
	}

	const upsertQuery = `
		INSERT INTO score_archive (id, player_name, score, submitted_at, stats, removed_at, last_event_at)
		SELECT id, player_name, score, submitted_at, stats, removed_at, last_event_at
		FROM score_archive_stage` + mergeSet

	if _, err := tx.Exec(ctx, upsertQuery); err != nil {
		return fmt.Errorf("upsert from stage table failed: %w", err)
	}
	w.logger.Debug("archive copy", zap.Int64("rows", copied))

	return tx.Commit(ctx)
}

func (w *PGWriter) Close() error {
	w.pool.Close()
	return nil
}

// ShouldUseCopy reports whether a batch is large enough for the COPY path.
func ShouldUseCopy(rows []ArchiveRow) bool {
	return len(rows) >= CopyThreshold
}
