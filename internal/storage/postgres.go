package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const episodesSchema = `
CREATE TABLE IF NOT EXISTS episodes (
	id           TEXT PRIMARY KEY,
	number       INTEGER NOT NULL,
	behavior     TEXT NOT NULL,
	steps        INTEGER NOT NULL,
	agents       INTEGER NOT NULL,
	total_reward DOUBLE PRECISION NOT NULL,
	mean_reward  DOUBLE PRECISION NOT NULL,
	truncated    BOOLEAN NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	duration_ns  BIGINT NOT NULL,
	env_stats    JSONB
);
CREATE INDEX IF NOT EXISTS episodes_finished_at_idx ON episodes (finished_at);`

const episodeColumns = `id, number, behavior, steps, agents, total_reward, mean_reward,
	truncated, started_at, finished_at, duration_ns, env_stats`

// PostgresBackend implements Backend backed by PostgreSQL
type PostgresBackend struct {
	db *sql.DB
}

// OpenPostgres connects to databaseURL and makes sure the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	backend := NewPostgresBackend(db)
	if err := backend.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

// NewPostgresBackend creates a new PostgreSQL-backed store
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Migrate creates the episodes table if needed.
func (p *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, episodesSchema); err != nil {
		return fmt.Errorf("failed to migrate episodes table: %w", err)
	}
	return nil
}

// Store implements Backend.Store
func (p *PostgresBackend) Store(ctx context.Context, record *EpisodeRecord) error {
	prepareRecord(record)

	var envStats []byte
	if len(record.EnvStats) > 0 {
		var err error
		if envStats, err = json.Marshal(record.EnvStats); err != nil {
			return fmt.Errorf("failed to encode env stats: %w", err)
		}
	}

	query := `
		INSERT INTO episodes (` + episodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			number = EXCLUDED.number, behavior = EXCLUDED.behavior, steps = EXCLUDED.steps,
			agents = EXCLUDED.agents, total_reward = EXCLUDED.total_reward,
			mean_reward = EXCLUDED.mean_reward, truncated = EXCLUDED.truncated,
			started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at,
			duration_ns = EXCLUDED.duration_ns, env_stats = EXCLUDED.env_stats`

	_, err := p.db.ExecContext(ctx, query,
		record.ID, record.Number, record.Behavior, record.Steps, record.Agents,
		record.TotalReward, record.MeanReward, record.Truncated,
		record.StartedAt, record.FinishedAt, int64(record.Duration), nullableJSON(envStats))
	if err != nil {
		return fmt.Errorf("failed to store episode: %w", err)
	}
	return nil
}

// Get implements Backend.Get
func (p *PostgresBackend) Get(ctx context.Context, id string) (*EpisodeRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = $1`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return record, nil
}

// List implements Backend.List
func (p *PostgresBackend) List(ctx context.Context, limit int) ([]*EpisodeRecord, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes ORDER BY finished_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var out []*EpisodeRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// GetStats implements Backend.GetStats
func (p *PostgresBackend) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{EpisodesByBehavior: make(map[string]uint64)}

	var oldest, newest sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(steps), 0), COALESCE(AVG(mean_reward), 0),
			MIN(finished_at), MAX(finished_at)
		FROM episodes`).Scan(&stats.TotalEpisodes, &stats.TotalSteps, &stats.MeanReward, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestFinishedAt = &oldest.Time
	}
	if newest.Valid {
		stats.NewestFinishedAt = &newest.Time
	}

	rows, err := p.db.QueryContext(ctx, `SELECT behavior, COUNT(*) FROM episodes GROUP BY behavior`)
	if err != nil {
		return nil, fmt.Errorf("failed to count behaviors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var behavior string
		var count uint64
		if err := rows.Scan(&behavior, &count); err != nil {
			return nil, fmt.Errorf("failed to scan behavior count: %w", err)
		}
		stats.EpisodesByBehavior[behavior] = count
	}
	return stats, rows.Err()
}

// Clear implements Backend.Clear
func (p *PostgresBackend) Clear(ctx context.Context, keepLastN uint32) (uint64, error) {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM episodes WHERE id NOT IN (
			SELECT id FROM episodes ORDER BY finished_at DESC LIMIT $1
		)`, keepLastN)
	if err != nil {
		return 0, fmt.Errorf("failed to clear episodes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return uint64(n), nil
}

// Close implements Backend.Close
func (p *PostgresBackend) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*EpisodeRecord, error) {
	var r EpisodeRecord
	var duration int64
	var envStats []byte
	err := row.Scan(&r.ID, &r.Number, &r.Behavior, &r.Steps, &r.Agents,
		&r.TotalReward, &r.MeanReward, &r.Truncated,
		&r.StartedAt, &r.FinishedAt, &duration, &envStats)
	if err != nil {
		return nil, err
	}
	r.Duration = time.Duration(duration)
	if len(envStats) > 0 {
		if err := json.Unmarshal(envStats, &r.EnvStats); err != nil {
			return nil, fmt.Errorf("decode env stats: %w", err)
		}
	}
	return &r, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
