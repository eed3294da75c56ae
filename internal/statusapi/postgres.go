package statusapi

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
)

const (
	createHeartbeatTable = `CREATE TABLE IF NOT EXISTS heartbeat (
	peer_id     text PRIMARY KEY,
	modified_at timestamptz NOT NULL,
	uuid        text NOT NULL DEFAULT '',
	ver         text NOT NULL DEFAULT ''
)`

	upsertHeartbeat = `INSERT INTO heartbeat (peer_id, modified_at, uuid, ver)
VALUES ($1, $2, $3, $4)
ON CONFLICT (peer_id) DO UPDATE
SET modified_at = EXCLUDED.modified_at, uuid = EXCLUDED.uuid, ver = EXCLUDED.ver`

	selectOnline = `SELECT peer_id FROM heartbeat WHERE peer_id = ANY($1) AND modified_at >= $2`
)

// PostgresHeartbeats is a [HeartbeatStore] backed by a Postgres table.
type PostgresHeartbeats struct {
	db *sql.DB
}

// OpenPostgresHeartbeats connects to dsn through the pgx driver.
// The connection is verified by [PostgresHeartbeats.Migrate].
func OpenPostgresHeartbeats(dsn string) (*PostgresHeartbeats, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresHeartbeats{db: db}, nil
}

// NewPostgresHeartbeats wraps an existing database handle.
func NewPostgresHeartbeats(db *sql.DB) *PostgresHeartbeats {
	return &PostgresHeartbeats{db: db}
}

// Migrate creates the heartbeat table if it does not exist.
func (s *PostgresHeartbeats) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createHeartbeatTable); err != nil {
		return fmt.Errorf("postgres: failed to create heartbeat table: %w", err)
	}
	return nil
}

// Beat upserts the device's heartbeat row.
func (s *PostgresHeartbeats) Beat(ctx context.Context, hb Heartbeat) error {
	if _, err := s.db.ExecContext(ctx, upsertHeartbeat, hb.ID, hb.At, hb.UUID, hb.Version); err != nil {
		return fmt.Errorf("postgres: failed to record heartbeat: %w", err)
	}
	return nil
}

// OnlineSince selects the ids with a heartbeat at or after since.
func (s *PostgresHeartbeats) OnlineSince(ctx context.Context, ids []string, since time.Time) (map[string]bool, error) {
	online := make(map[string]bool, len(ids))
	for _, id := range ids {
		online[id] = false
	}
	if len(ids) == 0 {
		return online, nil
	}

	rows, err := s.db.QueryContext(ctx, selectOnline, ids, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query heartbeats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan heartbeat: %w", err)
		}
		online[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read heartbeats: %w", err)
	}
	return online, nil
}

// Ping checks that the database is reachable.
func (s *PostgresHeartbeats) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *PostgresHeartbeats) Close() error {
	return s.db.Close()
}
