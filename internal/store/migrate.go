package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// migration is one forward-only schema change. The SQL is shared by both
// drivers, so it sticks to the common subset of SQLite and PostgreSQL.
type migration struct {
	Version int64
	Name    string
	Up      []string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_snapshots",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS snapshots (
	id VARCHAR(36) PRIMARY KEY,
	checksum VARCHAR(64) NOT NULL,
	operator_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	payload TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at)`,
		},
	},
	{
		Version: 2,
		Name:    "create_snapshot_operators",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS snapshot_operators (
	snapshot_id VARCHAR(36) NOT NULL REFERENCES snapshots(id),
	type VARCHAR(255) NOT NULL,
	module VARCHAR(255),
	descriptor TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, type)
)`,
		},
	},
}

// migrate creates the schema_migrations table and applies pending
// migrations, each in its own transaction.
func (s *Store) migrate(ctx context.Context) error {
	const tracker = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, tracker); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		start := time.Now()
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.Up {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx,
				s.rebind("INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)"),
				m.Version, m.Name, s.now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		s.logger.Info("applied migration", zap.String("name", m.Name), zap.Duration("took", time.Since(start)))
	}
	return nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return applied, nil
}
