// Package store persists marshalled operator lists as snapshots.
//
// A snapshot is one marshalled list with a UUID, the SHA-256 of its JSON
// payload and a creation time. Each descriptor is also stored on its own
// row so a single operator can be read without decoding the whole list.
// SQLite (mattn/go-sqlite3) and PostgreSQL (pgx stdlib) are supported.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/windmill-io/windmill/internal/metadata"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Snapshot is one stored operator list.
type Snapshot struct {
	ID            string
	Checksum      string
	OperatorCount int
	CreatedAt     time.Time

	// Operators is nil for snapshots returned by List.
	Operators []map[string]any
}

// Store reads and writes snapshots.
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to dsn with driver and migrates the schema.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases alive and serializes
		// writers the way SQLite wants.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := New(db, driver, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database without migrating it.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	s := &Store{db: db, driver: driver, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checksum returns the hex SHA-256 of a serialized payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Save stores list as a new snapshot. When the latest snapshot has the same
// checksum nothing is written and that snapshot is returned with created
// set to false.
func (s *Store) Save(ctx context.Context, list []map[string]any) (snap *Snapshot, created bool, err error) {
	if list == nil {
		list = []map[string]any{}
	}
	payload, err := metadata.Serialize(list)
	if err != nil {
		return nil, false, err
	}
	checksum := Checksum(payload)

	latest, err := s.latestHeader(ctx)
	switch {
	case err == nil && latest.Checksum == checksum:
		s.logger.Debug("snapshot unchanged", zap.String("id", latest.ID))
		latest.Operators = list
		return latest, false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	snap = &Snapshot{
		ID:            uuid.NewString(),
		Checksum:      checksum,
		OperatorCount: len(list),
		CreatedAt:     s.now().UTC(),
		Operators:     list,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO snapshots (id, checksum, operator_count, created_at, payload) VALUES (?, ?, ?, ?, ?)"),
			snap.ID, snap.Checksum, snap.OperatorCount, snap.CreatedAt, string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", convertDBError(err))
		}

		stmt, err := tx.PrepareContext(ctx,
			s.rebind("INSERT INTO snapshot_operators (snapshot_id, type, module, descriptor) VALUES (?, ?, ?, ?)"))
		if err != nil {
			return fmt.Errorf("failed to prepare operator insert: %w", err)
		}
		defer stmt.Close()

		for i, dict := range list {
			d, err := metadata.FromDict(dict)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			raw, err := json.Marshal(dict)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			var module sql.NullString
			if d.Module != nil {
				module = sql.NullString{String: *d.Module, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, snap.ID, d.Type, module, string(raw)); err != nil {
				return fmt.Errorf("failed to insert operator %s: %w", d.Type, convertDBError(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("snapshot saved",
		zap.String("id", snap.ID),
		zap.Int("operators", snap.OperatorCount),
		zap.String("checksum", snap.Checksum))
	return snap, true, nil
}

const snapshotColumns = "id, checksum, operator_count, created_at"

// Latest returns the most recent snapshot with its operators.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	snap, err := s.latestHeader(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, snap.ID)
}

func (s *Store) latestHeader(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1")
	snap, err := scanHeader(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", convertDBError(err))
	}
	return snap, nil
}

// Get returns a snapshot with its operators. The payload is verified
// against the stored checksum.
func (s *Store) Get(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+snapshotColumns+", payload FROM snapshots WHERE id = ?"), id)

	snap := &Snapshot{}
	var payload string
	if err := row.Scan(&snap.ID, &snap.Checksum, &snap.OperatorCount, &snap.CreatedAt, &payload); err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, convertDBError(err))
	}
	if Checksum([]byte(payload)) != snap.Checksum {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrCorrupt)
	}

	ops, err := metadata.Deserialize([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	snap.Operators = ops
	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

// List returns snapshot headers, newest first. A limit of zero or less
// returns every snapshot.
func (s *Store) List(ctx context.Context, limit int) ([]*Snapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM snapshots ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := scanHeader(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

// Descriptor returns one operator's descriptor from a snapshot.
func (s *Store) Descriptor(ctx context.Context, snapshotID, typeName string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT descriptor FROM snapshot_operators WHERE snapshot_id = ? AND type = ?"),
		snapshotID, typeName).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get operator %s: %w", typeName, convertDBError(err))
	}

	var dict map[string]any
	if err := json.Unmarshal([]byte(raw), &dict); err != nil {
		return nil, fmt.Errorf("operator %s: %w", typeName, err)
	}
	return dict, nil
}

// Delete removes a snapshot and its operator rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM snapshot_operators WHERE snapshot_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete operators: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM snapshots WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHeader(row scanner) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := row.Scan(&snap.ID, &snap.Checksum, &snap.OperatorCount, &snap.CreatedAt); err != nil {
		return nil, err
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

// withTx runs fn in a transaction, committing on success and rolling back
// on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
