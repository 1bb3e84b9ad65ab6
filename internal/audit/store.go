// Package audit provides PostgreSQL-backed storage for relayed actions.
// Every action a script sends to a frontend is logged with its outcome, so a
// failed batch run can be reconstructed after the session is gone.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MaxParametersLength bounds the stored parameter string. Longer values are
// truncated.
const MaxParametersLength = 4096

// Store manages the action log in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Entry is one relayed action.
type Entry struct {
	ID         int64
	SessionID  uint32
	RequestID  string
	Node       string
	Path       string
	Action     string
	Parameters string
	Success    bool
	Message    string
	Duration   time.Duration
	CreatedAt  time.Time
}

// NewStore creates a new audit store backed by the given database handle.
// The schema must already be migrated.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL, applies pending migrations and returns a
// ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("audit: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("audit: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("audit: migrate up: %w", err)
	}
	return nil
}

// Record inserts an action into the log.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Action == "" {
		return errors.New("audit: empty action")
	}
	params := e.Parameters
	if len(params) > MaxParametersLength {
		params = params[:MaxParametersLength]
	}

	const query = `
		INSERT INTO action_log (session_id, request_id, node, path, action, parameters, success, message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		int64(e.SessionID),
		e.RequestID,
		e.Node,
		e.Path,
		e.Action,
		params,
		e.Success,
		e.Message,
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit of the session's most recent actions, newest
// first.
func (s *Store) Recent(ctx context.Context, sessionID uint32, limit int) ([]Entry, error) {
	const query = `
		SELECT id, session_id, request_id, node, path, action, parameters, success, message, duration_ms, created_at
		FROM action_log
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, int64(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			sid        int64
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &sid, &e.RequestID, &e.Node, &e.Path, &e.Action,
			&e.Parameters, &e.Success, &e.Message, &durationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.SessionID = uint32(sid)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return entries, nil
}

// CountSince returns the number of actions logged for a session within the
// given time window.
func (s *Store) CountSince(ctx context.Context, sessionID uint32, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM action_log
		WHERE session_id = $1
		  AND created_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, int64(sessionID), window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count since: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
