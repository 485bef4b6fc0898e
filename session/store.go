package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) the sqlite database backing the
// session store
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection avoids SQLITE_BUSY under concurrent writers
	db.SetMaxOpenConns(1)
	return db, nil
}

// Store persists sandbox session records
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on the given database and ensures its schema
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sandbox_sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			container_ref TEXT NOT NULL DEFAULT '',
			challenge_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner_challenge
			ON sandbox_sessions(owner_id, challenge_id, is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_active_expiry
			ON sandbox_sessions(is_active, expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Create inserts a new session record
func (s *Store) Create(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sandbox_sessions (id, owner_id, container_ref, challenge_id, created_at, expires_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.ContainerRef, rec.ChallengeID,
		rec.CreatedAt.UnixNano(), rec.ExpiresAt.UnixNano(), boolToInt(rec.IsActive))
	if err != nil {
		return fmt.Errorf("insert session %s: %w", rec.ID, err)
	}
	return nil
}

// Get fetches a session record by id
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, container_ref, challenge_id, created_at, expires_at, is_active
		 FROM sandbox_sessions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return rec, nil
}

// ActiveForOwnerChallenge returns the live session for an (owner,
// challenge) pair, if one exists
func (s *Store) ActiveForOwnerChallenge(ctx context.Context, ownerID, challengeID string, now time.Time) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, container_ref, challenge_id, created_at, expires_at, is_active
		 FROM sandbox_sessions
		 WHERE owner_id = ? AND challenge_id = ? AND is_active = 1 AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		ownerID, challengeID, now.UnixNano())

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup active session: %w", err)
	}
	return rec, true, nil
}

// Deactivate marks a session inactive. Safe to call repeatedly.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sandbox_sessions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate session %s: %w", id, err)
	}
	return nil
}

// Expired returns all sessions still marked active whose lease has run out
func (s *Store) Expired(ctx context.Context, now time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, container_ref, challenge_id, created_at, expires_at, is_active
		 FROM sandbox_sessions
		 WHERE is_active = 1 AND expires_at < ?`, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ByOwner returns all of an owner's sessions, newest first
func (s *Store) ByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, container_ref, challenge_id, created_at, expires_at, is_active
		 FROM sandbox_sessions
		 WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", ownerID, err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var createdAt, expiresAt int64
	var isActive int
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.ContainerRef, &rec.ChallengeID,
		&createdAt, &expiresAt, &isActive); err != nil {
		return Record{}, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.ExpiresAt = time.Unix(0, expiresAt).UTC()
	rec.IsActive = isActive != 0
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
