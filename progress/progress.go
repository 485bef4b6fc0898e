package progress

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Recorder is the narrow interface the sandbox core hands attempt
// results to. Implementations own all gamification bookkeeping (XP,
// streaks, skill mastery); the core neither knows nor cares.
type Recorder interface {
	RecordAttempt(ctx context.Context, ownerID, challengeID string, isCorrect bool, timeSeconds int) error
}

// Store is a sqlite-backed Recorder that appends attempts to an audit
// table, numbering them per (owner, challenge)
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
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS challenge_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			attempt_no INTEGER NOT NULL,
			is_correct INTEGER NOT NULL,
			time_seconds INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`)
	if err != nil {
		return fmt.Errorf("ensure attempts schema: %w", err)
	}
	return nil
}

// RecordAttempt appends an attempt with the next attempt number for the
// (owner, challenge) pair
func (s *Store) RecordAttempt(ctx context.Context, ownerID, challengeID string, isCorrect bool, timeSeconds int) error {
	correct := 0
	if isCorrect {
		correct = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenge_attempts (owner_id, challenge_id, attempt_no, is_correct, time_seconds, created_at)
		 SELECT ?, ?, COALESCE(MAX(attempt_no), 0) + 1, ?, ?, ?
		 FROM challenge_attempts WHERE owner_id = ? AND challenge_id = ?`,
		ownerID, challengeID, correct, timeSeconds, time.Now().UnixNano(),
		ownerID, challengeID)
	if err != nil {
		return fmt.Errorf("record attempt for %s/%s: %w", ownerID, challengeID, err)
	}
	return nil
}

// Attempt is one recorded grading result
type Attempt struct {
	OwnerID     string
	ChallengeID string
	AttemptNo   int
	IsCorrect   bool
	TimeSeconds int
	CreatedAt   time.Time
}

// Attempts returns an owner's attempts for a challenge, oldest first
func (s *Store) Attempts(ctx context.Context, ownerID, challengeID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, challenge_id, attempt_no, is_correct, time_seconds, created_at
		 FROM challenge_attempts
		 WHERE owner_id = ? AND challenge_id = ?
		 ORDER BY attempt_no ASC`, ownerID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list attempts for %s/%s: %w", ownerID, challengeID, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var correct int
		var createdAt int64
		if err := rows.Scan(&a.OwnerID, &a.ChallengeID, &a.AttemptNo, &correct, &a.TimeSeconds, &createdAt); err != nil {
			return nil, err
		}
		a.IsCorrect = correct != 0
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
