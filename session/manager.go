package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/isdmx/shellbox/challenge"
	"github.com/isdmx/shellbox/config"
	"github.com/isdmx/shellbox/runtime"
)

// Manager orchestrates the lifecycle of sandbox sessions: creation and
// reuse, command execution, expiry, and teardown.
type Manager struct {
	logger     *zap.Logger
	store      *Store
	runtime    runtime.Runtime
	challenges *challenge.Registry

	image  string
	limits runtime.Limits
	ttl    time.Duration

	now func() time.Time

	// createLocks serializes reuse-or-create per (owner, challenge) so
	// two concurrent requests never create two containers for the same
	// pair. sessionLocks serializes execute/stop/reap per session.
	createLocks  *keyedMutex
	sessionLocks *keyedMutex
}

// ManagerOption defines a functional option for Manager
type ManagerOption func(*Manager)

// WithClock sets the time source, for expiry tests
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager
func NewManager(logger *zap.Logger, store *Store, rt runtime.Runtime, challenges *challenge.Registry, cfg *config.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:       logger,
		store:        store,
		runtime:      rt,
		challenges:   challenges,
		image:        cfg.Runtime.Image,
		limits:       runtime.LimitsFromConfig(cfg),
		ttl:          cfg.SessionTTL(),
		now:          time.Now,
		createLocks:  newKeyedMutex(),
		sessionLocks: newKeyedMutex(),
	}

	// Apply options
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// GetOrCreate returns the owner's live session for the challenge, or
// creates a new container-backed session. With an empty challengeID a
// fresh general-purpose session is always created.
func (m *Manager) GetOrCreate(ctx context.Context, ownerID, challengeID string) (Record, error) {
	unlock := m.createLocks.Lock(ownerID + "\x00" + challengeID)
	defer unlock()

	var spec challenge.Spec
	if challengeID != "" {
		existing, ok, err := m.store.ActiveForOwnerChallenge(ctx, ownerID, challengeID, m.now())
		if err != nil {
			return Record{}, err
		}
		if ok {
			m.logger.Debug("reusing active session",
				zap.String("session_id", existing.ID),
				zap.String("owner_id", ownerID),
				zap.String("challenge_id", challengeID))
			return existing, nil
		}

		spec, err = m.challenges.Get(challengeID)
		if err != nil {
			return Record{}, err
		}
	}

	ref, err := m.runtime.CreateAndStart(ctx, m.image, m.limits)
	if err != nil {
		return Record{}, err
	}

	// Setup commands are best-effort: a failing one leaves the
	// environment partially prepared but the session still usable.
	for _, cmd := range spec.SetupCommands {
		result, execErr := m.runtime.Exec(ctx, ref, cmd)
		if execErr != nil || result.ExitCode != 0 {
			m.logger.Warn("setup command failed",
				zap.String("challenge_id", challengeID),
				zap.String("command", cmd),
				zap.Int("exit_code", result.ExitCode),
				zap.Error(execErr))
		}
	}

	now := m.now()
	rec := Record{
		ID:           ulid.Make().String(),
		OwnerID:      ownerID,
		ContainerRef: ref,
		ChallengeID:  challengeID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		IsActive:     true,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		// The container exists but the record doesn't; remove it so a
		// failed creation leaves nothing running.
		if rmErr := m.runtime.StopAndRemove(ctx, ref); rmErr != nil {
			m.logger.Error("failed to remove container after persist failure",
				zap.String("container_ref", ref), zap.Error(rmErr))
		}
		return Record{}, fmt.Errorf("persist session: %w", err)
	}

	m.logger.Info("sandbox session created",
		zap.String("session_id", rec.ID),
		zap.String("owner_id", ownerID),
		zap.String("challenge_id", challengeID),
		zap.String("container_ref", ref),
		zap.Time("expires_at", rec.ExpiresAt))

	return rec, nil
}

// Get fetches a session, enforcing ownership
func (m *Manager) Get(ctx context.Context, sessionID, ownerID string) (Record, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if rec.OwnerID != ownerID {
		return Record{}, fmt.Errorf("%w: session %s", ErrPermissionDenied, sessionID)
	}
	return rec, nil
}

// ListByOwner returns all of an owner's sessions, newest first
func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return m.store.ByOwner(ctx, ownerID)
}

// Execute runs a command in the session's container. A session past its
// expiry is torn down on the spot and the call fails; the caller must
// create a new session.
func (m *Manager) Execute(ctx context.Context, sessionID, ownerID, command string) (runtime.ExecResult, error) {
	unlock := m.sessionLocks.Lock(sessionID)
	defer unlock()

	rec, err := m.Get(ctx, sessionID, ownerID)
	if err != nil {
		return runtime.ExecResult{}, err
	}

	if !rec.IsActive {
		return runtime.ExecResult{}, fmt.Errorf("%w: session %s", ErrExpiredOrInactive, sessionID)
	}
	if rec.Expired(m.now()) {
		// Lazy expiry: the reaper hasn't swept this one yet
		m.finish(ctx, rec)
		return runtime.ExecResult{}, fmt.Errorf("%w: session %s", ErrExpiredOrInactive, sessionID)
	}

	return m.runtime.Exec(ctx, rec.ContainerRef, command)
}

// Stop deactivates the session and tears down its container. Idempotent;
// container teardown failures are logged, never propagated. The session
// record is the source of truth for "no longer usable".
func (m *Manager) Stop(ctx context.Context, sessionID, ownerID string) error {
	unlock := m.sessionLocks.Lock(sessionID)
	defer unlock()

	rec, err := m.Get(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}

	m.finish(ctx, rec)
	return nil
}

// ReapExpired finds all sessions whose lease ran out while still marked
// active, tears each down, and returns how many it processed. Meant to
// run on a recurring schedule off the request path.
func (m *Manager) ReapExpired(ctx context.Context) (int, error) {
	expired, err := m.store.Expired(ctx, m.now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range expired {
		unlock := m.sessionLocks.Lock(rec.ID)

		// Re-check under the session lock; a concurrent stop or lazy
		// expiry may already have finished it.
		current, err := m.store.Get(ctx, rec.ID)
		if err == nil && current.IsActive {
			m.finish(ctx, current)
			count++
		}

		unlock()
	}

	if count > 0 {
		m.logger.Info("reaped expired sessions", zap.Int("count", count))
	}
	return count, nil
}

// finish deactivates the record and best-effort removes its container
func (m *Manager) finish(ctx context.Context, rec Record) {
	if err := m.store.Deactivate(ctx, rec.ID); err != nil {
		m.logger.Error("failed to deactivate session",
			zap.String("session_id", rec.ID), zap.Error(err))
	}

	if rec.ContainerRef != "" {
		if err := m.runtime.StopAndRemove(ctx, rec.ContainerRef); err != nil {
			m.logger.Warn("container teardown failed",
				zap.String("session_id", rec.ID),
				zap.String("container_ref", rec.ContainerRef),
				zap.Error(err))
		}
	}

	m.logger.Info("sandbox session stopped",
		zap.String("session_id", rec.ID),
		zap.String("owner_id", rec.OwnerID))
}
