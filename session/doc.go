// Package session provides sandbox session state and orchestration.
//
// A session is a leased, time-bounded association between a learner and
// a running container. The Store persists session records in sqlite
// (records are deactivated, never deleted), and the Manager coordinates
// the lifecycle around them: reuse-or-create per (owner, challenge),
// best-effort challenge setup, command execution with lazy expiry
// checks, idempotent stop, and the recurring reap sweep.
//
// Concurrency: operations on the same session are serialized by a
// per-session mutex; the reuse-or-create check-then-act is guarded by a
// mutex keyed on (owner, challenge). Everything else runs in parallel.
package session
