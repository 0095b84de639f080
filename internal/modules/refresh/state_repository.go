// Package refresh keeps cached market data current. A singleton state row
// carries the global refresh lock and the time of the last completed run.
package refresh

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// State is the singleton refresh_state row
type State struct {
	LastRefresh    *time.Time `json:"last_refresh,omitempty"`
	LockAcquiredAt *time.Time `json:"lock_acquired_at,omitempty"`
	LockExpiresAt  *time.Time `json:"lock_expires_at,omitempty"`
	LockReason     string     `json:"lock_reason,omitempty"`
}

// Locked reports whether a non-expired lock is held at now
func (s State) Locked(now time.Time) bool {
	return s.LockExpiresAt != nil && s.LockExpiresAt.After(now)
}

// StateRepository reads and updates the refresh_state row.
// Times are stored as unix milliseconds.
type StateRepository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewStateRepository creates a new refresh state repository
func NewStateRepository(db *sql.DB, log zerolog.Logger) *StateRepository {
	return &StateRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "refresh_state").Logger(),
	}
}

// Get returns the current state
func (r *StateRepository) Get(ctx context.Context) (*State, error) {
	var last, acquired, expires sql.NullInt64
	var reason string
	err := r.db.QueryRowContext(ctx, `
		SELECT last_refresh, lock_reason, lock_acquired_at, lock_expires_at
		FROM refresh_state WHERE id = 1
	`).Scan(&last, &reason, &acquired, &expires)
	if err == sql.ErrNoRows {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh state: %w", err)
	}

	return &State{
		LastRefresh:    fromMillis(last),
		LockReason:     reason,
		LockAcquiredAt: fromMillis(acquired),
		LockExpiresAt:  fromMillis(expires),
	}, nil
}

// AcquireLock takes the global refresh lock for ttl if no unexpired lock is
// held. It never blocks: the check and the write are one conditional UPDATE,
// so of several concurrent callers exactly one sees a row affected.
func (r *StateRepository) AcquireLock(ctx context.Context, reason string, ttl time.Duration) (bool, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_state
		SET lock_reason = ?, lock_acquired_at = ?, lock_expires_at = ?
		WHERE id = 1 AND (lock_expires_at IS NULL OR lock_expires_at <= ?)
	`, reason, now.UnixMilli(), now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to acquire refresh lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	if n == 1 {
		r.log.Debug().Str("reason", reason).Dur("ttl", ttl).Msg("Refresh lock acquired")
	}
	return n == 1, nil
}

// ReleaseLock clears the lock fields. Releasing an unheld lock is a no-op.
func (r *StateRepository) ReleaseLock(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_state
		SET lock_reason = '', lock_acquired_at = NULL, lock_expires_at = NULL
		WHERE id = 1
	`)
	if err != nil {
		return fmt.Errorf("failed to release refresh lock: %w", err)
	}
	return nil
}

// RecordLastRefresh stores the completion time of a refresh run
func (r *StateRepository) RecordLastRefresh(ctx context.Context, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_state SET last_refresh = ? WHERE id = 1`, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record last refresh: %w", err)
	}
	return nil
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
