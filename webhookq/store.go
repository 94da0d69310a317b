package webhookq

import (
	"database/sql"
	"time"

	"github.com/outflowhq/outflow/errors"
)

// Store handles persistence of webhook events.
//
// All state transitions are conditional updates keyed on the current status so
// overlapping runner passes can never double-process a row; a zero-row
// update is the normal "someone else got there first" signal, not an error.
type Store struct {
	db *sql.DB
}

// NewStore creates a new webhook event store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `
	id, provider, event_type, workspace_id, payload, status,
	run_at, attempts, max_attempts, locked_at, locked_by,
	started_at, finished_at, last_error, created_at, updated_at
`

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(event *Event) error {
	query := `
		INSERT INTO webhook_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	payload := sql.NullString{String: string(event.Payload), Valid: len(event.Payload) > 0}

	_, err := s.db.Exec(query,
		event.ID,
		event.Provider,
		event.EventType,
		event.WorkspaceID,
		payload,
		event.Status,
		event.RunAt,
		event.Attempts,
		event.MaxAttempts,
		event.LockedAt,
		event.LockedBy,
		event.StartedAt,
		event.FinishedAt,
		event.LastError,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create webhook event")
		err = errors.WithDetailf(err, "Event ID: %s", event.ID)
		err = errors.WithDetailf(err, "Provider: %s", event.Provider)
		return err
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(id string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM webhook_events WHERE id = ?`

	var event Event
	var payload sql.NullString
	err := s.db.QueryRow(query, id).Scan(
		&event.ID,
		&event.Provider,
		&event.EventType,
		&event.WorkspaceID,
		&payload,
		&event.Status,
		&event.RunAt,
		&event.Attempts,
		&event.MaxAttempts,
		&event.LockedAt,
		&event.LockedBy,
		&event.StartedAt,
		&event.FinishedAt,
		&event.LastError,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("webhook event not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get webhook event")
	}
	if payload.Valid {
		event.Payload = []byte(payload.String)
	}
	return &event, nil
}

// ReleaseStaleLocks releases abandoned RUNNING rows back to PENDING: any row
// whose locked_at predates the cutoff belongs to a crashed or timed-out
// invocation. Attempts are left unchanged; the row becomes immediately
// eligible for reclaiming. Must run before selection on every runner pass.
func (s *Store) ReleaseStaleLocks(cutoff time.Time) (int, error) {
	query := `
		UPDATE webhook_events
		SET status = ?,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = ?,
		    updated_at = ?
		WHERE status = ? AND locked_at < ?
	`
	result, err := s.db.Exec(query,
		EventStatusPending,
		"released by stale lock recovery",
		time.Now().UTC(),
		EventStatusRunning,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to release stale event locks")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// ListDue returns up to limit PENDING events due at or before now, ordered
// by run_at ascending.
func (s *Store) ListDue(now time.Time, limit int) ([]*Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM webhook_events
		WHERE status = ? AND run_at <= ?
		ORDER BY run_at ASC
		LIMIT ?`

	rows, err := s.db.Query(query, EventStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due webhook events")
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var payload sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.Provider,
			&event.EventType,
			&event.WorkspaceID,
			&payload,
			&event.Status,
			&event.RunAt,
			&event.Attempts,
			&event.MaxAttempts,
			&event.LockedAt,
			&event.LockedBy,
			&event.StartedAt,
			&event.FinishedAt,
			&event.LastError,
			&event.CreatedAt,
			&event.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan webhook event")
		}
		if payload.Valid {
			event.Payload = []byte(payload.String)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating due webhook events")
	}
	return events, nil
}

// Claim attempts the optimistic transition PENDING→RUNNING for one event,
// incrementing its attempt counter and recording the claiming invocation.
//
// Returns claimed=false with no error when the conditional update affects
// zero rows: another invocation already owns the row. This is the guard
// against overlapping passes racing on the same event.
func (s *Store) Claim(id, invocationID string) (bool, error) {
	now := time.Now().UTC()
	query := `
		UPDATE webhook_events
		SET status = ?,
		    locked_at = ?,
		    locked_by = ?,
		    started_at = ?,
		    attempts = attempts + 1,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := s.db.Exec(query,
		EventStatusRunning,
		now,
		invocationID,
		now,
		now,
		id,
		EventStatusPending,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to claim webhook event %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

// MarkSucceeded records handler success and clears lock fields.
func (s *Store) MarkSucceeded(id string) error {
	now := time.Now().UTC()
	query := `
		UPDATE webhook_events
		SET status = ?,
		    locked_at = NULL,
		    locked_by = NULL,
		    finished_at = ?,
		    last_error = NULL,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`
	return s.transition(query, id, EventStatusSucceeded, now, now, id, EventStatusRunning)
}

// MarkFailed records a terminal failure and clears lock fields.
func (s *Store) MarkFailed(id, lastError string) error {
	now := time.Now().UTC()
	query := `
		UPDATE webhook_events
		SET status = ?,
		    locked_at = NULL,
		    locked_by = NULL,
		    finished_at = ?,
		    last_error = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`
	return s.transition(query, id, EventStatusFailed, now, lastError, now, id, EventStatusRunning)
}

// MarkRetry releases the event back to PENDING with its next eligible
// processing time pushed forward by backoff.
func (s *Store) MarkRetry(id, lastError string, runAt time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE webhook_events
		SET status = ?,
		    locked_at = NULL,
		    locked_by = NULL,
		    run_at = ?,
		    last_error = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`
	return s.transition(query, id, EventStatusPending, runAt.UTC(), lastError, now, id, EventStatusRunning)
}

func (s *Store) transition(query, id string, args ...interface{}) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to transition webhook event %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Newf("webhook event %s not in expected state for transition", id)
	}
	return nil
}

// CountDue returns how many PENDING events are due at or before now. Used
// by callers to detect backlog growth.
func (s *Store) CountDue(now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM webhook_events
		WHERE status = ? AND run_at <= ?
	`, EventStatusPending, now.UTC()).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count due webhook events")
	}
	return count, nil
}

// OldestDueAge returns the age of the oldest due-but-unprocessed event.
// ok=false means no due events exist.
func (s *Store) OldestDueAge(now time.Time) (time.Duration, bool, error) {
	var runAt time.Time
	err := s.db.QueryRow(`
		SELECT run_at FROM webhook_events
		WHERE status = ? AND run_at <= ?
		ORDER BY run_at ASC
		LIMIT 1
	`, EventStatusPending, now.UTC()).Scan(&runAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to get oldest due webhook event")
	}
	return now.Sub(runAt), true, nil
}

// CleanupOldEvents removes terminal events older than the retention window,
// capped at limit rows to bound transaction size.
func (s *Store) CleanupOldEvents(olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.Exec(`
		DELETE FROM webhook_events
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status IN (?, ?) AND updated_at < ?
			ORDER BY updated_at ASC
			LIMIT ?
		)
	`, EventStatusSucceeded, EventStatusFailed, cutoff, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old webhook events")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}
