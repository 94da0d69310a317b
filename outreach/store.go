// Package outreach owns the pending outreach job backlog and its handoff to
// the durable webhook event queue. It is the business-side counterpart of
// the dispatch cycle: dispatch reads PENDING rows from here, and delivery
// results flow back as status updates.
package outreach

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/dispatch"
	"github.com/outflowhq/outflow/errors"
)

// Job statuses.
const (
	StatusPending  = "PENDING"
	StatusEnqueued = "ENQUEUED"
	StatusSending  = "SENDING"
	StatusSent     = "SENT"
	StatusFailed   = "FAILED"
)

// Job is a persisted outreach work item.
type Job struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	JobType     string          `json:"job_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store persists outreach jobs. It implements dispatch.JobSource.
type Store struct {
	db *sql.DB
}

// NewStore creates an outreach job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob parks a new PENDING job.
func (s *Store) CreateJob(workspaceID, jobType string, payload json.RawMessage) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		JobType:     jobType,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage("{}")
	}

	_, err := s.db.Exec(`
		INSERT INTO outreach_jobs (id, workspace_id, job_type, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.WorkspaceID, job.JobType, string(job.Payload), job.Status,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create outreach job")
	}
	return job, nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(id string) (*Job, error) {
	var job Job
	var payload string
	err := s.db.QueryRow(`
		SELECT id, workspace_id, job_type, payload, status, last_error, created_at, updated_at
		FROM outreach_jobs
		WHERE id = ?`,
		id,
	).Scan(&job.ID, &job.WorkspaceID, &job.JobType, &payload, &job.Status,
		&job.LastError, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get outreach job")
	}
	job.Payload = json.RawMessage(payload)
	return &job, nil
}

// PendingJobs returns the PENDING backlog in arrival order.
func (s *Store) PendingJobs(ctx context.Context) ([]dispatch.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, payload
		FROM outreach_jobs
		WHERE status = ?
		ORDER BY created_at ASC`,
		StatusPending,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending outreach jobs")
	}
	defer rows.Close()

	var jobs []dispatch.Job
	for rows.Next() {
		var job dispatch.Job
		var payload string
		if err := rows.Scan(&job.ID, &job.WorkspaceID, &payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan pending outreach job")
		}
		job.Payload = json.RawMessage(payload)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ActiveCounts returns in-flight jobs per workspace. ENQUEUED and SENDING
// rows both count: a job handed to the queue occupies quota until delivery
// settles.
func (s *Store) ActiveCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workspace_id, COUNT(*)
		FROM outreach_jobs
		WHERE status IN (?, ?)
		GROUP BY workspace_id`,
		StatusEnqueued, StatusSending,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count active outreach jobs")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var workspaceID string
		var count int
		if err := rows.Scan(&workspaceID, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan active count")
		}
		counts[workspaceID] = count
	}
	return counts, rows.Err()
}

// RecoverStale resets jobs stuck in ENQUEUED or SENDING back to PENDING so
// the next dispatch cycle picks them up. A job goes stale when its delivery
// event exhausted retries or its process died mid-send; either way the row
// would otherwise occupy workspace quota forever.
func (s *Store) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, `
		UPDATE outreach_jobs
		SET status = ?, last_error = 'recovered from stale in-flight state', updated_at = ?
		WHERE status IN (?, ?) AND updated_at <= ?`,
		StatusPending, time.Now().UTC(), StatusEnqueued, StatusSending, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to recover stale outreach jobs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count recovered outreach jobs")
	}
	return int(n), nil
}

// SetStatus moves a job to the given status, recording lastError when
// non-empty.
func (s *Store) SetStatus(id, status, lastError string) error {
	var errValue interface{}
	if lastError != "" {
		errValue = lastError
	}
	result, err := s.db.Exec(`
		UPDATE outreach_jobs
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		status, errValue, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set outreach job %s status", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check outreach job update")
	}
	if n == 0 {
		return errors.Newf("outreach job not found: %s", id)
	}
	return nil
}
