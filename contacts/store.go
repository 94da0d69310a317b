// Package contacts persists inferred contact records. These are
// non-authoritative enrichment artifacts with a TTL; expired rows are
// pruned by the maintenance sweep rather than at read time.
package contacts

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/errors"
)

// InferredContact is a best-guess contact record derived from activity data.
type InferredContact struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store provides inferred contact persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates an inferred contact store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts a contact, or refreshes the TTL and display name if the
// (workspace, email) pair already exists.
func (s *Store) Upsert(contact *InferredContact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO inferred_contacts (id, workspace_id, email, display_name, source, confidence, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workspace_id, email) DO UPDATE SET
			display_name = excluded.display_name,
			source = excluded.source,
			confidence = excluded.confidence,
			expires_at = excluded.expires_at`,
		contact.ID, contact.WorkspaceID, contact.Email, contact.DisplayName,
		contact.Source, contact.Confidence, contact.ExpiresAt.UTC(), contact.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert inferred contact")
	}
	return nil
}

// Get returns a contact by workspace and email, expired or not.
func (s *Store) Get(workspaceID, email string) (*InferredContact, error) {
	var contact InferredContact
	err := s.db.QueryRow(`
		SELECT id, workspace_id, email, display_name, source, confidence, expires_at, created_at
		FROM inferred_contacts
		WHERE workspace_id = ? AND email = ?`,
		workspaceID, email,
	).Scan(&contact.ID, &contact.WorkspaceID, &contact.Email, &contact.DisplayName,
		&contact.Source, &contact.Confidence, &contact.ExpiresAt, &contact.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get inferred contact")
	}
	return &contact, nil
}

// PruneExpired deletes up to limit contacts whose TTL has passed.
// Returns the number of rows removed.
func (s *Store) PruneExpired(now time.Time, limit int) (int, error) {
	result, err := s.db.Exec(`
		DELETE FROM inferred_contacts
		WHERE id IN (
			SELECT id FROM inferred_contacts
			WHERE expires_at <= ?
			ORDER BY expires_at ASC
			LIMIT ?
		)`,
		now.UTC(), limit,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune expired contacts")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pruned contacts")
	}
	return int(n), nil
}
