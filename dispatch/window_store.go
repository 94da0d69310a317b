package dispatch

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/outflowhq/outflow/errors"
	"github.com/outflowhq/outflow/logger"
)

// WindowStore handles persistence of the dispatch window ledger.
//
// The ledger is best-effort by design: registration failures other than a
// duplicate key degrade tracking rather than blocking dispatch, and the
// terminal-status mutators log instead of returning errors because the
// dispatch they describe has already happened.
type WindowStore struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// NewWindowStore creates a new dispatch window store.
func NewWindowStore(db *sql.DB, log *zap.SugaredLogger) *WindowStore {
	return &WindowStore{db: db, log: log}
}

// Register attempts to claim a dispatch window by inserting a row in
// DISPATCHING status. The unique constraint on dispatch_key is the dedup
// mechanism: a constraint failure is the expected signal that a concurrent
// invocation already owns the window, not an error.
func (s *WindowStore) Register(dispatchKey, source string, requestedAt, windowStart time.Time, windowSeconds int, correlationID string) RegisterResult {
	now := time.Now().UTC()
	query := `
		INSERT INTO dispatch_windows (
			id, dispatch_key, source, requested_at,
			window_start, window_seconds, correlation_id,
			status, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		uuid.NewString(),
		dispatchKey,
		source,
		requestedAt.UTC(),
		windowStart.UTC(),
		windowSeconds,
		correlationID,
		WindowStatusDispatching,
		now,
	)
	if err == nil {
		s.log.Debugw("Dispatch window registered",
			logger.FieldDispatchKey, dispatchKey,
			"source", source,
			logger.FieldCorrelationID, correlationID,
		)
		return RegisterResult{TrackingEnabled: true}
	}

	if isUniqueViolation(err) {
		existing, getErr := s.Get(dispatchKey)
		if getErr != nil {
			s.log.Warnw("Dispatch window already claimed but existing row unreadable",
				logger.FieldDispatchKey, dispatchKey,
				logger.FieldError, getErr,
			)
		}
		s.log.Infow("Duplicate dispatch window suppressed",
			logger.FieldDispatchKey, dispatchKey,
			"source", source,
		)
		return RegisterResult{TrackingEnabled: true, DuplicateSuppressed: true, Existing: existing}
	}

	// Infrastructure failure: tracking degrades, caller proceeds anyway.
	s.log.Warnw("Dispatch window registration failed, tracking disabled for this cycle",
		logger.FieldDispatchKey, dispatchKey,
		logger.FieldError, err,
	)
	return RegisterResult{}
}

// Get retrieves a dispatch window by key.
func (s *WindowStore) Get(dispatchKey string) (*DispatchWindow, error) {
	query := `
		SELECT id, dispatch_key, source, requested_at, window_start,
		       window_seconds, correlation_id, status,
		       process_dispatch_id, maintenance_dispatch_id,
		       process_event_id, maintenance_event_id,
		       error_message, updated_at
		FROM dispatch_windows WHERE dispatch_key = ?
	`

	var w DispatchWindow
	err := s.db.QueryRow(query, dispatchKey).Scan(
		&w.ID,
		&w.DispatchKey,
		&w.Source,
		&w.RequestedAt,
		&w.WindowStart,
		&w.WindowSeconds,
		&w.CorrelationID,
		&w.Status,
		&w.ProcessDispatchID,
		&w.MaintenanceDispatchID,
		&w.ProcessEventID,
		&w.MaintenanceEventID,
		&w.ErrorMessage,
		&w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("dispatch window not found: %s", dispatchKey)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get dispatch window")
	}
	return &w, nil
}

// MarkEnqueued records the normal terminal outcome of a cycle: the real work
// was handed to downstream execution. Best-effort.
func (s *WindowStore) MarkEnqueued(dispatchKey, processDispatchID, maintenanceDispatchID, processEventID, maintenanceEventID string) {
	query := `
		UPDATE dispatch_windows
		SET status = ?,
		    process_dispatch_id = ?,
		    maintenance_dispatch_id = ?,
		    process_event_id = ?,
		    maintenance_event_id = ?,
		    updated_at = ?
		WHERE dispatch_key = ?
	`
	s.mark(query, dispatchKey,
		WindowStatusEnqueued,
		nullable(processDispatchID),
		nullable(maintenanceDispatchID),
		nullable(processEventID),
		nullable(maintenanceEventID),
		time.Now().UTC(),
		dispatchKey,
	)
}

// MarkFailed records that the downstream enqueue failed. Best-effort.
func (s *WindowStore) MarkFailed(dispatchKey, errorMessage string) {
	query := `
		UPDATE dispatch_windows
		SET status = ?, error_message = ?, updated_at = ?
		WHERE dispatch_key = ?
	`
	s.mark(query, dispatchKey, WindowStatusEnqueueFailed, errorMessage, time.Now().UTC(), dispatchKey)
}

// MarkInlineEmergency records that the cycle fell back to synchronous
// execution. Best-effort.
func (s *WindowStore) MarkInlineEmergency(dispatchKey, errorMessage string) {
	query := `
		UPDATE dispatch_windows
		SET status = ?, error_message = ?, updated_at = ?
		WHERE dispatch_key = ?
	`
	s.mark(query, dispatchKey, WindowStatusInlineEmergency, nullable(errorMessage), time.Now().UTC(), dispatchKey)
}

// mark runs a terminal-status update and logs failures instead of returning
// them; the dispatch has already happened by the time these are called.
func (s *WindowStore) mark(query, dispatchKey string, args ...interface{}) {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		s.log.Warnw("Failed to record dispatch window outcome",
			logger.FieldDispatchKey, dispatchKey,
			logger.FieldError, err,
		)
		return
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		s.log.Warnw("Dispatch window outcome update matched no row",
			logger.FieldDispatchKey, dispatchKey,
		)
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. Falls back to message matching for errors the driver does not
// surface as typed values.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
