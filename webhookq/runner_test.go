package webhookq

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outflowhq/outflow/config"
	"github.com/outflowhq/outflow/errors"
	outflowtest "github.com/outflowhq/outflow/internal/testing"
)

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		BatchLimit:            50,
		MaxAttempts:           5,
		LockStaleMinutes:      10,
		BackoffInitialSeconds: 30,
		BackoffMaxSeconds:     3600,
		TimeBudgetSeconds:     55,
		SafetyMarginSeconds:   5,
	}
}

func newTestRunner(t *testing.T, registry *Registry, cfg config.QueueConfig) (*Runner, *Store, *sql.DB) {
	t.Helper()
	conn := outflowtest.CreateTestDB(t)
	store := NewStore(conn)
	return NewRunner(store, registry, cfg, zap.NewNop().Sugar()), store, conn
}

func registryWith(handlers ...Handler) *Registry {
	registry := NewRegistry()
	for _, h := range handlers {
		registry.Register(h)
	}
	return registry
}

// makeDue rewinds an event's run_at so it is immediately selectable.
func makeDue(t *testing.T, conn *sql.DB, id string) {
	t.Helper()
	_, err := conn.Exec(`UPDATE webhook_events SET run_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute), id)
	require.NoError(t, err)
}

func TestRunPassSuccess(t *testing.T) {
	var handled []string
	registry := registryWith(HandlerFunc{
		ProviderName:  "calendly",
		EventTypeName: "invitee.created",
		Fn: func(ctx context.Context, event *Event) error {
			handled = append(handled, event.ID)
			return nil
		},
	})
	runner, store, _ := newTestRunner(t, registry, testQueueConfig())

	event := NewEvent("calendly", "invitee.created", "ws-1", json.RawMessage(`{}`), 5)
	require.NoError(t, store.CreateEvent(event))

	summary, err := runner.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Retried)
	assert.Zero(t, summary.Remaining)
	assert.Equal(t, []string{event.ID}, handled)

	got, err := store.GetEvent(event.ID)
	require.NoError(t, err)
	assert.Equal(t, EventStatusSucceeded, got.Status)
}

func TestRunPassRetriesThenFails(t *testing.T) {
	registry := registryWith(HandlerFunc{
		ProviderName:  "calendly",
		EventTypeName: "invitee.created",
		Fn: func(ctx context.Context, event *Event) error {
			return errors.New("downstream 502")
		},
	})
	runner, store, conn := newTestRunner(t, registry, testQueueConfig())

	event := NewEvent("calendly", "invitee.created", "ws-1", nil, 2)
	require.NoError(t, store.CreateEvent(event))

	// Attempt 1: retryable failure schedules a backed-off retry.
	summary, err := runner.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)
	assert.Zero(t, summary.Failed)

	got, err := store.GetEvent(event.ID)
	require.NoError(t, err)
	assert.Equal(t, EventStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.RunAt.After(time.Now()), "retry must be scheduled in the future")

	// Attempt 2 reaches the ceiling: permanent failure.
	makeDue(t, conn, event.ID)
	summary, err = runner.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Retried)

	got, err = store.GetEvent(event.ID)
	require.NoError(t, err)
	assert.Equal(t, EventStatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "downstream 502")
}

func TestRunPassTerminalShortCircuits(t *testing.T) {
	registry := registryWith(HandlerFunc{
		ProviderName:  "calendly",
		EventTypeName: "invitee.created",
		Fn: func(ctx context.Context, event *Event) error {
			return Terminal(errors.New("malformed payload"))
		},
	})
	runner, store, _ := newTestRunner(t, registry, testQueueConfig())

	event := NewEvent("calendly", "invitee.created", "ws-1", nil, 5)
	require.NoError(t, store.CreateEvent(event))

	summary, err := runner.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Retried)

	got, err := store.GetEvent(event.ID)
	require.NoError(t, err)
	// Failed on the first attempt despite a ceiling of 5.
	assert.Equal(t, EventStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestRunPassUnregisteredHandlerSkips(t *testing.T) {
	runner, store, _ := newTestRunner(t, NewRegistry(), testQueueConfig())

	event := NewEvent("unknown", "something.happened", "ws-1", nil, 5)
	require.NoError(t, store.CreateEvent(event))

	summary, err := runner.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Succeeded)

	// Marked FAILED so it is never rescanned.
	got, err := store.GetEvent(event.ID)
	require.NoError(t, err)
	assert.Equal(t, EventStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "no handler registered")

	// The next pass finds nothing.
	summary, err = runner.RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestRunPassReleasesStaleLocksFirst(t *testing.T) {
	var handled int
	registry := registryWith(HandlerFunc{
		ProviderName:  "calendly",
		EventTypeName: "invitee.created",
		Fn: func(ctx context.Context, event *Event) error {
			handled++
			return nil
		},
	})
	runner, store, conn := newTestRunner(t, registry, testQueueConfig())

	event := NewEvent("calendly", "invitee.created", "ws-1", nil, 5)
	require.NoError(t, store.CreateEvent(event))

	// Simulate a crashed invocation: claimed long ago, never settled.
	claimed, err := store.Claim(event.ID, "dead-invocation")
	require.NoError(t, err)
	require.True(t, claimed)
	_, err = conn.Exec(`UPDATE webhook_events SET locked_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour), event.ID)
	require.NoError(t, err)

	summary, err := runner.RunPass(context.Background())
	require.NoError(t, err)

	// Released and reprocessed within the same pass.
	assert.Equal(t, 1, summary.ReleasedStale)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, handled)
}

func TestRunPassExpiredBudgetClaimsNothing(t *testing.T) {
	registry := registryWith(noopHandler("calendly", "invitee.created"))

	cfg := testQueueConfig()
	// Budget minus margin is zero: the deadline has passed before the
	// first claim.
	cfg.TimeBudgetSeconds = 1
	cfg.SafetyMarginSeconds = 1

	runner, store, _ := newTestRunner(t, registry, cfg)

	for i := 0; i < 10; i++ {
		event := NewEvent("calendly", "invitee.created", "ws-1", nil, 5)
		require.NoError(t, store.CreateEvent(event))
	}

	summary, err := runner.RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Equal(t, 10, summary.Remaining)
}

func TestRunPassRespectsBatchLimit(t *testing.T) {
	registry := registryWith(noopHandler("calendly", "invitee.created"))

	cfg := testQueueConfig()
	cfg.BatchLimit = 3

	runner, store, _ := newTestRunner(t, registry, cfg)

	for i := 0; i < 5; i++ {
		event := NewEvent("calendly", "invitee.created", "ws-1", nil, 5)
		require.NoError(t, store.CreateEvent(event))
	}

	summary, err := runner.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Remaining)
}

func TestRunnerStatus(t *testing.T) {
	runner, store, conn := newTestRunner(t, NewRegistry(), testQueueConfig())

	status, err := runner.Status()
	require.NoError(t, err)
	assert.Zero(t, status.Due)
	assert.Empty(t, status.OldestDueAge)

	event := NewEvent("calendly", "invitee.created", "ws-1", nil, 5)
	require.NoError(t, store.CreateEvent(event))
	makeDue(t, conn, event.ID)

	status, err = runner.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Due)
	assert.NotEmpty(t, status.OldestDueAge)
}
