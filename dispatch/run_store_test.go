package dispatch

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outflowhq/outflow/errors"
	outflowtest "github.com/outflowhq/outflow/internal/testing"
)

func newTestRunStore(t *testing.T) (*RunStore, *sql.DB) {
	t.Helper()
	conn := outflowtest.CreateTestDB(t)
	return NewRunStore(conn), conn
}

// ageRun rewinds a run's started_at so staleness paths can be exercised.
func ageRun(t *testing.T, conn *sql.DB, id string, age time.Duration) {
	t.Helper()
	_, err := conn.Exec(`UPDATE function_runs SET started_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-age), id)
	require.NoError(t, err)
}

func TestStartAndFinishRun(t *testing.T) {
	store, _ := newTestRunStore(t)

	run, err := store.StartRun(ProcessFunctionName, "poller:w1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, store.FinishRun(run.ID, nil))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, got.Status)
	assert.NotNil(t, got.FinishedAt)
	assert.Nil(t, got.LastError)
}

func TestFinishRunRecordsFailure(t *testing.T) {
	store, _ := newTestRunStore(t)

	run, err := store.StartRun(ProcessFunctionName, "poller:w2")
	require.NoError(t, err)

	require.NoError(t, store.FinishRun(run.ID, errors.New("executor unavailable")))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "executor unavailable", *got.LastError)
}

func TestFinishRunMissing(t *testing.T) {
	store, _ := newTestRunStore(t)
	err := store.FinishRun("no-such-run", nil)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRecoverStaleRuns(t *testing.T) {
	store, conn := newTestRunStore(t)

	stale, err := store.StartRun(ProcessFunctionName, "poller:old")
	require.NoError(t, err)
	ageRun(t, conn, stale.ID, time.Hour)

	fresh, err := store.StartRun(ProcessFunctionName, "poller:new")
	require.NoError(t, err)

	result, err := store.RecoverStaleRuns(ProcessFunctionName, 30, 50, "maintenance sweep")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, []string{"poller:old"}, result.RunKeys)

	got, err := store.GetRun(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "stale run recovery")

	// The live run is untouched.
	got, err = store.GetRun(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
}

func TestRecoverStaleRunsRespectsLimit(t *testing.T) {
	store, conn := newTestRunStore(t)

	for i := 0; i < 3; i++ {
		run, err := store.StartRun(ProcessFunctionName, "poller:stale")
		require.NoError(t, err)
		ageRun(t, conn, run.ID, 2*time.Hour)
	}

	result, err := store.RecoverStaleRuns(ProcessFunctionName, 30, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Recovered)
}

func TestOldestRunningAge(t *testing.T) {
	store, conn := newTestRunStore(t)

	_, found, err := store.OldestRunningAge(ProcessFunctionName)
	require.NoError(t, err)
	assert.False(t, found)

	run, err := store.StartRun(ProcessFunctionName, "poller:w1")
	require.NoError(t, err)
	ageRun(t, conn, run.ID, 45*time.Minute)

	age, found, err := store.OldestRunningAge(ProcessFunctionName)
	require.NoError(t, err)
	require.True(t, found)
	assert.Greater(t, age, 44*time.Minute)
}

func TestCleanupOldRuns(t *testing.T) {
	store, conn := newTestRunStore(t)

	old, err := store.StartRun(ProcessFunctionName, "poller:old")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(old.ID, nil))
	ageRun(t, conn, old.ID, 40*24*time.Hour)

	recent, err := store.StartRun(ProcessFunctionName, "poller:recent")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(recent.ID, nil))

	// A stale RUNNING row is never pruned, only terminal rows are.
	running, err := store.StartRun(ProcessFunctionName, "poller:running")
	require.NoError(t, err)
	ageRun(t, conn, running.ID, 40*24*time.Hour)

	pruned, err := store.CleanupOldRuns(30*24*time.Hour, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = store.GetRun(old.ID)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = store.GetRun(recent.ID)
	assert.NoError(t, err)
	_, err = store.GetRun(running.ID)
	assert.NoError(t, err)
}
