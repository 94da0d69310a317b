package outreach

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outflowhq/outflow/errors"
	outflowtest "github.com/outflowhq/outflow/internal/testing"
	"github.com/outflowhq/outflow/webhookq"
)

type stubSender struct {
	err   error
	sent  []string
	calls int
}

func (s *stubSender) Send(ctx context.Context, job *Job) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, job.ID)
	return nil
}

func deliverEvent(t *testing.T, jobID string) *webhookq.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"job_id": jobID})
	require.NoError(t, err)
	return webhookq.NewEvent(EventProvider, EventTypeDeliver, "ws-1", payload, 5)
}

func newHandlerFixture(t *testing.T, sender Sender) (*DeliveryHandler, *Store) {
	t.Helper()
	store := NewStore(outflowtest.CreateTestDB(t))
	return NewDeliveryHandler(store, sender, zap.NewNop().Sugar()), store
}

func TestHandleDeliversAndSettles(t *testing.T) {
	sender := &stubSender{}
	handler, store := newHandlerFixture(t, sender)

	job, err := store.CreateJob("ws-1", "email.send", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(job.ID, StatusEnqueued, ""))

	err = handler.Handle(context.Background(), deliverEvent(t, job.ID))
	require.NoError(t, err)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
	assert.Equal(t, []string{job.ID}, sender.sent)
}

func TestHandleRetryableParksJob(t *testing.T) {
	sender := &stubSender{err: errors.New("smtp timeout")}
	handler, store := newHandlerFixture(t, sender)

	job, err := store.CreateJob("ws-1", "email.send", nil)
	require.NoError(t, err)

	err = handler.Handle(context.Background(), deliverEvent(t, job.ID))
	require.Error(t, err)
	assert.False(t, webhookq.IsTerminal(err))

	// Parked back in ENQUEUED for the queue's next retry.
	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnqueued, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "smtp timeout")
}

func TestHandleTerminalFailsJob(t *testing.T) {
	sender := &stubSender{err: webhookq.Terminal(errors.New("recipient rejected"))}
	handler, store := newHandlerFixture(t, sender)

	job, err := store.CreateJob("ws-1", "email.send", nil)
	require.NoError(t, err)

	err = handler.Handle(context.Background(), deliverEvent(t, job.ID))
	require.Error(t, err)
	assert.True(t, webhookq.IsTerminal(err))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestHandleMissingJobIsTerminal(t *testing.T) {
	handler, _ := newHandlerFixture(t, &stubSender{})

	err := handler.Handle(context.Background(), deliverEvent(t, "no-such-job"))
	require.Error(t, err)
	assert.True(t, webhookq.IsTerminal(err))
}

func TestHandleMalformedPayloadIsTerminal(t *testing.T) {
	handler, _ := newHandlerFixture(t, &stubSender{})

	event := webhookq.NewEvent(EventProvider, EventTypeDeliver, "ws-1", json.RawMessage(`not json`), 5)
	err := handler.Handle(context.Background(), event)
	require.Error(t, err)
	assert.True(t, webhookq.IsTerminal(err))
}

func TestHandleSettledJobIsNoOp(t *testing.T) {
	sender := &stubSender{}
	handler, store := newHandlerFixture(t, sender)

	job, err := store.CreateJob("ws-1", "email.send", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(job.ID, StatusSent, ""))

	err = handler.Handle(context.Background(), deliverEvent(t, job.ID))
	require.NoError(t, err)
	assert.Zero(t, sender.calls, "settled jobs must not be re-delivered")
}

func TestExecutorEnqueueCreatesEvent(t *testing.T) {
	conn := outflowtest.CreateTestDB(t)
	jobs := NewStore(conn)
	events := webhookq.NewStore(conn)
	executor := NewExecutor(jobs, events, &stubSender{}, EventConfig{MaxAttempts: 5}, zap.NewNop().Sugar())

	job, err := jobs.CreateJob("ws-1", "email.send", nil)
	require.NoError(t, err)

	claimed, err := jobs.PendingJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, executor.Enqueue(context.Background(), claimed[0]))

	got, err := jobs.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnqueued, got.Status)

	due, err := events.ListDue(time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, EventProvider, due[0].Provider)
	assert.Equal(t, EventTypeDeliver, due[0].EventType)
	assert.Equal(t, "ws-1", due[0].WorkspaceID)
}

func TestExecutorExecuteInline(t *testing.T) {
	conn := outflowtest.CreateTestDB(t)
	jobs := NewStore(conn)
	events := webhookq.NewStore(conn)
	sender := &stubSender{}
	executor := NewExecutor(jobs, events, sender, EventConfig{MaxAttempts: 5}, zap.NewNop().Sugar())

	job, err := jobs.CreateJob("ws-1", "email.send", nil)
	require.NoError(t, err)

	claimed, err := jobs.PendingJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, executor.ExecuteInline(context.Background(), claimed[0]))

	got, err := jobs.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)
	assert.Equal(t, 1, sender.calls)
}
