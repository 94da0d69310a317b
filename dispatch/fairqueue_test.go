package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobList(ids ...string) []Job {
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		// id format "a1": workspace "a", ordinal "1"
		jobs = append(jobs, Job{ID: id, WorkspaceID: id[:1]})
	}
	return jobs
}

func idsOf(jobs []Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids
}

func TestBuildFairQueueInterleaves(t *testing.T) {
	// Workspace a has 3 jobs, b has 2, c has 1.
	jobs := jobList("a1", "a2", "a3", "b1", "b2", "c1")

	queue := BuildFairQueue(jobs)

	require.Len(t, queue, 6)
	assert.Equal(t, []string{"a1", "b1", "c1", "a2", "b2", "a3"}, idsOf(queue))
}

func TestBuildFairQueuePreservesPerWorkspaceOrder(t *testing.T) {
	jobs := jobList("b1", "a1", "b2", "a2", "b3")

	queue := BuildFairQueue(jobs)

	// Buckets follow first-seen order: b before a.
	assert.Equal(t, []string{"b1", "a1", "b2", "a2", "b3"}, idsOf(queue))
}

func TestBuildFairQueueSingleWorkspace(t *testing.T) {
	jobs := jobList("a1", "a2", "a3")
	assert.Equal(t, []string{"a1", "a2", "a3"}, idsOf(BuildFairQueue(jobs)))
}

func TestBuildFairQueueEmpty(t *testing.T) {
	assert.Empty(t, BuildFairQueue(nil))
	assert.Len(t, BuildFairQueue(jobList("a1")), 1)
}
