package dispatch

// QuotaFunc returns the concurrency ceiling for a workspace.
type QuotaFunc func(workspaceID string) int

// Claimer scans a fair-ordered queue and claims the next job whose workspace
// is under its concurrency quota, tracking live counts in memory.
//
// A Claimer is scoped to one scheduling pass. It is not safe for concurrent
// use; each pass owns its own instance so passes and tests never
// cross-contaminate state.
type Claimer struct {
	quota  QuotaFunc
	active map[string]int
}

// NewClaimer creates a claimer with no in-flight work.
func NewClaimer(quota QuotaFunc) *Claimer {
	return NewClaimerWithActive(quota, nil)
}

// NewClaimerWithActive creates a claimer seeded with currently-active
// per-workspace counts (e.g. jobs already running from earlier cycles).
// The map is copied; the caller's map is not mutated.
func NewClaimerWithActive(quota QuotaFunc, active map[string]int) *Claimer {
	counts := make(map[string]int, len(active))
	for ws, n := range active {
		counts[ws] = n
	}
	return &Claimer{quota: quota, active: counts}
}

// Claim removes and returns the first job in the queue whose workspace is
// strictly below its quota, incrementing that workspace's active count.
//
// Returns ok=false when every remaining job's workspace is at or over quota.
// Callers must not busy-loop on that result; it means "wait for an in-flight
// job to finish."
func (c *Claimer) Claim(queue *[]Job) (Job, bool) {
	for i, job := range *queue {
		if c.active[job.WorkspaceID] < c.quota(job.WorkspaceID) {
			c.active[job.WorkspaceID]++
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return job, true
		}
	}
	return Job{}, false
}

// Release decrements a workspace's active count after a claimed job
// finishes. Underflow is clamped to zero.
func (c *Claimer) Release(workspaceID string) {
	if c.active[workspaceID] > 0 {
		c.active[workspaceID]--
	}
}

// ActiveCount returns the live count for a workspace.
func (c *Claimer) ActiveCount(workspaceID string) int {
	return c.active[workspaceID]
}

// SelectBatch is the one-shot partitioned selector: it greedily picks jobs
// from an already-ordered due list, preserving input order, refusing to
// exceed either the global cap or the flat per-workspace cap. Used when only
// the next batch size is constrained, not live concurrency.
func SelectBatch(jobs []Job, globalCap, perWorkspaceCap int) []Job {
	if globalCap <= 0 || perWorkspaceCap <= 0 {
		return nil
	}

	selected := make([]Job, 0, min(globalCap, len(jobs)))
	perWorkspace := make(map[string]int)
	for _, job := range jobs {
		if len(selected) >= globalCap {
			break
		}
		if perWorkspace[job.WorkspaceID] >= perWorkspaceCap {
			continue
		}
		perWorkspace[job.WorkspaceID]++
		selected = append(selected, job)
	}
	return selected
}
