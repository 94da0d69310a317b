package dispatch

// BuildFairQueue reorders jobs round-robin across workspaces so that no
// workspace with a large backlog can monopolize the front of the queue.
//
// Workspaces are bucketed in the order their first job appears; the output
// interleaves one job per workspace per round until all buckets drain,
// preserving each workspace's internal relative order. Deterministic, O(n).
func BuildFairQueue(jobs []Job) []Job {
	if len(jobs) <= 1 {
		return jobs
	}

	var order []string
	buckets := make(map[string][]Job)
	for _, job := range jobs {
		if _, seen := buckets[job.WorkspaceID]; !seen {
			order = append(order, job.WorkspaceID)
		}
		buckets[job.WorkspaceID] = append(buckets[job.WorkspaceID], job)
	}

	out := make([]Job, 0, len(jobs))
	for len(out) < len(jobs) {
		for _, ws := range order {
			bucket := buckets[ws]
			if len(bucket) == 0 {
				continue
			}
			out = append(out, bucket[0])
			buckets[ws] = bucket[1:]
		}
	}
	return out
}
