package outreach

import (
	"context"

	"go.uber.org/zap"
)

// LogSender is the development Sender: it logs the delivery and succeeds.
// Production deployments wire a real channel client here.
type LogSender struct {
	log *zap.SugaredLogger
}

// NewLogSender creates a logging sender.
func NewLogSender(log *zap.SugaredLogger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the job and reports success.
func (s *LogSender) Send(ctx context.Context, job *Job) error {
	s.log.Infow("Delivering outreach job",
		"job_id", job.ID,
		"workspace_id", job.WorkspaceID,
		"job_type", job.JobType,
	)
	return nil
}
