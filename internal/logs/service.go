package logs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// DefaultTail is the number of lines returned when no limit is given
const DefaultTail = 50

// Service reads and writes job logs
type Service struct {
	storage    interfaces.JobLogStorage
	jobStorage interfaces.JobStorage
	logger     arbor.ILogger
}

// NewService creates a job log service
func NewService(storage interfaces.JobLogStorage, jobStorage interfaces.JobStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage:    storage,
		jobStorage: jobStorage,
		logger:     logger,
	}
}

// Tail returns the last limit entries of a job, oldest first.
func (s *Service) Tail(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	if _, err := s.jobStorage.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTail
	}
	return s.storage.GetLogs(ctx, jobID, limit)
}

// Record appends one entry directly, bypassing the logger channel. Used for
// job milestones that must be persisted before the caller returns.
func (s *Service) Record(ctx context.Context, jobID, level, phase, format string, args ...interface{}) {
	now := time.Now()
	entry := models.JobLogEntry{
		JobID:         jobID,
		Timestamp:     now.Format("15:04:05"),
		FullTimestamp: now.Format(time.RFC3339Nano),
		Level:         convertTo3Letter(level),
		Message:       fmt.Sprintf(format, args...),
		Phase:         phase,
	}
	if err := s.storage.AppendLog(ctx, jobID, entry); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record job log")
	}
}

// Delete removes every log entry of a job.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	return s.storage.DeleteLogs(ctx, jobID)
}
