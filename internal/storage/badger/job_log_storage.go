package badger

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// logSequence orders log lines written within the same nanosecond.
// Seeded from the clock so ordering holds across restarts.
var logSequence = uint64(time.Now().UnixNano())

// JobLogStorage implements the JobLogStorage interface for Badger
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobLogStorage) AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry) error {
	entry.JobID = jobID
	entry.Sequence = atomic.AddUint64(&logSequence, 1)
	if entry.FullTimestamp == "" {
		now := time.Now()
		entry.FullTimestamp = now.Format(time.RFC3339Nano)
		entry.Timestamp = now.Format("15:04:05")
	}

	key := fmt.Sprintf("%s_%020d", jobID, entry.Sequence)
	if err := s.db.Store().Insert(key, &entry); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (s *JobLogStorage) AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error {
	for _, entry := range entries {
		if err := s.AppendLog(ctx, jobID, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	var logs []models.JobLogEntry
	if err := s.db.Store().Find(&logs, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Sequence < logs[j].Sequence
	})

	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.JobLogEntry{}, badgerhold.Where("JobID").Eq(jobID).Index("JobID")); err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}
	return nil
}
