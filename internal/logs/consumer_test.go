package logs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

type memLogStore struct {
	mu   sync.Mutex
	logs map[string][]models.JobLogEntry
}

func newMemLogStore() *memLogStore {
	return &memLogStore{logs: make(map[string][]models.JobLogEntry)}
}

func (m *memLogStore) AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry) error {
	return m.AppendLogs(ctx, jobID, []models.JobLogEntry{entry})
}

func (m *memLogStore) AppendLogs(_ context.Context, jobID string, entries []models.JobLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[jobID] = append(m.logs[jobID], entries...)
	return nil
}

func (m *memLogStore) GetLogs(_ context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.logs[jobID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]models.JobLogEntry(nil), all...), nil
}

func (m *memLogStore) DeleteLogs(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, jobID)
	return nil
}

func (m *memLogStore) count(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs[jobID])
}

type recordingEvents struct {
	interfaces.EventService
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Publish(_ context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) published() []interfaces.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interfaces.Event(nil), r.events...)
}

func TestTransformEvent(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC)
	entry := transformEvent(arbormodels.LogEvent{
		CorrelationID: "job-1",
		Level:         log.WarnLevel,
		Timestamp:     ts,
		Message:       "item failed",
		Fields: map[string]interface{}{
			"phase":      "generate",
			"originator": "pipeline",
			"unit":       "Shop",
			"attempt":    2,
		},
	})

	assert.Equal(t, "job-1", entry.JobID)
	assert.Equal(t, "10:20:30", entry.Timestamp)
	assert.Equal(t, "WRN", entry.Level)
	assert.Equal(t, "generate", entry.Phase)
	assert.Equal(t, "pipeline", entry.Originator)
	// extra fields are appended in key order
	assert.Equal(t, "item failed attempt=2 unit=Shop", entry.Message)
}

func TestConvertTo3Letter(t *testing.T) {
	assert.Equal(t, "INF", convertTo3Letter("info"))
	assert.Equal(t, "WRN", convertTo3Letter("warning"))
	assert.Equal(t, "ERR", convertTo3Letter("ERROR"))
	assert.Equal(t, "DBG", convertTo3Letter("debug"))
	assert.Equal(t, "TRC", convertTo3Letter("trc"))
	assert.Equal(t, "INF", convertTo3Letter("something"))
}

func TestConsumer_PersistsCorrelatedEntries(t *testing.T) {
	store := newMemLogStore()
	events := &recordingEvents{}
	consumer := NewConsumer(store, events, arbor.NewLogger(), "warn")
	require.NoError(t, consumer.Start())

	now := time.Now()
	consumer.GetChannel() <- []arbormodels.LogEvent{
		{CorrelationID: "job-a", Level: log.InfoLevel, Timestamp: now, Message: "started"},
		{CorrelationID: "job-a", Level: log.ErrorLevel, Timestamp: now, Message: "item failed"},
		{CorrelationID: "job-b", Level: log.InfoLevel, Timestamp: now, Message: "indexing"},
		{CorrelationID: "", Level: log.InfoLevel, Timestamp: now, Message: "uncorrelated"},
		{CorrelationID: "req-1", Level: log.InfoLevel, Timestamp: now, Message: "HTTP request completed"},
	}

	require.Eventually(t, func() bool {
		return store.count("job-a") == 2 && store.count("job-b") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, consumer.Stop())

	assert.Zero(t, store.count("req-1"))

	// only the error line reaches the warn threshold
	published := events.published()
	require.Len(t, published, 1)
	assert.Equal(t, interfaces.EventLog, published[0].Type)
	payload := published[0].Payload.(map[string]interface{})
	assert.Equal(t, "job-a", payload["job_id"])
	assert.Equal(t, "ERR", payload["level"])
}

func TestService_TailRequiresJob(t *testing.T) {
	store := newMemLogStore()
	jobs := &memJobs{jobs: map[string]*models.Job{"job-1": {ID: "job-1"}}}
	svc := NewService(store, jobs, arbor.NewLogger())
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		svc.Record(ctx, "job-1", "info", "train", "epoch %d", i)
	}

	tail, err := svc.Tail(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, tail, DefaultTail)
	assert.Equal(t, "epoch 59", tail[len(tail)-1].Message)
	assert.Equal(t, "train", tail[0].Phase)

	_, err = svc.Tail(ctx, "missing", 10)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "job-1"))
	assert.Zero(t, store.count("job-1"))
}

type memJobs struct {
	interfaces.JobStorage
	jobs map[string]*models.Job
}

func (m *memJobs) GetJob(_ context.Context, id string) (*models.Job, error) {
	if j, ok := m.jobs[id]; ok {
		return j, nil
	}
	return nil, interfaces.NewNotFound("job %s", id)
}
