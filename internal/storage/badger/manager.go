package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	dataset    interfaces.DatasetStorage
	job        interfaces.JobStorage
	jobLog     interfaces.JobLogStorage
	project    interfaces.ProjectStorage
	repository interfaces.RepositoryStorage
	index      interfaces.IndexStorage
	kv         interfaces.KeyValueStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")
	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:         db,
		dataset:    NewDatasetStorage(db, logger),
		job:        NewJobStorage(db, logger),
		jobLog:     NewJobLogStorage(db, logger),
		project:    NewProjectStorage(db, logger),
		repository: NewRepositoryStorage(db, logger),
		index:      NewIndexStorage(db, logger),
		kv:         NewKVStorage(db, logger),
		logger:     logger,
	}
}

func (m *Manager) DatasetStorage() interfaces.DatasetStorage       { return m.dataset }
func (m *Manager) JobStorage() interfaces.JobStorage               { return m.job }
func (m *Manager) JobLogStorage() interfaces.JobLogStorage         { return m.jobLog }
func (m *Manager) ProjectStorage() interfaces.ProjectStorage       { return m.project }
func (m *Manager) RepositoryStorage() interfaces.RepositoryStorage { return m.repository }
func (m *Manager) IndexStorage() interfaces.IndexStorage           { return m.index }
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage     { return m.kv }

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
