package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/storage/badger"
)

// NewStorageManager creates the storage manager for the configured database
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	return badger.NewManager(logger, &config.Storage.Badger)
}
