package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/neto007/HRM-pipeline/internal/common"
)

// filenameSequenceKey names the Badger sequence used for dataset filename allocation
const filenameSequenceKey = "seq:dataset_filename"

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
	seq    *badger.Sequence
}

// NewBadgerDB creates a new Badger database connection
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	db, err := newBadgerDB(store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	db.config = config

	logger.Debug().Str("path", config.Path).Msg("Badger database initialized")

	return db, nil
}

func newBadgerDB(store *badgerhold.Store, logger arbor.ILogger) (*BadgerDB, error) {
	seq, err := store.Badger().GetSequence([]byte(filenameSequenceKey), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to open filename sequence: %w", err)
	}
	return &BadgerDB{
		store:  store,
		logger: logger,
		seq:    seq,
	}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// NextSequence returns the next value of the filename sequence. Values are never repeated,
// including across restarts (unused leased values are skipped).
func (b *BadgerDB) NextSequence() (uint64, error) {
	n, err := b.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return n + 1, nil
}

// Close closes the database connection
func (b *BadgerDB) Close() error {
	if b.seq != nil {
		if err := b.seq.Release(); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to release filename sequence")
		}
	}
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
