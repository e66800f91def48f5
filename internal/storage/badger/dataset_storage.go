// -----------------------------------------------------------------------
// Dataset Storage - draft and golden stores with atomic promotion
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// draftEntry and goldenEntry give the two stores separate badgerhold buckets.
type draftEntry models.DatasetEntry
type goldenEntry models.DatasetEntry

// maxConflictRetries bounds commit retries on Badger write conflicts
const maxConflictRetries = 5

// DatasetStorage implements the DatasetStorage interface for Badger
type DatasetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDatasetStorage creates a new DatasetStorage instance
func NewDatasetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DatasetStorage {
	return &DatasetStorage{
		db:     db,
		logger: logger,
	}
}

// AllocateFilename builds "<basename with dots replaced>_<seq>_java.json" from a
// monotonically increasing Badger sequence, so concurrent callers never collide.
func (s *DatasetStorage) AllocateFilename(ctx context.Context, sourceFile string) (string, error) {
	n, err := s.db.NextSequence()
	if err != nil {
		return "", err
	}

	base := filepath.Base(sourceFile)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "unit"
	}
	base = strings.ReplaceAll(base, ".", "_")

	return fmt.Sprintf("%s_%06d_java.json", base, n), nil
}

func (s *DatasetStorage) SaveDraft(ctx context.Context, entry *models.DatasetEntry) error {
	if entry.Filename == "" {
		return fmt.Errorf("dataset entry filename is required")
	}
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		var golden goldenEntry
		if err := s.db.Store().TxGet(tx, entry.Filename, &golden); err == nil {
			return interfaces.NewResourceConflict("filename %s already exists in the golden dataset", entry.Filename)
		} else if !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		return s.db.Store().TxInsert(tx, entry.Filename, (*draftEntry)(entry))
	})
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return interfaces.NewResourceConflict("draft %s already exists", entry.Filename)
	}
	if err != nil {
		var typed *interfaces.Error
		if errors.As(err, &typed) {
			return err
		}
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (s *DatasetStorage) UpdateDraft(ctx context.Context, entry *models.DatasetEntry) error {
	err := s.db.Store().Update(entry.Filename, (*draftEntry)(entry))
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.NewNotFound("dataset entry %s not found", entry.Filename)
	}
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	return nil
}

func (s *DatasetStorage) GetDraft(ctx context.Context, filename string) (*models.DatasetEntry, error) {
	var entry draftEntry
	if err := s.db.Store().Get(filename, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.NewNotFound("dataset entry %s not found", filename)
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return (*models.DatasetEntry)(&entry), nil
}

func (s *DatasetStorage) ListDrafts(ctx context.Context) ([]*models.DatasetEntry, error) {
	var records []draftEntry
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	entries := make([]*models.DatasetEntry, 0, len(records))
	for i := range records {
		entries = append(entries, (*models.DatasetEntry)(&records[i]))
	}
	sortEntries(entries)
	return entries, nil
}

func (s *DatasetStorage) DeleteDraft(ctx context.Context, filename string) error {
	err := s.db.Store().Delete(filename, &draftEntry{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.NewNotFound("dataset entry %s not found", filename)
	}
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (s *DatasetStorage) GetGolden(ctx context.Context, filename string) (*models.DatasetEntry, error) {
	var entry goldenEntry
	if err := s.db.Store().Get(filename, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.NewNotFound("golden entry %s not found", filename)
		}
		return nil, fmt.Errorf("failed to get golden entry: %w", err)
	}
	return (*models.DatasetEntry)(&entry), nil
}

func (s *DatasetStorage) ListGolden(ctx context.Context) ([]*models.DatasetEntry, error) {
	var records []goldenEntry
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list golden entries: %w", err)
	}
	entries := make([]*models.DatasetEntry, 0, len(records))
	for i := range records {
		entries = append(entries, (*models.DatasetEntry)(&records[i]))
	}
	sortEntries(entries)
	return entries, nil
}

// Promote inserts the golden copy and removes the draft in a single transaction.
// Concurrent promotions of the same filename conflict at commit; the retry then
// observes the golden copy and reports InvalidStateTransition.
func (s *DatasetStorage) Promote(ctx context.Context, entry *models.DatasetEntry) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.promote(entry)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		var typed *interfaces.Error
		if errors.As(err, &typed) {
			return err
		}
		return fmt.Errorf("failed to promote entry: %w", err)
	}

	s.logger.Debug().Str("filename", entry.Filename).Msg("Entry promoted to golden store")
	return nil
}

func (s *DatasetStorage) promote(entry *models.DatasetEntry) error {
	return s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		if err := s.db.Store().TxInsert(tx, entry.Filename, (*goldenEntry)(entry)); err != nil {
			if errors.Is(err, badgerhold.ErrKeyExists) {
				return interfaces.NewInvalidStateTransition("entry %s is already approved", entry.Filename)
			}
			return err
		}
		if err := s.db.Store().TxDelete(tx, entry.Filename, &draftEntry{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return interfaces.NewNotFound("dataset entry %s not found", entry.Filename)
			}
			return err
		}
		return nil
	})
}

func sortEntries(entries []*models.DatasetEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Filename < entries[j].Filename
	})
}
