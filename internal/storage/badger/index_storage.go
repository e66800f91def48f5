package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// IndexStorage implements the IndexStorage interface for Badger
type IndexStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewIndexStorage creates a new IndexStorage instance
func NewIndexStorage(db *BadgerDB, logger arbor.ILogger) interfaces.IndexStorage {
	return &IndexStorage{db: db, logger: logger}
}

// ReplaceIndex swaps a repository's documents. Large indexes are written in
// batches, so readers may briefly observe a partially rebuilt index.
func (s *IndexStorage) ReplaceIndex(ctx context.Context, repository string, docs []models.IndexDocument) error {
	if err := s.DeleteIndex(ctx, repository); err != nil {
		return err
	}

	const batchSize = 200
	for start := 0; start < len(docs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
			for i := start; i < end; i++ {
				doc := docs[i]
				doc.Repository = repository
				if doc.ID == "" {
					doc.ID = repository + "/" + doc.Path
				}
				if err := s.db.Store().TxUpsert(tx, doc.ID, &doc); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write index batch: %w", err)
		}
	}

	s.logger.Debug().Str("repository", repository).Int("documents", len(docs)).Msg("Index replaced")
	return nil
}

func (s *IndexStorage) ListDocuments(ctx context.Context, repository string) ([]models.IndexDocument, error) {
	var docs []models.IndexDocument
	if err := s.db.Store().Find(&docs, badgerhold.Where("Repository").Eq(repository).Index("Repository")); err != nil {
		return nil, fmt.Errorf("failed to list index documents: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (s *IndexStorage) DeleteIndex(ctx context.Context, repository string) error {
	if err := s.db.Store().DeleteMatching(&models.IndexDocument{}, badgerhold.Where("Repository").Eq(repository).Index("Repository")); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}
