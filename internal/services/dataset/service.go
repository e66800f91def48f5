// -----------------------------------------------------------------------
// Dataset curation - draft review, approval into the golden store, export
// -----------------------------------------------------------------------

package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// TestGenerator writes a test file for generated code.
type TestGenerator interface {
	GenerateTest(ctx context.Context, code, sourceFile, model string) (string, error)
}

// Service implements the curation lifecycle draft -> reviewing -> approved | rejected.
type Service struct {
	storage   interfaces.DatasetStorage
	tests     TestGenerator
	events    interfaces.EventService
	testModel string
	logger    arbor.ILogger
}

// NewService creates the dataset service
func NewService(storage interfaces.DatasetStorage, tests TestGenerator, events interfaces.EventService, testModel string, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		tests:     tests,
		events:    events,
		testModel: testModel,
		logger:    logger,
	}
}

// List returns summaries of drafts and golden entries, newest first.
// status filters by entry status when non-empty.
func (s *Service) List(ctx context.Context, status models.EntryStatus) ([]models.DatasetSummary, error) {
	var entries []*models.DatasetEntry

	if status != models.EntryStatusApproved {
		drafts, err := s.storage.ListDrafts(ctx)
		if err != nil {
			return nil, err
		}
		entries = append(entries, drafts...)
	}
	if status == "" || status == models.EntryStatusApproved {
		golden, err := s.storage.ListGolden(ctx)
		if err != nil {
			return nil, err
		}
		entries = append(entries, golden...)
	}

	summaries := make([]models.DatasetSummary, 0, len(entries))
	for _, e := range entries {
		if status != "" && e.Status != status {
			continue
		}
		summaries = append(summaries, e.Summary())
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Get returns a draft or golden entry.
func (s *Service) Get(ctx context.Context, filename string) (*models.DatasetEntry, error) {
	entry, err := s.storage.GetDraft(ctx, filename)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}
	return s.storage.GetGolden(ctx, filename)
}

// Open marks a draft as under review. Only the status marker changes; opening
// a reviewing entry again is a no-op.
func (s *Service) Open(ctx context.Context, filename string) (*models.DatasetEntry, error) {
	entry, err := s.draft(ctx, filename)
	if err != nil {
		return nil, err
	}
	if entry.Status == models.EntryStatusReviewing {
		return entry, nil
	}

	entry.Status = models.EntryStatusReviewing
	if err := s.storage.UpdateDraft(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("filename", filename).Msg("Entry opened for review")
	return entry, nil
}

// Approve promotes a draft to the golden store. When editedCode is non-empty it
// replaces the generated output, which is kept as OriginalOutput. A draft that
// was never opened is reviewed implicitly: the decision is the review.
func (s *Service) Approve(ctx context.Context, filename string, editedCode string) (*models.DatasetEntry, error) {
	entry, err := s.draft(ctx, filename)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(editedCode) != "" && editedCode != entry.OutputCode {
		entry.OriginalOutput = entry.OutputCode
		entry.OutputCode = editedCode
	}

	now := time.Now()
	entry.Status = models.EntryStatusApproved
	entry.Approved = true
	entry.HumanVerified = true
	entry.ApprovedAt = &now
	entry.ReviewedAt = &now

	if err := s.storage.Promote(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("filename", filename).
		Bool("edited", entry.OriginalOutput != "").
		Msg("Entry approved")
	s.publish(ctx, interfaces.EventEntryApproved, entry)

	return entry, nil
}

// Reject permanently deletes a draft, opened or not.
func (s *Service) Reject(ctx context.Context, filename string) error {
	entry, err := s.draft(ctx, filename)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteDraft(ctx, filename); err != nil {
		return err
	}

	s.logger.Info().Str("filename", filename).Msg("Entry rejected")
	s.publish(ctx, interfaces.EventEntryRejected, entry)
	return nil
}

// GenerateTest produces a test file for a draft or approved entry. The stored
// entry is left unchanged.
func (s *Service) GenerateTest(ctx context.Context, filename string, model string) (*models.GeneratedTest, error) {
	entry, err := s.Get(ctx, filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.OutputCode) == "" {
		return nil, interfaces.NewInvalidStateTransition("entry %s has no output code to test", filename)
	}
	if model == "" {
		model = s.testModel
	}

	code, err := s.tests.GenerateTest(ctx, entry.OutputCode, entry.SourceFile, model)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("Test generation failed")
		return nil, err
	}

	return &models.GeneratedTest{
		Filename: filename,
		TestFile: TestFileName(entry.SourceFile),
		Code:     code,
	}, nil
}

// Stats returns draft and golden counts and the average reward over all entries.
func (s *Service) Stats(ctx context.Context) (*models.DatasetStats, error) {
	drafts, err := s.storage.ListDrafts(ctx)
	if err != nil {
		return nil, err
	}
	golden, err := s.storage.ListGolden(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.DatasetStats{Golden: len(golden)}
	var sum float64
	var scored int
	for _, e := range drafts {
		if e.Status == models.EntryStatusReviewing {
			stats.Reviewing++
		} else {
			stats.Drafts++
		}
	}
	for _, e := range append(drafts, golden...) {
		if e.Reward != nil {
			sum += e.Reward.Total
			scored++
		}
	}
	if scored > 0 {
		stats.AverageReward = sum / float64(scored)
	}
	return stats, nil
}

// Export writes every golden entry as one JSON object per line.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	golden, err := s.storage.ListGolden(ctx)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	for i, e := range golden {
		if err := enc.Encode(e); err != nil {
			return i, fmt.Errorf("failed to write entry %s: %w", e.Filename, err)
		}
	}
	return len(golden), nil
}

// ExportToFile writes the golden set to path, replacing it atomically.
func (s *Service) ExportToFile(ctx context.Context, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.jsonl")
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := s.Export(ctx, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to write export file: %w", err)
	}

	s.logger.Info().Int("entries", n).Str("path", path).Msg("Golden dataset exported")
	return n, nil
}

// draft loads a draft and reports golden entries as already approved.
func (s *Service) draft(ctx context.Context, filename string) (*models.DatasetEntry, error) {
	entry, err := s.storage.GetDraft(ctx, filename)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}
	if _, gerr := s.storage.GetGolden(ctx, filename); gerr == nil {
		return nil, interfaces.NewInvalidStateTransition("entry %s is already approved", filename)
	}
	return nil, err
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, entry *models.DatasetEntry) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"filename":    entry.Filename,
		"source_file": entry.SourceFile,
		"status":      string(entry.Status),
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish dataset event")
	}
}

// TestFileName maps "src/com/shop/ShoppingCart.java" to "shopping_cart_test.go".
func TestFileName(sourceFile string) string {
	base := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	if base == "" || base == "." {
		return "generated_test.go"
	}

	var b strings.Builder
	runes := []rune(base)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String() + "_test.go"
}
