package guidance

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// Stage runs guidance inference with loaded checkpoints cached by path and
// modification time.
type Stage struct {
	runtime interfaces.GuidanceRuntime
	logger  arbor.ILogger

	mu     sync.Mutex
	loaded map[string]interfaces.GuidanceModel
}

// NewStage creates the guidance stage
func NewStage(runtime interfaces.GuidanceRuntime, logger arbor.ILogger) *Stage {
	return &Stage{
		runtime: runtime,
		logger:  logger,
		loaded:  make(map[string]interfaces.GuidanceModel),
	}
}

// Guide produces guidance for unit using checkpoint. Failures are final for
// the item; the caller does not retry them.
func (s *Stage) Guide(ctx context.Context, unit *models.SourceUnit, rctx *models.RetrievalContext, checkpoint models.Checkpoint) (*models.Guidance, error) {
	if !checkpoint.Valid {
		return nil, interfaces.NewConfigurationError("checkpoint %s is not valid", checkpoint.Name)
	}
	if rctx == nil {
		rctx = models.NewSimulatedContext()
	}

	model, err := s.model(ctx, checkpoint)
	if err != nil {
		return nil, err
	}

	g, err := model.Infer(ctx, unit, rctx)
	if err != nil {
		return nil, err
	}

	g.CriticalConcerns = normalizeSet(g.CriticalConcerns)
	g.RecommendedPatterns = normalizeSet(g.RecommendedPatterns)
	g.Checkpoint = checkpoint.Name
	return g, nil
}

func (s *Stage) model(ctx context.Context, checkpoint models.Checkpoint) (interfaces.GuidanceModel, error) {
	key := checkpoint.Path + "@" + checkpoint.ModifiedAt.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.loaded[key]; ok {
		return m, nil
	}

	m, err := s.runtime.Load(ctx, checkpoint)
	if err != nil {
		s.logger.Error().Err(err).Str("checkpoint", checkpoint.Name).Msg("Failed to load checkpoint")
		return nil, err
	}
	s.loaded[key] = m

	s.logger.Info().
		Str("checkpoint", checkpoint.Name).
		Int("epoch", checkpoint.Epoch).
		Msg("Guidance checkpoint loaded")
	return m, nil
}

// normalizeSet lower-cases, trims, de-duplicates and sorts.
func normalizeSet(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
