package retrieval

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// Retriever implements interfaces.ContextRetriever over the active repository.
// Without an active, indexed repository it returns a simulated context.
type Retriever struct {
	repos  interfaces.RepositoryStorage
	index  interfaces.VectorIndex
	logger arbor.ILogger
}

// NewRetriever creates a retriever
func NewRetriever(repos interfaces.RepositoryStorage, index interfaces.VectorIndex, logger arbor.ILogger) *Retriever {
	return &Retriever{repos: repos, index: index, logger: logger}
}

// Retrieve returns up to topK snippets relevant to unit.
func (r *Retriever) Retrieve(ctx context.Context, unit *models.SourceUnit, topK int) (*models.RetrievalContext, error) {
	repo, err := r.repos.GetActive(ctx)
	if err != nil || !repo.Indexed {
		return models.NewSimulatedContext(), nil
	}

	rctx, err := r.index.Query(ctx, repo.Name, unit.Code, topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn().Err(err).
			Str("repository", repo.Name).
			Str("unit", unit.ID).
			Msg("Index query failed, falling back to simulated context")
		return models.NewSimulatedContext(), nil
	}
	return rctx, nil
}
