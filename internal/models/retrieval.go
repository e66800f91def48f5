package models

// RetrievalMode tags how a RetrievalContext was produced.
type RetrievalMode string

const (
	RetrievalModeIndexed   RetrievalMode = "indexed"
	RetrievalModeSimulated RetrievalMode = "simulated"
)

// RetrievalContext holds ranked snippets for one generation request.
// SourcePaths and SimilarityScores are parallel to Snippets.
type RetrievalContext struct {
	Snippets         []string      `json:"relevant_code"`
	SourcePaths      []string      `json:"file_paths"`
	SimilarityScores []float64     `json:"similarity_scores"`
	Mode             RetrievalMode `json:"mode"`
	Repository       string        `json:"repository,omitempty"`
}

// NewSimulatedContext returns the zero-context variant used when no index is available.
func NewSimulatedContext() *RetrievalContext {
	return &RetrievalContext{
		Snippets:         []string{},
		SourcePaths:      []string{},
		SimilarityScores: []float64{},
		Mode:             RetrievalModeSimulated,
	}
}

// Len returns the number of snippets.
func (c *RetrievalContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Snippets)
}
