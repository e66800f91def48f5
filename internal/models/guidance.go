package models

import "time"

// Guidance is the structured strategy produced by the guidance model.
type Guidance struct {
	Strategy            string   `json:"migration_strategy"`
	CriticalConcerns    []string `json:"critical_concerns"`
	RecommendedPatterns []string `json:"recommended_patterns"`
	Checkpoint          string   `json:"checkpoint,omitempty"` // Checkpoint name used for inference
}

// Checkpoint is a saved state of the guidance model.
type Checkpoint struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Epoch      int       `json:"epoch"`
	Valid      bool      `json:"valid"`
	IsDefault  bool      `json:"is_default"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Reason     string    `json:"reason,omitempty"` // Why the checkpoint is invalid
}
