package models

// ItemState is the per-item pipeline state.
type ItemState string

const (
	ItemQueued     ItemState = "queued"
	ItemRetrieving ItemState = "retrieving"
	ItemGuiding    ItemState = "guiding"
	ItemGenerating ItemState = "generating"
	ItemValidating ItemState = "validating"
	ItemScored     ItemState = "scored"
	ItemPersisted  ItemState = "persisted"
	ItemFailed     ItemState = "failed"
)

// ItemOutcome is the result of running one unit through the pipeline.
type ItemOutcome struct {
	UnitID    string    `json:"unit_id"`
	State     ItemState `json:"state"`
	FailedAt  ItemState `json:"failed_at,omitempty"` // Stage that was running when the item failed
	Filename  string    `json:"filename,omitempty"`
	Reward    float64   `json:"reward"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
}

// Succeeded reports whether the item reached a persisted or scored state.
func (o ItemOutcome) Succeeded() bool {
	return o.State == ItemPersisted || o.State == ItemScored
}

// GenerationRequest captures every per-call setting of a generation job by value.
type GenerationRequest struct {
	Repository string `json:"repository,omitempty"`
	Limit      int    `json:"limit"`
	TargetLang string `json:"target_lang"`
	Model      string `json:"model"`
	Checkpoint string `json:"checkpoint"`
	TopK       int    `json:"top_k"`
}

// TranscribeResult is the synchronous single-item pipeline result.
type TranscribeResult struct {
	Output   string            `json:"output"`
	Guidance *Guidance         `json:"guidance"`
	Reward   *RewardScore      `json:"reward"`
	Context  *RetrievalContext `json:"context"`
	Attempts int               `json:"attempts"`
	Trace    []string          `json:"analysis_trace"`
}
