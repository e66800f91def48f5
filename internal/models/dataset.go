// -----------------------------------------------------------------------
// Dataset - draft and golden translation entries
// -----------------------------------------------------------------------

package models

import "time"

// EntryStatus is the curation state of a dataset entry.
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "draft"
	EntryStatusReviewing EntryStatus = "reviewing"
	EntryStatusApproved  EntryStatus = "approved"
)

// PipelineVersion is recorded on every generated entry.
const PipelineVersion = "hybrid-v1"

// DatasetEntry is one generated translation with its full provenance.
type DatasetEntry struct {
	Filename        string            `json:"filename"`
	SourceFile      string            `json:"source_file"`
	InputCode       string            `json:"input_code"`
	OutputCode      string            `json:"output_code"`
	OriginalOutput  string            `json:"original_output,omitempty"` // Generated code before review edits
	AnalysisTrace   []string          `json:"analysis_trace"`
	Guidance        *Guidance         `json:"guidance"`
	Reward          *RewardScore      `json:"reward"`
	RLCoderContext  *RetrievalContext `json:"rlcoder_context"`
	TargetLang      string            `json:"target_lang"`
	ModelUsed       string            `json:"model_used"`
	Checkpoint      string            `json:"checkpoint"`
	Attempts        int               `json:"attempts"`
	TestCode        string            `json:"test_code,omitempty"`
	PipelineVersion string            `json:"pipeline_version"`
	JobID           string            `json:"job_id,omitempty"`
	Status          EntryStatus       `json:"status" badgerhold:"index"`
	Approved        bool              `json:"approved"`
	HumanVerified   bool              `json:"human_verified"`
	CreatedAt       time.Time         `json:"created_at"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
}

// DatasetSummary is the list projection of an entry.
type DatasetSummary struct {
	Filename   string      `json:"filename"`
	SourceFile string      `json:"source_file"`
	TargetLang string      `json:"target_lang"`
	ModelUsed  string      `json:"model_used"`
	Reward     float64     `json:"reward"`
	Status     EntryStatus `json:"status"`
	Approved   bool        `json:"approved"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Summary returns the list projection of the entry.
func (e *DatasetEntry) Summary() DatasetSummary {
	s := DatasetSummary{
		Filename:   e.Filename,
		SourceFile: e.SourceFile,
		TargetLang: e.TargetLang,
		ModelUsed:  e.ModelUsed,
		Status:     e.Status,
		Approved:   e.Approved,
		CreatedAt:  e.CreatedAt,
	}
	if e.Reward != nil {
		s.Reward = e.Reward.Total
	}
	return s
}

// DatasetStats aggregates the draft and golden stores.
type DatasetStats struct {
	Drafts        int     `json:"drafts"`
	Reviewing     int     `json:"reviewing"`
	Golden        int     `json:"golden"`
	AverageReward float64 `json:"average_reward"`
}

// GeneratedTest is the result of generating a test for an entry.
type GeneratedTest struct {
	Filename string `json:"filename"`
	TestFile string `json:"test_file"`
	Code     string `json:"code"`
}
