package models

import "time"

// Project is a training project over one source repository.
type Project struct {
	Name       string    `json:"name"`
	RepoURL    string    `json:"repo"`
	Branch     string    `json:"branch"`
	Extensions []string  `json:"extensions"`
	Epochs     int       `json:"epochs"`
	BatchSize  int       `json:"batch_size"`
	Status     JobState  `json:"status"`
	JobID      string    `json:"job_id,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
