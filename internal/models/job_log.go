package models

// JobLogEntry is one persisted log line of a job.
type JobLogEntry struct {
	JobID         string `json:"job_id" badgerhold:"index"`
	Timestamp     string `json:"timestamp"`      // HH:MM:SS for display
	FullTimestamp string `json:"full_timestamp"` // RFC3339Nano for sorting
	Sequence      uint64 `json:"sequence"`
	Level         string `json:"level"`
	Message       string `json:"message"`
	Phase         string `json:"phase,omitempty"`
	Originator    string `json:"originator,omitempty"`
}
