package models

import "time"

// RepositoryStats summarizes an indexed repository.
type RepositoryStats struct {
	Files   int `json:"files"`
	Lines   int `json:"lines"`
	Classes int `json:"classes"`
}

// Repository is an entry of the retrieval registry.
type Repository struct {
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	LocalPath string          `json:"local_path"`
	Indexed   bool            `json:"indexed"`
	IndexedAt *time.Time      `json:"indexed_at,omitempty"`
	Stats     RepositoryStats `json:"stats"`
	Active    bool            `json:"active" badgerhold:"index"`
	CreatedAt time.Time       `json:"created_at"`
}

// IndexDocument is one file stored in a repository's retrieval index.
type IndexDocument struct {
	ID         string   `json:"id"` // <repository>/<path>
	Repository string   `json:"repository" badgerhold:"index"`
	Path       string   `json:"path"`
	Code       string   `json:"code"`
	Tokens     []string `json:"tokens"` // De-duplicated identifier tokens
}
