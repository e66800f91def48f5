package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair represents a single key/value pair with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage holds operator settings and credentials (API keys, selected checkpoint).
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	// List returns all pairs ordered by key
	List(ctx context.Context) ([]KeyValuePair, error)
}
