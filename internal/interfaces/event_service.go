package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobStateChanged     EventType = "job_state_changed"
	EventJobProgress         EventType = "job_progress"
	EventEntryCreated        EventType = "entry_created"
	EventEntryApproved       EventType = "entry_approved"
	EventEntryRejected       EventType = "entry_rejected"
	EventRepositoryIndexed   EventType = "repository_indexed"
	EventRepositoryActivated EventType = "repository_activated"
	EventPlanUpdated         EventType = "plan_updated"
	EventLog                 EventType = "log_event"
)

// Event represents a system event
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	// SubscribeAll registers a handler for every event type
	SubscribeAll(handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
