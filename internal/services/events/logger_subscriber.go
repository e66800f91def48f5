package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		if event.Type == interfaces.EventLog {
			// log events already went through the logger
			return nil
		}

		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			for _, key := range []string{"job_id", "kind", "state", "filename", "repository"} {
				if v, ok := payload[key].(string); ok && v != "" {
					logEvent = logEvent.Str(key, v)
				}
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents attaches the logger subscriber to every event type
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	return eventService.SubscribeAll(NewLoggerSubscriber(logger))
}
