package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// Service implements EventService interface with pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	wildcard    []interfaces.EventHandler
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// SubscribeAll registers a handler that receives every event type
func (s *Service) SubscribeAll(handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wildcard = append(s.wildcard, handler)
	return nil
}

func (s *Service) handlersFor(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handlers := make([]interfaces.EventHandler, 0, len(s.subscribers[eventType])+len(s.wildcard))
	handlers = append(handlers, s.subscribers[eventType]...)
	handlers = append(handlers, s.wildcard...)
	return handlers
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	// Handlers outlive the publishing request
	ctx = context.WithoutCancel(ctx)

	for _, handler := range handlers {
		go func(h interfaces.EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Str("event_type", string(event.Type)).
						Str("panic", fmt.Sprintf("%v", r)).
						Msg("Event handler panicked")
				}
			}()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}(handler)
	}

	return nil
}

// PublishSync sends an event to all subscribers synchronously
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors", len(errs))
	}

	return nil
}

// Close shuts down the event service
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.wildcard = nil
	s.logger.Info().Msg("Event service closed")

	return nil
}
