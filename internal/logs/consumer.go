package logs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// Consumer consumes log batches from arbor's context channel and dispatches to storage and events
type Consumer struct {
	storage       interfaces.JobLogStorage
	eventService  interfaces.EventService
	logger        arbor.ILogger
	channel       chan []arbormodels.LogEvent
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	minEventLevel arbor.LogLevel // Minimum log level to publish as events
}

// NewConsumer creates a new log consumer
func NewConsumer(storage interfaces.JobLogStorage, eventService interfaces.EventService, logger arbor.ILogger, minEventLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:       storage,
		eventService:  eventService,
		logger:        logger,
		channel:       make(chan []arbormodels.LogEvent, 10),
		ctx:           ctx,
		cancel:        cancel,
		minEventLevel: parseLogLevel(minEventLevel),
	}
}

// parseLogLevel converts string log level to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// convertTo3Letter converts full level names to 3-letter codes
func convertTo3Letter(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "DEBUG":
		return "DBG"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop gracefully shuts down the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			// uncorrelated logger, so the panic report is not fed back into the channel
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.process(batch)

		case <-c.ctx.Done():
			return
		}
	}
}

// process persists one batch grouped by job id
func (c *Consumer) process(batch []arbormodels.LogEvent) {
	entriesByJob := make(map[string][]models.JobLogEntry)

	for _, event := range batch {
		// request tracing ids are not jobs
		if event.CorrelationID == "" ||
			strings.HasPrefix(event.Message, "HTTP request") ||
			strings.Contains(event.Message, "WebSocket client") {
			continue
		}

		entry := transformEvent(event)
		entriesByJob[event.CorrelationID] = append(entriesByJob[event.CorrelationID], entry)

		if c.eventService != nil && c.shouldPublishEvent(event.Level) {
			c.publishLogEvent(event.CorrelationID, entry)
		}
	}

	var wg sync.WaitGroup
	for jobID, entries := range entriesByJob {
		wg.Add(1)
		go func(jid string, logs []models.JobLogEntry) {
			defer wg.Done()
			if err := c.storage.AppendLogs(c.ctx, jid, logs); err != nil {
				c.logger.Warn().
					Err(err).
					Str("job_id", jid).
					Int("log_count", len(logs)).
					Msg("Failed to write batch logs to database")
			}
		}(jobID, entries)
	}
	wg.Wait()
}

// shouldPublishEvent checks if a log event should be published based on level threshold
func (c *Consumer) shouldPublishEvent(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minEventLevel
}

func (c *Consumer) publishLogEvent(jobID string, entry models.JobLogEntry) {
	payload := map[string]interface{}{
		"job_id":    jobID,
		"level":     entry.Level,
		"message":   entry.Message,
		"timestamp": entry.Timestamp,
	}
	if entry.Phase != "" {
		payload["phase"] = entry.Phase
	}
	if entry.Originator != "" {
		payload["originator"] = entry.Originator
	}

	if err := c.eventService.Publish(c.ctx, interfaces.Event{
		Type:    interfaces.EventLog,
		Payload: payload,
	}); err != nil {
		c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish log event")
	}
}

// transformEvent converts arbor LogEvent to JobLogEntry format
func transformEvent(event arbormodels.LogEvent) models.JobLogEntry {
	var phase, originator string

	message := event.Message
	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for k := range event.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value := event.Fields[key]
			switch key {
			case "phase":
				phase = fmt.Sprintf("%v", value)
			case "originator":
				originator = fmt.Sprintf("%v", value)
			default:
				message += fmt.Sprintf(" %s=%v", key, value)
			}
		}
	}

	return models.JobLogEntry{
		JobID:         event.CorrelationID,
		Timestamp:     event.Timestamp.Format("15:04:05"),
		FullTimestamp: event.Timestamp.Format(time.RFC3339Nano),
		Level:         convertTo3Letter(event.Level.String()),
		Message:       message,
		Phase:         phase,
		Originator:    originator,
	}
}
