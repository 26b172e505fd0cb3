// Package eventbus provides the pipeline event dispatch system.
package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Standard event types, one triple per pipeline stage.
const (
	// Request lifecycle events
	EventRequestStarted   EventType = "request_started"
	EventRequestSucceeded EventType = "request_succeeded"
	EventRequestFailed    EventType = "request_failed"

	// Profiling events
	EventProfileCompleted EventType = "profile_completed"

	// Planning events
	EventPlanBuilt      EventType = "plan_built"
	EventPlanDegenerate EventType = "plan_degenerate"

	// Execution events
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionCompleted EventType = "execution_completed"
	EventCapabilityFailed   EventType = "capability_failed"

	// Aggregation events
	EventAggregationCompleted EventType = "aggregation_completed"

	// Scoring events
	EventScoreComputed  EventType = "score_computed"
	EventLowConfidence  EventType = "low_confidence"
	EventAnswerSelected EventType = "answer_selected"

	// Async request events
	EventAsyncStarted   EventType = "async_request_started"
	EventAsyncFinished  EventType = "async_request_finished"
	EventAsyncCancelled EventType = "async_request_cancelled"

	// System events
	EventSystemWarning EventType = "system_warning"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the pipeline
type Event interface {
	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() int64

	// Source returns information about what generated the event
	Source() string
}

// Bus is the central event dispatch system
type Bus interface {
	// Publish sends an event to all subscribed handlers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types and returns a
	// subscription ID usable with Unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close shuts down the bus, cleaning up resources
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(eventType EventType, payload interface{}, source string, metadata map[string]interface{}) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

// Type returns the event type
func (e *BaseEvent) Type() EventType { return e.eventType }

// Payload returns the event data
func (e *BaseEvent) Payload() interface{} { return e.payload }

// Metadata returns additional information about the event
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }

// Timestamp returns when the event occurred
func (e *BaseEvent) Timestamp() int64 { return e.timestamp }

// Source returns information about what generated the event
func (e *BaseEvent) Source() string { return e.sourceInfo }

// WithMetadata adds or updates one metadata entry and returns the same event.
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}
