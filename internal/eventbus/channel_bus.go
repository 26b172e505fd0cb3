package eventbus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// ChannelBus implements Bus on top of a buffered Go channel drained by a
// small worker pool. Handlers run on worker goroutines; a slow handler
// delays its worker, not the publisher.
type ChannelBus struct {
	subscribers    map[EventType]map[string]EventHandler
	allSubscribers map[string]EventHandler

	eventChan chan queuedEvent
	done      chan struct{}
	closed    bool
	wg        sync.WaitGroup
	mutex     sync.RWMutex

	bufferSize  int
	workerCount int
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// ChannelBusOption configures the channel-based bus
type ChannelBusOption func(*ChannelBus)

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) ChannelBusOption {
	return func(b *ChannelBus) {
		b.bufferSize = size
	}
}

// WithWorkerCount sets the number of event processing workers
func WithWorkerCount(count int) ChannelBusOption {
	return func(b *ChannelBus) {
		b.workerCount = count
	}
}

// NewChannelBus creates a new channel-based event bus
func NewChannelBus(options ...ChannelBusOption) *ChannelBus {
	b := &ChannelBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),
		done:           make(chan struct{}),
		bufferSize:     100,
		workerCount:    4,
	}
	for _, option := range options {
		option(b)
	}

	b.eventChan = make(chan queuedEvent, b.bufferSize)
	for i := 0; i < b.workerCount; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *ChannelBus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case evt := <-b.eventChan:
			b.dispatch(evt)
		}
	}
}

// dispatch delivers one event to every matching handler. Handler maps are
// copied under the read lock so handlers may subscribe or unsubscribe
// without deadlocking.
func (b *ChannelBus) dispatch(evt queuedEvent) {
	if evt.ctx.Err() != nil {
		return
	}

	b.mutex.RLock()
	handlers := make([]EventHandler, 0, len(b.allSubscribers))
	if typed, exists := b.subscribers[evt.event.Type()]; exists {
		for _, h := range typed {
			handlers = append(handlers, h)
		}
	}
	for _, h := range b.allSubscribers {
		handlers = append(handlers, h)
	}
	b.mutex.RUnlock()

	for _, handler := range handlers {
		if evt.ctx.Err() != nil {
			return
		}
		if err := handler(evt.ctx, evt.event); err != nil {
			// A failing handler never stops the others.
			log.Printf("Event handler error (event_type: %s): %v", evt.event.Type(), err)
		}
	}
}

// Publish sends an event to all subscribed handlers
func (b *ChannelBus) Publish(ctx context.Context, event Event) error {
	b.mutex.RLock()
	closed := b.closed
	b.mutex.RUnlock()
	if closed {
		return fmt.Errorf("event bus is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return fmt.Errorf("event bus is closed")
	case b.eventChan <- queuedEvent{ctx: ctx, event: event}:
		return nil
	}
}

// Subscribe registers a handler for specific event types
func (b *ChannelBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}

	subscriptionID := uuid.New().String()

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return "", fmt.Errorf("event bus is closed")
	}
	for _, eventType := range eventTypes {
		if _, exists := b.subscribers[eventType]; !exists {
			b.subscribers[eventType] = make(map[string]EventHandler)
		}
		b.subscribers[eventType][subscriptionID] = handler
	}
	return subscriptionID, nil
}

// SubscribeAll registers a handler for all event types
func (b *ChannelBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	subscriptionID := uuid.New().String()

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return "", fmt.Errorf("event bus is closed")
	}
	b.allSubscribers[subscriptionID] = handler
	return subscriptionID, nil
}

// Unsubscribe removes a subscription by ID
func (b *ChannelBus) Unsubscribe(subscriptionID string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	delete(b.allSubscribers, subscriptionID)
	for eventType := range b.subscribers {
		delete(b.subscribers[eventType], subscriptionID)
	}
	return nil
}

// Close shuts down the bus. New publishes are rejected immediately; events
// already queued are dispatched before Close returns.
func (b *ChannelBus) Close() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil
	}
	b.closed = true
	b.mutex.Unlock()

	close(b.done)
	b.wg.Wait()

	for {
		select {
		case evt := <-b.eventChan:
			b.dispatch(evt)
		default:
			return nil
		}
	}
}
