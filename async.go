package capstan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/solightly/capstan/internal/eventbus"
)

// AsyncStatus reports the progress of one asynchronous request.
type AsyncStatus struct {
	RequestID    string        `json:"request_id"`
	Query        string        `json:"query"`
	CurrentState ProcessState  `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasFault     bool          `json:"has_fault"`
	FaultMessage string        `json:"fault_message,omitempty"`
	FaultStage   string        `json:"fault_stage,omitempty"`
}

// AskAsync starts answering a request in the background and returns an ID
// usable with AsyncStatus, AsyncResult, and CancelAsync.
func (o *Orchestrator) AskAsync(ctx context.Context, query string) (string, error) {
	req := Request{ID: uuid.New().String(), Text: query}
	sm := o.createStateMachine()
	pCtx := NewProcessContext(req)

	o.asyncMutex.Lock()
	o.asyncRequests[req.ID] = pCtx
	o.asyncMutex.Unlock()

	// The request outlives the caller's context; a fresh cancellable
	// context is the only cancellation handle.
	asyncCtx, cancel := context.WithCancel(context.Background())
	pCtx.StateData["cancel"] = cancel

	if o.config.EnableEventBus && o.bus != nil {
		event := eventbus.NewEvent(
			eventbus.EventAsyncStarted,
			query,
			"Orchestrator.AskAsync",
			map[string]interface{}{"request_id": req.ID},
		)
		_ = o.bus.Publish(ctx, event)
	}

	go func() {
		defer cancel()
		response, err := sm.Execute(asyncCtx, pCtx)

		o.asyncMutex.Lock()
		if tracked, exists := o.asyncRequests[req.ID]; exists {
			tracked.SetResponse(response)
			if err != nil && !tracked.IsTerminal() {
				tracked.SetCancelled(err, string(tracked.State()))
			}
		}
		o.asyncMutex.Unlock()

		if o.config.EnableEventBus && o.bus != nil {
			metadata := map[string]interface{}{
				"request_id":  req.ID,
				"duration_ms": pCtx.TotalDuration().Milliseconds(),
				"degraded":    response.Degraded,
			}
			if err != nil {
				metadata["error"] = err.Error()
			}
			event := eventbus.NewEvent(
				eventbus.EventAsyncFinished,
				query,
				"Orchestrator.AskAsync",
				metadata,
			)
			// The caller's context may be done; publish on a fresh one.
			_ = o.bus.Publish(context.Background(), event)
		}
	}()

	return req.ID, nil
}

// AsyncStatus returns the current status of an async request.
func (o *Orchestrator) AsyncStatus(requestID string) (*AsyncStatus, error) {
	o.asyncMutex.RLock()
	defer o.asyncMutex.RUnlock()

	pCtx, exists := o.asyncRequests[requestID]
	if !exists {
		return nil, fmt.Errorf("async request '%s' not found", requestID)
	}

	state := pCtx.State()
	status := &AsyncStatus{
		RequestID:    requestID,
		Query:        pCtx.Request.Text,
		CurrentState: state,
		StartTime:    pCtx.StartTime,
		Duration:     pCtx.TotalDuration(),
		IsComplete:   state == StateDone,
		HasFault:     state == StateErrored,
	}
	if lastErr, stage := pCtx.FaultInfo(); lastErr != nil {
		status.FaultMessage = lastErr.Error()
		status.FaultStage = stage
	}
	return status, nil
}

// AsyncResult returns the response of a finished async request. Requests
// still in flight return an error; Errored requests return their degraded
// response like the synchronous path does.
func (o *Orchestrator) AsyncResult(requestID string) (Response, error) {
	o.asyncMutex.RLock()
	defer o.asyncMutex.RUnlock()

	pCtx, exists := o.asyncRequests[requestID]
	if !exists {
		return Response{}, fmt.Errorf("async request '%s' not found", requestID)
	}
	switch state := pCtx.State(); state {
	case StateDone, StateErrored:
		return pCtx.FinalResponse(), nil
	case StateCancelled:
		_, stage := pCtx.FaultInfo()
		return Response{}, fmt.Errorf("async request '%s' was cancelled during stage '%s'", requestID, stage)
	default:
		return Response{}, fmt.Errorf("async request '%s' is still in progress (state: %s)", requestID, state)
	}
}

// CancelAsync cancels a running async request. Returns false when the
// request already finished or was never found running.
func (o *Orchestrator) CancelAsync(requestID string) (bool, error) {
	o.asyncMutex.Lock()
	defer o.asyncMutex.Unlock()

	pCtx, exists := o.asyncRequests[requestID]
	if !exists {
		return false, fmt.Errorf("async request '%s' not found", requestID)
	}
	if pCtx.IsTerminal() {
		return false, nil
	}

	cancel, ok := pCtx.StateData["cancel"].(context.CancelFunc)
	if !ok {
		return false, fmt.Errorf("async request '%s' has no cancellation handle", requestID)
	}
	cancel()

	if o.config.EnableEventBus && o.bus != nil {
		event := eventbus.NewEvent(
			eventbus.EventAsyncCancelled,
			pCtx.Request.Text,
			"Orchestrator.CancelAsync",
			map[string]interface{}{
				"request_id":  requestID,
				"duration_ms": pCtx.TotalDuration().Milliseconds(),
			},
		)
		_ = o.bus.Publish(context.Background(), event)
	}
	return true, nil
}

// ListAsyncRequests maps each tracked async request ID to its current state.
func (o *Orchestrator) ListAsyncRequests() map[string]ProcessState {
	o.asyncMutex.RLock()
	defer o.asyncMutex.RUnlock()

	out := make(map[string]ProcessState, len(o.asyncRequests))
	for id, pCtx := range o.asyncRequests {
		out[id] = pCtx.State()
	}
	return out
}

// CleanupFinishedRequests drops bookkeeping for terminal async requests
// older than the given age and returns how many were removed.
func (o *Orchestrator) CleanupFinishedRequests(olderThan time.Duration) int {
	o.asyncMutex.Lock()
	defer o.asyncMutex.Unlock()

	now := time.Now()
	removed := 0
	for id, pCtx := range o.asyncRequests {
		ended := pCtx.CompletedAt()
		if pCtx.IsTerminal() && !ended.IsZero() && now.Sub(ended) > olderThan {
			delete(o.asyncRequests, id)
			removed++
		}
	}
	return removed
}
