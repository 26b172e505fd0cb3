package capstan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solightly/capstan/internal/eventbus"
)

// ProcessState represents the current stage of one request's lifecycle.
type ProcessState string

const (
	// StateInit is the entry state of the pipeline
	StateInit ProcessState = "init"
	// StateProfiling classifies the request
	StateProfiling ProcessState = "profiling"
	// StatePlanning builds the execution plan
	StatePlanning ProcessState = "planning"
	// StateExecuting runs the plan group by group
	StateExecuting ProcessState = "executing"
	// StateAggregating merges the result set into one answer
	StateAggregating ProcessState = "aggregating"
	// StateScoring computes confidence and selects the final answer
	StateScoring ProcessState = "scoring"
	// StateDone is the successful terminal state
	StateDone ProcessState = "done"
	// StateErrored is the terminal state for orchestration-layer faults.
	// Capability failures never reach it; they degrade the result set instead.
	StateErrored ProcessState = "errored"
	// StateCancelled is the terminal state for context cancellation
	StateCancelled ProcessState = "cancelled"
	// StateUnknown is used when the status of an async request cannot be determined.
	StateUnknown ProcessState = "unknown"
)

// degradedFaultText is the canned body returned when the orchestration layer
// itself faults. The caller still receives a well-formed response.
const degradedFaultText = "Something went wrong while assembling this answer. " +
	"No reliable information could be produced for the request."

// ProcessContext carries one request through the state machine. It acts as
// the machine's tape: each transition reads the fields earlier stages wrote.
// The state, response, and error fields are additionally readable from other
// goroutines through the locked accessors while an async request runs.
type ProcessContext struct {
	mu sync.RWMutex

	// Input
	Request Request

	// Intermediate results
	Profile    RequestProfile
	Plan       *ExecutionPlan
	Results    *ResultSet
	Answer     CombinedAnswer
	Confidence ConfidenceEvaluation

	// Final outcome
	Response Response

	// Error handling
	LastError  error
	ErrorStage string

	// State management
	CurrentState ProcessState
	StateStack   []ProcessState
	StateData    map[string]interface{}

	// Timing
	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[ProcessState]time.Time
}

// NewProcessContext creates a fresh context for one request.
func NewProcessContext(req Request) *ProcessContext {
	return &ProcessContext{
		Request:         req,
		CurrentState:    StateInit,
		StateStack:      []ProcessState{},
		StateData:       make(map[string]interface{}),
		StartTime:       time.Now(),
		StateStartTimes: make(map[ProcessState]time.Time),
	}
}

// PushState pushes the current state onto the stack and enters a new one.
func (pc *ProcessContext) PushState(state ProcessState) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.StateStack = append(pc.StateStack, pc.CurrentState)
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// PopState restores the most recently pushed state. Returns false if the
// stack is empty.
func (pc *ProcessContext) PopState() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.StateStack) == 0 {
		return false
	}
	last := len(pc.StateStack) - 1
	pc.CurrentState = pc.StateStack[last]
	pc.StateStack = pc.StateStack[:last]
	pc.StateStartTimes[pc.CurrentState] = time.Now()
	return true
}

// advance moves the machine into the next state without touching the stack.
func (pc *ProcessContext) advance(state ProcessState) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// IsTerminal reports whether the context has reached a terminal state.
func (pc *ProcessContext) IsTerminal() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.CurrentState == StateDone || pc.CurrentState == StateErrored || pc.CurrentState == StateCancelled
}

// State returns the current state. Safe to call while the machine runs.
func (pc *ProcessContext) State() ProcessState {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.CurrentState
}

// FinalResponse returns the response written so far. Safe to call while the
// machine runs; meaningful once the context is terminal.
func (pc *ProcessContext) FinalResponse() Response {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.Response
}

// SetResponse records the final response under the context lock.
func (pc *ProcessContext) SetResponse(response Response) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.Response = response
}

// FaultInfo returns the recorded error and the stage it occurred in.
func (pc *ProcessContext) FaultInfo() (error, string) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.LastError, pc.ErrorStage
}

// CompletedAt returns when the request reached a terminal state, or the zero
// time while it is still running.
func (pc *ProcessContext) CompletedAt() time.Time {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.EndTime
}

// SetError records an orchestration-layer fault and moves to StateErrored.
// The response is replaced with the canned degraded answer so the caller
// still receives a well-formed payload.
func (pc *ProcessContext) SetError(err error, stage string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.LastError = err
	pc.ErrorStage = stage
	pc.CurrentState = StateErrored
	pc.StateStartTimes[StateErrored] = time.Now()
	pc.EndTime = time.Now()
	fault := ""
	if err != nil {
		fault = err.Error()
	}
	pc.Response = Response{
		Answer: CombinedAnswer{
			Text:         degradedFaultText,
			Sources:      []string{},
			StrategyUsed: "degraded",
		},
		Confidence: ConfidenceEvaluation{
			Overall:    0,
			Components: map[string]float64{"fault": 1},
			Grade:      GradeVeryLow,
		},
		Degraded: true,
		Fault:    fault,
	}
}

// SetCancelled records a context cancellation.
func (pc *ProcessContext) SetCancelled(err error, stage string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.LastError = err
	pc.ErrorStage = stage
	pc.CurrentState = StateCancelled
	pc.StateStartTimes[StateCancelled] = time.Now()
	pc.EndTime = time.Now()
}

// Complete marks the request done and records the end time.
func (pc *ProcessContext) Complete() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.CurrentState = StateDone
	pc.EndTime = time.Now()
	pc.StateStartTimes[StateDone] = pc.EndTime
}

// TotalDuration returns how long the request has been running, or took.
func (pc *ProcessContext) TotalDuration() time.Duration {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if !pc.EndTime.IsZero() {
		return pc.EndTime.Sub(pc.StartTime)
	}
	return time.Since(pc.StartTime)
}

// StateTransition advances the machine one step: it consumes the current
// state and returns the next one.
type StateTransition func(ctx context.Context, bus eventbus.Bus, pCtx *ProcessContext) (ProcessState, error)

// StateMachine runs a request through its registered transitions. States
// only move forward; there are no retries at this level.
type StateMachine struct {
	transitions map[ProcessState]StateTransition
	bus         eventbus.Bus
}

// NewStateMachine creates an empty state machine.
func NewStateMachine(bus eventbus.Bus) *StateMachine {
	return &StateMachine{
		transitions: make(map[ProcessState]StateTransition),
		bus:         bus,
	}
}

// RegisterTransition registers the handler for one state.
func (sm *StateMachine) RegisterTransition(state ProcessState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the machine until a terminal state. The returned Response is
// always well-formed; the error is non-nil only for context cancellation or
// a missing transition (both orchestration bugs, both still produce a
// degraded Response).
func (sm *StateMachine) Execute(ctx context.Context, pCtx *ProcessContext) (Response, error) {
	for !pCtx.IsTerminal() {
		state := pCtx.State()

		select {
		case <-ctx.Done():
			err := ctx.Err()
			pCtx.SetCancelled(err, string(state))
			sm.publishFailure(ctx, pCtx, err)
			return pCtx.FinalResponse(), err
		default:
		}

		transition, exists := sm.transitions[state]
		if !exists {
			err := NewInternalError(string(state),
				fmt.Sprintf("no transition defined for state %s", state), nil)
			pCtx.SetError(err, string(state))
			sm.publishFailure(ctx, pCtx, err)
			return pCtx.FinalResponse(), err
		}

		nextState, err := transition(ctx, sm.bus, pCtx)
		if err != nil {
			stage := string(state)
			if err == context.Canceled || err == context.DeadlineExceeded {
				pCtx.SetCancelled(err, stage)
			} else if !pCtx.IsTerminal() {
				pCtx.SetError(err, stage)
			}
			sm.publishFailure(ctx, pCtx, err)
			continue
		}

		if !pCtx.IsTerminal() {
			pCtx.advance(nextState)
		}
	}

	if pCtx.State() == StateCancelled {
		lastErr, _ := pCtx.FaultInfo()
		return pCtx.FinalResponse(), lastErr
	}
	return pCtx.FinalResponse(), nil
}

func (sm *StateMachine) publishFailure(ctx context.Context, pCtx *ProcessContext, err error) {
	if sm.bus == nil {
		return
	}
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	_, stage := pCtx.FaultInfo()
	publish(ctx, sm.bus, eventbus.NewEvent(
		eventbus.EventRequestFailed,
		pCtx.Request.Text,
		"StateMachine.Execute",
		map[string]interface{}{
			"request_id": pCtx.Request.ID,
			"stage":      stage,
			"reason":     reason,
		},
	))
}
