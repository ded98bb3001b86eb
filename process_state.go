package agrisage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
	"github.com/rs/zerolog/log"
)

// ProcessState represents the current state of a request.
type ProcessState string

const (
	StateInit      ProcessState = "init"
	StateTriage    ProcessState = "triage"
	StatePlanning  ProcessState = "planning"
	StateExecution ProcessState = "execution"
	StateSynthesis ProcessState = "synthesis"
	StateError     ProcessState = "error"
	StateComplete  ProcessState = "complete"
	StateCancelled ProcessState = "cancelled"
)

// ProcessContext is the working state of one request. StateStack records
// every state the request passed through, oldest first.
type ProcessContext struct {
	RequestID string
	Request   Request

	// System and Tools are fixed for the request; Messages grows with each
	// round.
	System   string
	Tools    []llm.ToolSpec
	Messages []llm.Message

	Round       int
	Pending     []llm.ToolCall
	ToolCalls   int
	FinalAnswer string

	LastError  error
	ErrorStage string

	CurrentState ProcessState
	StateStack   []ProcessState

	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[ProcessState]time.Time
}

// NewProcessContext creates a context in StateInit.
func NewProcessContext(requestID string, req Request) *ProcessContext {
	return &ProcessContext{
		RequestID:       requestID,
		Request:         req,
		CurrentState:    StateInit,
		StateStack:      []ProcessState{},
		StartTime:       time.Now(),
		StateStartTimes: map[ProcessState]time.Time{StateInit: time.Now()},
	}
}

// PushState records the current state and moves to state.
func (pc *ProcessContext) PushState(state ProcessState) {
	pc.StateStack = append(pc.StateStack, pc.CurrentState)
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// Trace returns the visited states including the current one.
func (pc *ProcessContext) Trace() []ProcessState {
	return append(append([]ProcessState(nil), pc.StateStack...), pc.CurrentState)
}

// IsTerminal reports whether the request reached complete, error or
// cancelled.
func (pc *ProcessContext) IsTerminal() bool {
	return pc.CurrentState == StateComplete || pc.CurrentState == StateError || pc.CurrentState == StateCancelled
}

// SetError records err and moves to StateError.
func (pc *ProcessContext) SetError(err error, stage string) {
	pc.LastError = err
	pc.ErrorStage = stage
	pc.PushState(StateError)
	pc.EndTime = time.Now()
}

// SetCancelled records err and moves to StateCancelled.
func (pc *ProcessContext) SetCancelled(err error, stage string) {
	pc.LastError = err
	pc.ErrorStage = stage
	pc.PushState(StateCancelled)
	pc.EndTime = time.Now()
}

// Complete marks the request as complete.
func (pc *ProcessContext) Complete() {
	pc.PushState(StateComplete)
	pc.EndTime = pc.StateStartTimes[StateComplete]
}

// GetTotalDuration returns the time spent so far, or in total once terminal.
func (pc *ProcessContext) GetTotalDuration() time.Duration {
	if pc.IsTerminal() && !pc.EndTime.IsZero() {
		return pc.EndTime.Sub(pc.StartTime)
	}
	return time.Since(pc.StartTime)
}

// StateTransition runs one state and returns the next.
type StateTransition func(ctx context.Context, eventBus eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error)

// StateMachine drives a ProcessContext through registered transitions.
type StateMachine struct {
	transitions map[ProcessState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates an empty state machine.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[ProcessState]StateTransition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers the transition run in state.
func (sm *StateMachine) RegisterTransition(state ProcessState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs transitions until a terminal state and returns the final
// answer or the recorded error. Errors are always *AgriSageError.
func (sm *StateMachine) Execute(ctx context.Context, pCtx *ProcessContext) (string, error) {
	for !pCtx.IsTerminal() {
		stage := string(pCtx.CurrentState)
		if err := ctx.Err(); err != nil {
			pCtx.SetCancelled(NewCancelledError(stage, err), stage)
			break
		}

		transition, exists := sm.transitions[pCtx.CurrentState]
		if !exists {
			pCtx.SetError(NewInternalOrchestrationError(stage, fmt.Errorf("no transition defined for state: %s", stage)), stage)
			break
		}

		nextState, err := sm.run(ctx, transition, pCtx)
		if err != nil {
			switch {
			case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				if !IsCancelled(err) {
					err = NewCancelledError(stage, err)
				}
				pCtx.SetCancelled(err, stage)
			case ErrorCode(err) == "":
				pCtx.SetError(NewInternalOrchestrationError(stage, err), stage)
			default:
				pCtx.SetError(err, stage)
			}
			continue
		}

		// A transition may finish the request itself.
		if !pCtx.IsTerminal() {
			pCtx.PushState(nextState)
		}
	}

	return pCtx.FinalAnswer, pCtx.LastError
}

// run invokes transition, turning a panic into an orchestration error.
func (sm *StateMachine) run(ctx context.Context, transition StateTransition, pCtx *ProcessContext) (next ProcessState, err error) {
	defer func() {
		if r := recover(); r != nil {
			stage := string(pCtx.CurrentState)
			log.Error().
				Str("request_id", pCtx.RequestID).
				Str("stage", stage).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("transition panicked")
			next, err = StateError, NewInternalOrchestrationError(stage, fmt.Errorf("panic: %v", r))
		}
	}()
	return transition(ctx, sm.eventBus, pCtx)
}
