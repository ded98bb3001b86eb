package agrisage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/prompt"
	"github.com/rs/zerolog/log"
)

// createStateMachine wires the request transitions.
func (a *AgriSage) createStateMachine() *StateMachine {
	sm := NewStateMachine(a.eventBus)
	sm.RegisterTransition(StateInit, a.initTransition)
	sm.RegisterTransition(StateTriage, a.triageTransition)
	sm.RegisterTransition(StatePlanning, a.planningTransition)
	sm.RegisterTransition(StateExecution, a.executionTransition)
	sm.RegisterTransition(StateSynthesis, a.synthesisTransition)
	return sm
}

// initTransition loads the session history and composes the working context.
func (a *AgriSage) initTransition(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
	past, err := a.history.Get(ctx, pCtx.Request.SessionID)
	if err != nil {
		return StateError, NewInternalOrchestrationError(string(StateInit), fmt.Errorf("load history: %w", err))
	}

	req := pCtx.Request
	pCtx.Tools = a.toolSpecs()
	pCtx.System = prompt.System(pCtx.Tools)
	pCtx.Messages = append(past, llm.UserMessage(prompt.Input(a.now(), req.Text, req.Location, req.ImageRef)))
	return StateTriage, nil
}

// triageTransition classifies an attached image before any planning and
// injects the result as a completed tool exchange.
func (a *AgriSage) triageTransition(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
	ref := strings.TrimSpace(pCtx.Request.ImageRef)
	if ref == "" {
		return StatePlanning, nil
	}
	if a.classifier == nil {
		log.Debug().Str("request_id", pCtx.RequestID).Msg("image attached but no classifier registered")
		return StatePlanning, nil
	}

	call := llm.ToolCall{ID: "triage-0", Name: a.classifier.Name(), Input: ref}
	result := a.executor.Run(ctx, []llm.ToolCall{call}, a.invoke)[0]
	if err := ctx.Err(); err != nil {
		return StateCancelled, err
	}

	pCtx.Messages = append(pCtx.Messages, llm.AssistantMessage("", call), llm.ToolMessage(call, result))
	pCtx.ToolCalls++

	eventbus.Emit(ctx, eb, eventbus.EventTriageClassified, eventSource, map[string]interface{}{
		"request_id": pCtx.RequestID,
		"tool":       call.Name,
		"result":     result,
	})
	return StatePlanning, nil
}

// planningTransition asks the model for the next step. A response without
// tool calls is the final answer.
func (a *AgriSage) planningTransition(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
	if pCtx.Round >= a.config.MaxRounds {
		return a.forceFinalAnswer(ctx, eb, pCtx)
	}

	pCtx.Round++
	meta := map[string]interface{}{"request_id": pCtx.RequestID, "round": pCtx.Round}
	eventbus.Emit(ctx, eb, eventbus.EventPlanningStarted, eventSource, meta)

	resp, err := a.model.Chat(ctx, llm.Request{
		System:   pCtx.System,
		Messages: pCtx.Messages,
		Tools:    pCtx.Tools,
	})
	if err == nil && resp == nil {
		err = errors.New("model returned no response")
	}
	if err != nil {
		eventbus.Emit(ctx, eb, eventbus.EventPlanningFailure, eventSource, withMeta(meta, "error", err.Error()))
		return StateError, NewInternalOrchestrationError(string(StatePlanning), err)
	}

	if resp.Final() {
		if strings.TrimSpace(resp.Content) == "" {
			err := fmt.Errorf("model returned an empty answer in round %d", pCtx.Round)
			eventbus.Emit(ctx, eb, eventbus.EventPlanningFailure, eventSource, withMeta(meta, "error", err.Error()))
			return StateError, NewInternalOrchestrationError(string(StatePlanning), err)
		}
		pCtx.FinalAnswer = resp.Content
		eventbus.Emit(ctx, eb, eventbus.EventPlanningSuccess, eventSource, withMeta(meta, "final", true))
		return StateSynthesis, nil
	}

	calls := make([]llm.ToolCall, len(resp.ToolCalls))
	for i, call := range resp.ToolCalls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call-%d-%d", pCtx.Round, i)
		}
		calls[i] = call
	}
	pCtx.Messages = append(pCtx.Messages, llm.AssistantMessage(resp.Content, calls...))
	pCtx.Pending = calls

	eventbus.Emit(ctx, eb, eventbus.EventPlanningSuccess, eventSource, withMeta(meta, "tool_calls", len(calls)))
	log.Debug().Str("request_id", pCtx.RequestID).Int("round", pCtx.Round).Int("tool_calls", len(calls)).Msg("round planned")
	return StateExecution, nil
}

// forceFinalAnswer makes one call without tools once the round budget is
// spent.
func (a *AgriSage) forceFinalAnswer(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
	eventbus.Emit(ctx, eb, eventbus.EventRoundLimitReached, eventSource, map[string]interface{}{
		"request_id": pCtx.RequestID,
		"round":      pCtx.Round,
	})
	log.Warn().Str("request_id", pCtx.RequestID).Int("rounds", pCtx.Round).Msg("round limit reached, forcing final answer")

	resp, err := a.model.Chat(ctx, llm.Request{
		System:   pCtx.System + prompt.NoToolsInstruction,
		Messages: pCtx.Messages,
	})
	if err != nil {
		return StateError, NewInternalOrchestrationError(string(StateSynthesis), err)
	}
	if resp == nil || !resp.Final() || strings.TrimSpace(resp.Content) == "" {
		return StateError, NewInternalOrchestrationError(string(StateSynthesis),
			fmt.Errorf("model produced no final answer after %d rounds", pCtx.Round))
	}
	pCtx.FinalAnswer = resp.Content
	return StateSynthesis, nil
}

// executionTransition runs the pending calls of the round and appends their
// results in request order.
func (a *AgriSage) executionTransition(ctx context.Context, _ eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
	calls := pCtx.Pending
	pCtx.Pending = nil

	results := a.executor.Run(ctx, calls, a.invoke)
	if err := ctx.Err(); err != nil {
		return StateCancelled, err
	}
	if len(results) != len(calls) {
		return StateError, NewInternalOrchestrationError(string(StateExecution),
			fmt.Errorf("executor returned %d results for %d calls", len(results), len(calls)))
	}
	for i, call := range calls {
		pCtx.Messages = append(pCtx.Messages, llm.ToolMessage(call, results[i]))
	}
	pCtx.ToolCalls += len(calls)
	return StatePlanning, nil
}

// synthesisTransition finalizes the answer text.
func (a *AgriSage) synthesisTransition(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
	pCtx.FinalAnswer = strings.TrimSpace(pCtx.FinalAnswer)
	eventbus.Emit(ctx, eb, eventbus.EventSynthesisSuccess, eventSource, map[string]interface{}{
		"request_id": pCtx.RequestID,
		"rounds":     pCtx.Round,
		"tool_calls": pCtx.ToolCalls,
	})
	pCtx.Complete()
	return StateComplete, nil
}

func withMeta(base map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
