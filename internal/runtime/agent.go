package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fzzzy/aguitest/internal/adapter/llm"
	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/policy"
	"github.com/fzzzy/aguitest/internal/tools"
)

const (
	deniedToolResult     = "The tool call was denied."
	unansweredToolResult = "The tool call was not approved."
	blockedToolResult    = "Tool call blocked by policy."
)

// Policy decides how a tool call is handled.
type Policy interface {
	Evaluate(ctx context.Context, input policy.Input) (policy.Decision, error)
}

// ToolObserver is notified after each tool execution.
type ToolObserver interface {
	ObserveTool(toolName, status string, elapsed time.Duration)
}

// AgentOptions configures an Agent.
type AgentOptions struct {
	Instructions string
	Model        string
	MaxRounds    int
	Observer     ToolObserver
}

// Agent is the in-process runtime: it streams a chat model, runs server
// tools, and stops with deferred tool requests when the policy requires a
// human decision.
type Agent struct {
	model    llm.Model
	registry *tools.Registry
	policy   Policy
	opts     AgentOptions
}

var _ Runtime = (*Agent)(nil)

// NewAgent creates a new in-process agent runtime.
func NewAgent(model llm.Model, registry *tools.Registry, policy Policy, opts AgentOptions) *Agent {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 8
	}
	return &Agent{
		model:    model,
		registry: registry,
		policy:   policy,
		opts:     opts,
	}
}

// Run starts the agent loop in a background goroutine.
func (a *Agent) Run(ctx context.Context, in RunInput) (Stream, error) {
	if in.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return newChanStream(ctx, func(ctx context.Context, emit emitFunc) error {
		return a.loop(ctx, in, emit)
	}), nil
}

func (a *Agent) loop(ctx context.Context, in RunInput, emit emitFunc) error {
	if err := emit(domain.RunStarted{ThreadID: in.ThreadID, RunID: in.RunID, Timestamp: now()}); err != nil {
		return err
	}

	messages, deferred, err := a.resolvePending(ctx, in, emit)
	if err != nil {
		return err
	}
	if len(deferred) > 0 {
		return a.finish(in, Result{Deferred: deferred}, emit)
	}

	specs := a.toolSpecs()
	for round := 0; round < a.opts.MaxRounds; round++ {
		turn, err := a.streamTurn(ctx, messages, specs, emit)
		if err != nil {
			return err
		}
		if len(turn.ToolCalls) == 0 {
			return a.finish(in, Result{Output: turn.Content.String()}, emit)
		}
		messages = append(messages, turn)

		deferred := make(map[string]DeferredToolRequest)
		for _, call := range turn.ToolCalls {
			content, isDeferred, err := a.decide(ctx, call, in.Approvals, false, emit)
			if err != nil {
				return err
			}
			if isDeferred {
				deferred[call.ID] = NewDeferredToolRequest(call.Function.Name, call.Function.Arguments)
				continue
			}
			messages = append(messages, toolMessage(call.ID, content))
		}
		if len(deferred) > 0 {
			return a.finish(in, Result{Deferred: deferred}, emit)
		}
	}
	return fmt.Errorf("agent exceeded %d tool rounds", a.opts.MaxRounds)
}

func (a *Agent) finish(in RunInput, result Result, emit emitFunc) error {
	if in.OnComplete != nil {
		in.OnComplete(result)
	}
	return emit(domain.RunFinished{ThreadID: in.ThreadID, RunID: in.RunID, Timestamp: now()})
}

// streamTurn runs one model call and returns the assistant message it produced.
func (a *Agent) streamTurn(ctx context.Context, messages []domain.ChatMessage, specs []llm.ToolSpec, emit emitFunc) (domain.ChatMessage, error) {
	turn := domain.ChatMessage{ID: uuid.New().String(), Role: domain.RoleAssistant}
	var text strings.Builder
	open := false

	req := &llm.ChatCompletionRequest{
		Model:    a.opts.Model,
		System:   a.opts.Instructions,
		Messages: messages,
		Tools:    specs,
	}
	_, err := a.model.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
		if chunk.Text != "" {
			if !open {
				open = true
				if err := emit(domain.TextMessageStart{MessageID: turn.ID, Role: domain.RoleAssistant, Timestamp: now()}); err != nil {
					return err
				}
			}
			text.WriteString(chunk.Text)
			if err := emit(domain.TextMessageContent{MessageID: turn.ID, Delta: chunk.Text}); err != nil {
				return err
			}
		}
		for _, call := range chunk.ToolCalls {
			if open {
				open = false
				if err := emit(domain.TextMessageEnd{MessageID: turn.ID}); err != nil {
					return err
				}
			}
			if err := emitToolCall(call, turn.ID, emit); err != nil {
				return err
			}
			turn.ToolCalls = append(turn.ToolCalls, call)
		}
		return nil
	})
	if err != nil {
		return turn, err
	}
	if open {
		if err := emit(domain.TextMessageEnd{MessageID: turn.ID}); err != nil {
			return turn, err
		}
	}
	turn.Content = domain.TextContent(text.String())
	return turn, nil
}

func emitToolCall(call domain.ToolCall, parentID string, emit emitFunc) error {
	if err := emit(domain.ToolCallStart{ToolCallID: call.ID, ToolCallName: call.Function.Name, ParentMessageID: parentID, Timestamp: now()}); err != nil {
		return err
	}
	if call.Function.Arguments != "" {
		if err := emit(domain.ToolCallArgs{ToolCallID: call.ID, Delta: call.Function.Arguments}); err != nil {
			return err
		}
	}
	return emit(domain.ToolCallEnd{ToolCallID: call.ID})
}

// resolvePending answers tool calls in the history that have no result yet.
// Calls in the trailing turn use the client's approvals; calls with no
// decision are deferred again. Calls buried under a later user message are
// answered as not approved so the history stays well formed.
func (a *Agent) resolvePending(ctx context.Context, in RunInput, emit emitFunc) ([]domain.ChatMessage, map[string]DeferredToolRequest, error) {
	answered := make(map[string]bool)
	lastUser := -1
	for i, msg := range in.Messages {
		switch msg.Role {
		case domain.RoleTool:
			answered[msg.ToolCallID] = true
		case domain.RoleUser:
			lastUser = i
		}
	}

	out := make([]domain.ChatMessage, 0, len(in.Messages))
	deferred := make(map[string]DeferredToolRequest)
	for i := 0; i < len(in.Messages); i++ {
		msg := in.Messages[i]
		out = append(out, msg)
		if msg.Role != domain.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		for i+1 < len(in.Messages) && in.Messages[i+1].Role == domain.RoleTool {
			i++
			out = append(out, in.Messages[i])
		}

		stale := i < lastUser
		for _, call := range msg.ToolCalls {
			if answered[call.ID] {
				continue
			}
			content, isDeferred, err := a.decide(ctx, call, in.Approvals, stale, emit)
			if err != nil {
				return nil, nil, err
			}
			if isDeferred {
				deferred[call.ID] = NewDeferredToolRequest(call.Function.Name, call.Function.Arguments)
				continue
			}
			out = append(out, toolMessage(call.ID, content))
		}
	}
	return out, deferred, nil
}

// decide applies the policy and approvals to one call. It executes the tool
// when allowed and emits the result unless the call is stale.
func (a *Agent) decide(ctx context.Context, call domain.ToolCall, approvals map[string]domain.ApprovalDecision, stale bool, emit emitFunc) (string, bool, error) {
	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			log.Printf("WARN: tool %s arguments are not a JSON object: %v", call.Function.Name, err)
		}
	}

	decision := policy.DecisionAllow
	if a.policy != nil {
		d, err := a.policy.Evaluate(ctx, policy.Input{
			ToolName: call.Function.Name,
			Args:     args,
			RawArgs:  call.Function.Arguments,
		})
		if err != nil {
			log.Printf("ERROR: policy evaluation failed for %s: %v", call.Function.Name, err)
			d = policy.DecisionRequireApproval
		}
		decision = d
	}

	approval, hasApproval := approvals[call.ID]
	switch {
	case decision == policy.DecisionBlock:
		return a.result(call, blockedToolResult, nil, stale, emit)
	case decision == policy.DecisionRequireApproval && !hasApproval:
		if stale {
			return a.result(call, unansweredToolResult, nil, stale, emit)
		}
		return "", true, nil
	case decision == policy.DecisionRequireApproval && !approval.Approved:
		msg := approval.Message
		if msg == "" {
			msg = deniedToolResult
		}
		return a.result(call, msg, nil, stale, emit)
	}

	if stale {
		return a.result(call, unansweredToolResult, nil, stale, emit)
	}

	start := time.Now()
	res, err := a.registry.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
	status := "success"
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		log.Printf("WARN: tool %s failed: %v", call.Function.Name, err)
		status = "error"
		res = tools.Result{Content: fmt.Sprintf("Error running %s: %v", call.Function.Name, err)}
	}
	if a.opts.Observer != nil {
		a.opts.Observer.ObserveTool(call.Function.Name, status, time.Since(start))
	}
	return a.result(call, res.Content, res.Events, stale, emit)
}

func (a *Agent) result(call domain.ToolCall, content string, extra []domain.Event, stale bool, emit emitFunc) (string, bool, error) {
	if stale {
		return content, false, nil
	}
	if err := emit(domain.NewToolCallResult(uuid.New().String(), call.ID, content)); err != nil {
		return "", false, err
	}
	for _, e := range extra {
		if err := emit(e); err != nil {
			return "", false, err
		}
	}
	return content, false, nil
}

func (a *Agent) toolSpecs() []llm.ToolSpec {
	defs := a.registry.Definitions()
	specs := make([]llm.ToolSpec, len(defs))
	for i, def := range defs {
		specs[i] = llm.ToolSpec{Name: def.Name, Description: def.Description, Parameters: def.Parameters}
	}
	return specs
}

func toolMessage(toolCallID, content string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         uuid.New().String(),
		Role:       domain.RoleTool,
		Content:    domain.TextContent(content),
		ToolCallID: toolCallID,
	}
}

func now() int64 {
	return time.Now().UnixMilli()
}
