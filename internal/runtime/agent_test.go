package runtime

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzzzy/aguitest/internal/adapter/llm"
	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/policy"
	"github.com/fzzzy/aguitest/internal/tools"
)

func newTestAgent(t *testing.T, model llm.Model) *Agent {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(registry))
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return NewAgent(model, registry, engine, AgentOptions{Instructions: "be brief"})
}

func drain(t *testing.T, s Stream) []domain.Event {
	t.Helper()
	defer s.Close()
	var events []domain.Event
	for {
		evt, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, evt)
	}
}

func types(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

func user(text string) domain.ChatMessage {
	return domain.ChatMessage{ID: "u-" + text, Role: domain.RoleUser, Content: domain.TextContent(text)}
}

func TestAgentDefersExpressionTool(t *testing.T) {
	agent := newTestAgent(t, llm.NewMockClient())

	var result Result
	stream, err := agent.Run(context.Background(), RunInput{
		ThreadID:   "t1",
		RunID:      "r1",
		Messages:   []domain.ChatMessage{user("2 + 2")},
		OnComplete: func(r Result) { result = r },
	})
	require.NoError(t, err)
	events := drain(t, stream)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeRunStarted,
		domain.EventTypeToolCallStart,
		domain.EventTypeToolCallArgs,
		domain.EventTypeToolCallEnd,
		domain.EventTypeRunFinished,
	}, types(events))

	require.True(t, result.IsDeferred())
	start := events[1].(domain.ToolCallStart)
	req, ok := result.Deferred[start.ToolCallID]
	require.True(t, ok)
	assert.Equal(t, tools.EvaluateExpression, req.ToolName)
	assert.Equal(t, map[string]any{"expression": "2 + 2"}, req.Args)
}

func pendingHistory(expression string) ([]domain.ChatMessage, string) {
	callID := "call_1"
	return []domain.ChatMessage{
		user(expression),
		{
			ID:   "a1",
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{{
				ID:       callID,
				Type:     "function",
				Function: domain.FunctionCall{Name: tools.EvaluateExpression, Arguments: `{"expression":"` + expression + `"}`},
			}},
		},
	}, callID
}

func toolResults(events []domain.Event) []string {
	var out []string
	for _, e := range events {
		if r, ok := e.(domain.ToolCallResult); ok {
			out = append(out, domain.ToolResultText(r.Content))
		}
	}
	return out
}

func TestAgentResumesApprovedCall(t *testing.T) {
	agent := newTestAgent(t, llm.NewMockClient())

	for expression, want := range map[string]string{"2 + 2": "4", "1 / 0": "inf"} {
		history, callID := pendingHistory(expression)
		var result Result
		stream, err := agent.Run(context.Background(), RunInput{
			RunID:      "r2",
			Messages:   history,
			Approvals:  map[string]domain.ApprovalDecision{callID: {Approved: true}},
			OnComplete: func(r Result) { result = r },
		})
		require.NoError(t, err)
		events := drain(t, stream)

		assert.Equal(t, []string{want}, toolResults(events))
		assert.False(t, result.IsDeferred())
		assert.Equal(t, "[MOCK] The tool returned: "+want, result.Output)
		assert.Equal(t, domain.EventTypeRunFinished, events[len(events)-1].EventType())
	}
}

func TestAgentDeniedCall(t *testing.T) {
	agent := newTestAgent(t, llm.NewMockClient())
	history, callID := pendingHistory("2 + 2")

	stream, err := agent.Run(context.Background(), RunInput{
		RunID:     "r3",
		Messages:  history,
		Approvals: map[string]domain.ApprovalDecision{callID: {Approved: false}},
	})
	require.NoError(t, err)
	events := drain(t, stream)

	assert.Equal(t, []string{"The tool call was denied."}, toolResults(events))
}

func TestAgentPendingWithoutApprovalStaysDeferred(t *testing.T) {
	agent := newTestAgent(t, llm.NewMockClient())
	history, callID := pendingHistory("3 * 3")

	var result Result
	stream, err := agent.Run(context.Background(), RunInput{
		RunID:      "r4",
		Messages:   history,
		OnComplete: func(r Result) { result = r },
	})
	require.NoError(t, err)
	events := drain(t, stream)

	assert.Equal(t, []domain.EventType{domain.EventTypeRunStarted, domain.EventTypeRunFinished}, types(events))
	assert.Contains(t, result.Deferred, callID)
}

func TestAgentAllowedToolEmitsCustomEvent(t *testing.T) {
	agent := newTestAgent(t, llm.NewMockClient())

	stream, err := agent.Run(context.Background(), RunInput{RunID: "r5", Messages: []domain.ChatMessage{user("topic: math")}})
	require.NoError(t, err)
	events := drain(t, stream)

	assert.Equal(t, []string{"Topic set to: math"}, toolResults(events))
	var custom *domain.Custom
	for _, e := range events {
		if c, ok := e.(domain.Custom); ok {
			custom = &c
		}
	}
	require.NotNil(t, custom)
	assert.Equal(t, domain.CustomTopicChanged, custom.Name)
	assert.Equal(t, domain.EventTypeRunFinished, events[len(events)-1].EventType())
}

func TestAgentStreamCloseIsIdempotent(t *testing.T) {
	agent := newTestAgent(t, &llm.MockClient{ChunkDelay: 20 * time.Millisecond})

	stream, err := agent.Run(context.Background(), RunInput{RunID: "r6", Messages: []domain.ChatMessage{user("tell me a long story please")}})
	require.NoError(t, err)

	evt, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.EventTypeRunStarted, evt.EventType())

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrRunCancelled)
}

type failingModel struct{}

func (failingModel) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.Usage, error) {
	return nil, errors.New("upstream unavailable")
}

func TestAgentModelErrorSurfaces(t *testing.T) {
	agent := newTestAgent(t, failingModel{})

	stream, err := agent.Run(context.Background(), RunInput{RunID: "r7", Messages: []domain.ChatMessage{user("hi")}})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next(context.Background())
	require.NoError(t, err)
	_, err = stream.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

// toolCallModel requests one tool call, then answers with text once the
// tool result is in the history.
type toolCallModel struct {
	call domain.ToolCall
}

func (m toolCallModel) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, cb llm.StreamCallback) (*llm.Usage, error) {
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == domain.RoleTool {
		return &llm.Usage{}, cb(&llm.StreamChunk{Text: "done"})
	}
	return &llm.Usage{}, cb(&llm.StreamChunk{ToolCalls: []domain.ToolCall{m.call}})
}

type recordingPolicy struct {
	inputs []policy.Input
}

func (p *recordingPolicy) Evaluate(ctx context.Context, input policy.Input) (policy.Decision, error) {
	p.inputs = append(p.inputs, input)
	return policy.DecisionAllow, nil
}

func TestAgentPassesRawArgsToPolicy(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(registry))
	rec := &recordingPolicy{}
	model := toolCallModel{call: domain.ToolCall{
		ID:       "call_bad",
		Type:     "function",
		Function: domain.FunctionCall{Name: tools.SetTopic, Arguments: `{"topic": `},
	}}
	agent := NewAgent(model, registry, rec, AgentOptions{})

	stream, err := agent.Run(context.Background(), RunInput{RunID: "r8", Messages: []domain.ChatMessage{user("hi")}})
	require.NoError(t, err)
	events := drain(t, stream)
	assert.Equal(t, domain.EventTypeRunFinished, events[len(events)-1].EventType())

	require.Len(t, rec.inputs, 1)
	assert.Equal(t, tools.SetTopic, rec.inputs[0].ToolName)
	assert.Nil(t, rec.inputs[0].Args)
	assert.Equal(t, `{"topic": `, rec.inputs[0].RawArgs)
}
