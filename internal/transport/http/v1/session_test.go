package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzzzy/aguitest/internal/adapter/agentclient"
	"github.com/fzzzy/aguitest/internal/domain"
)

func openEvents(t *testing.T, ctx context.Context, client *agentclient.Client, baseURL string) (string, <-chan string) {
	t.Helper()
	payloads := make(chan string, 64)
	go func() {
		defer close(payloads)
		_ = client.Stream(ctx, http.MethodPost, baseURL+"/events", nil, nil, func(evt agentclient.SSEEvent) error {
			select {
			case payloads <- evt.Data:
			case <-ctx.Done():
			}
			return nil
		})
	}()

	select {
	case first := <-payloads:
		var hello struct {
			Agent string `json:"agent"`
		}
		require.NoError(t, json.Unmarshal([]byte(first), &hello))
		require.True(t, strings.HasPrefix(hello.Agent, "/agent?token="))
		return hello.Agent, payloads
	case <-time.After(5 * time.Second):
		t.Fatal("no first frame from /events")
	}
	return "", nil
}

func submit(t *testing.T, ctx context.Context, client *agentclient.Client, url string, input *domain.RunAgentInput) []domain.Event {
	t.Helper()
	var events []domain.Event
	err := client.Stream(ctx, http.MethodPost, url, input, nil, func(evt agentclient.SSEEvent) error {
		parsed, err := agentclient.ParseEvent(evt)
		if err != nil {
			return err
		}
		events = append(events, parsed)
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestSessionApprovalFlow(t *testing.T) {
	_, e, _ := newTestHandler(t)
	server := httptest.NewServer(e)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := agentclient.NewClient(0)

	agentPath, queue := openEvents(t, ctx, client, server.URL)
	user := domain.ChatMessage{ID: "u1", Role: domain.RoleUser, Content: domain.TextContent("2 + 2")}

	// First run stops on the tool call that needs approval.
	events := submit(t, ctx, client, server.URL+agentPath, &domain.RunAgentInput{
		ThreadID: "t1",
		RunID:    "r1",
		Messages: []domain.ChatMessage{user},
	})
	require.GreaterOrEqual(t, len(events), 3)
	start := events[2].(domain.ToolCallStart)
	assert.Equal(t, "evaluate_expression", start.ToolCallName)

	deferred := events[len(events)-2].(domain.Custom)
	assert.Equal(t, domain.CustomDeferredToolRequests, deferred.Name)
	requests := deferred.Value.(map[string]any)
	assert.Contains(t, requests, start.ToolCallID)
	finished := events[len(events)-1].(domain.RunFinished)
	assert.NotEmpty(t, finished.AssistantMessageID)

	var args strings.Builder
	for _, evt := range events {
		if a, ok := evt.(domain.ToolCallArgs); ok {
			args.WriteString(a.Delta)
		}
	}

	// Second run carries the approval.
	approved := submit(t, ctx, client, server.URL+agentPath, &domain.RunAgentInput{
		ThreadID: "t1",
		RunID:    "r2",
		Messages: []domain.ChatMessage{user, {
			ID:   "a1",
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{{
				ID:       start.ToolCallID,
				Type:     "function",
				Function: domain.FunctionCall{Name: start.ToolCallName, Arguments: args.String()},
			}},
		}},
		State: domain.RunState{
			DeferredToolApprovals: map[string]domain.ApprovalDecision{start.ToolCallID: {Approved: true}},
		},
	})

	var result *domain.ToolCallResult
	for _, evt := range approved {
		if r, ok := evt.(domain.ToolCallResult); ok {
			result = &r
		}
	}
	require.NotNil(t, result)
	assert.Equal(t, "4", domain.ToolResultText(result.Content))
	_, stillDeferred := findCustom(approved, domain.CustomDeferredToolRequests)
	assert.False(t, stillDeferred)

	// The session stream mirrors both runs in order.
	var mirrored []string
	deadline := time.After(5 * time.Second)
	for len(mirrored) < len(events)+len(approved) {
		select {
		case payload := <-queue:
			if payload == `{"ping":true}` {
				continue
			}
			mirrored = append(mirrored, payload)
		case <-deadline:
			t.Fatalf("session stream delivered %d of %d frames", len(mirrored), len(events)+len(approved))
		}
	}
	assert.Contains(t, mirrored[0], `"runId":"r1"`)
	assert.Contains(t, mirrored[len(events)], `"runId":"r2"`)
}

func TestWebSocketSession(t *testing.T) {
	_, e, _ := newTestHandler(t)
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	_, first, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(first), `"agent":"/agent?token=`)

	input := domain.RunAgentInput{
		ThreadID: "t1",
		RunID:    "ws-run",
		Messages: []domain.ChatMessage{{ID: "u1", Role: domain.RoleUser, Content: domain.TextContent("hi")}},
	}
	require.NoError(t, conn.WriteJSON(input))

	var types []domain.EventType
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		evt, err := domain.DecodeEvent(payload)
		if err != nil {
			continue
		}
		types = append(types, evt.EventType())
		if evt.EventType() == domain.EventTypeRunFinished {
			break
		}
	}
	assert.Equal(t, domain.EventTypeRunStarted, types[0])
	assert.Equal(t, domain.EventTypeCustom, types[1])
}
