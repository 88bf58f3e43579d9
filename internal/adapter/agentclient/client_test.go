package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fzzzy/aguitest/internal/domain"
)

func TestClientRunParsesSSE(t *testing.T) {
	var gotHeaders http.Header
	var gotReq domain.RunAgentInput

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"RUN_STARTED\",\"threadId\":\"t1\",\"runId\":\"r1\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"TEXT_MESSAGE_CONTENT\",\"messageId\":\"m\",\"delta\":\"hi\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"RUN_FINISHED\",\"threadId\":\"t1\",\"runId\":\"r1\"}\n\n")
	}))
	defer server.Close()

	client := &Client{httpClient: server.Client()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	input := &domain.RunAgentInput{
		ThreadID: "t1",
		RunID:    "r1",
		Messages: []domain.ChatMessage{{ID: "u", Role: domain.RoleUser, Content: domain.TextContent("hello")}},
	}

	var events []domain.Event
	err := client.Run(ctx, server.URL+"/agent", input, func(event SSEEvent) error {
		evt, err := ParseEvent(event)
		if err != nil {
			return err
		}
		events = append(events, evt)
		return nil
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if gotReq.ThreadID != "t1" || gotReq.RunID != "r1" || len(gotReq.Messages) != 1 {
		t.Fatalf("unexpected request payload: %+v", gotReq)
	}
	if gotHeaders.Get("X-Run-ID") != "r1" || gotHeaders.Get("X-Thread-ID") != "t1" {
		t.Fatalf("missing run headers: %v", gotHeaders)
	}
	if gotHeaders.Get("Accept") != "text/event-stream" {
		t.Fatalf("missing Accept header")
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if _, ok := events[1].(domain.TextMessageContent); !ok {
		t.Fatalf("unexpected event: %#v", events[1])
	}
}

func TestClientStreamNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid or expired token", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(time.Second)
	err := client.Stream(context.Background(), http.MethodGet, server.URL+"/agent?message_id=x", nil, nil, func(SSEEvent) error { return nil })
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseSSEMultilineData(t *testing.T) {
	input := "event: delta\n" +
		"data: first line\n" +
		"data: second line\n\n" +
		": keepalive comment\n\n"

	var events []SSEEvent
	client := &Client{}
	if err := client.parseSSE(strings.NewReader(input), func(event SSEEvent) error {
		events = append(events, event)
		return nil
	}); err != nil {
		t.Fatalf("parseSSE failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Data != "first line\nsecond line" {
		t.Fatalf("unexpected data: %q", events[0].Data)
	}
}

func TestParseEventErrors(t *testing.T) {
	if _, err := ParseEvent(SSEEvent{Data: "nope"}); err == nil {
		t.Fatalf("expected error for invalid frame")
	}
	var perr *domain.ParseError
	if _, err := ParseEvent(SSEEvent{Data: `{"delta":"x"}`}); !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
