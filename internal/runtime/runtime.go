// Package runtime runs an agent against a message history and exposes the
// run as a lazy, cancellable sequence of AG-UI events.
package runtime

import (
	"context"
	"encoding/json"

	"github.com/fzzzy/aguitest/internal/domain"
)

// Runtime starts agent runs.
type Runtime interface {
	Run(ctx context.Context, in RunInput) (Stream, error)
}

// Stream is a single-consumer event sequence. Next returns io.EOF after the
// last event. Close stops the upstream model and is safe to call repeatedly.
type Stream interface {
	Next(ctx context.Context) (domain.Event, error)
	Close() error
}

// RunInput is everything a run needs.
type RunInput struct {
	ThreadID  string
	RunID     string
	Messages  []domain.ChatMessage
	Tools     []domain.Tool
	Approvals map[string]domain.ApprovalDecision
	// OnComplete is called once, before RUN_FINISHED is produced.
	OnComplete func(Result)
}

// DeferredToolRequest is a tool call waiting for a human decision.
type DeferredToolRequest struct {
	ToolName string `json:"tool_name"`
	Args     any    `json:"args"`
}

// Result is the outcome of a completed run: either final text output or a
// set of deferred tool requests keyed by tool call id.
type Result struct {
	Output   string
	Deferred map[string]DeferredToolRequest
}

// IsDeferred reports whether the run stopped to wait for approvals.
func (r Result) IsDeferred() bool {
	return len(r.Deferred) > 0
}

// NewDeferredToolRequest decodes JSON arguments when possible and keeps the
// raw string otherwise.
func NewDeferredToolRequest(name, arguments string) DeferredToolRequest {
	var args any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		args = arguments
	}
	return DeferredToolRequest{ToolName: name, Args: args}
}
