package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/runtime"
)

// runOutcome is what a streamed run left behind.
type runOutcome struct {
	AssistantMessageID string
	Deferred           map[string]runtime.DeferredToolRequest
	Err                string
}

// renderer prints a run's events as they arrive.
type renderer struct {
	out     io.Writer
	verbose bool
	outcome runOutcome
}

func (r *renderer) handle(evt domain.Event) {
	switch e := evt.(type) {
	case domain.TextMessageContent:
		fmt.Fprint(r.out, e.Delta)
	case domain.TextMessageEnd:
		fmt.Fprintln(r.out)
	case domain.ToolCallStart:
		fmt.Fprintf(r.out, "[tool] %s ", e.ToolCallName)
	case domain.ToolCallArgs:
		fmt.Fprint(r.out, e.Delta)
	case domain.ToolCallEnd:
		fmt.Fprintln(r.out)
	case domain.ToolCallResult:
		fmt.Fprintf(r.out, "[result] %s\n", domain.ToolResultText(e.Content))
	case domain.Custom:
		r.custom(e)
	case domain.RunError:
		r.outcome.Err = e.Message
		fmt.Fprintf(r.out, "[error] %s\n", e.Message)
	case domain.RunFinished:
		r.outcome.AssistantMessageID = e.AssistantMessageID
	}
}

func (r *renderer) custom(e domain.Custom) {
	switch e.Name {
	case domain.CustomDeferredToolRequests:
		raw, err := json.Marshal(e.Value)
		if err != nil {
			return
		}
		var deferred map[string]runtime.DeferredToolRequest
		if err := json.Unmarshal(raw, &deferred); err == nil {
			r.outcome.Deferred = deferred
		}
	case domain.CustomTopicChanged:
		fmt.Fprintf(r.out, "[topic] %v\n", e.Value)
	default:
		if r.verbose {
			fmt.Fprintf(r.out, "[%s] %v\n", e.Name, e.Value)
		}
	}
}
