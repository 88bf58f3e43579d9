// Package llm provides chat model clients for the local agent runtime.
package llm

import (
	"context"
	"encoding/json"

	"github.com/fzzzy/aguitest/internal/domain"
)

// Model is a streaming chat completion model.
type Model interface {
	// CreateChatCompletionStream sends a streaming chat completion request.
	// The callback is called for each chunk received; returning an error
	// aborts the stream.
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error)
}

// ChatCompletionRequest is a provider-neutral completion request.
type ChatCompletionRequest struct {
	Model    string
	System   string
	Messages []domain.ChatMessage
	Tools    []ToolSpec
}

// ToolSpec describes a callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// StreamChunk carries either a text delta or a batch of completed tool calls.
type StreamChunk struct {
	Text      string
	ToolCalls []domain.ToolCall
}

// StreamCallback is called for each streamed chunk.
type StreamCallback func(chunk *StreamChunk) error

// Usage represents token usage statistics.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
