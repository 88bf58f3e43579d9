package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fzzzy/aguitest/internal/domain"
)

var expressionPattern = regexp.MustCompile(`^[0-9\s.()]*[0-9)]\s*(\*\*|[-+*/%])\s*[-0-9\s.()*/+%]+$`)

// MockClient is a scripted Model for local development and tests. It calls
// evaluate_expression for arithmetic input, set_topic for "topic: ..." input,
// and otherwise echoes the last user message.
type MockClient struct {
	// ChunkDelay is slept between streamed chunks.
	ChunkDelay time.Duration
}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ Model = (*MockClient)(nil)

// CreateChatCompletionStream simulates a streaming response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	if call := m.toolCallFor(req); call != nil {
		if err := callback(&StreamChunk{ToolCalls: []domain.ToolCall{*call}}); err != nil {
			return nil, err
		}
		return m.usage(req, call.Function.Arguments), nil
	}

	responseContent := m.generateMockResponse(req)
	for _, chunk := range m.splitIntoChunks(responseContent, 10) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if m.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.ChunkDelay):
			}
		}
		if err := callback(&StreamChunk{Text: chunk}); err != nil {
			return nil, err
		}
	}
	return m.usage(req, responseContent), nil
}

func (m *MockClient) toolCallFor(req *ChatCompletionRequest) *domain.ToolCall {
	if len(req.Messages) == 0 {
		return nil
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != domain.RoleUser {
		return nil
	}
	text := strings.TrimSpace(last.Content.String())

	name := ""
	var args any
	switch {
	case hasTool(req.Tools, "evaluate_expression") && expressionPattern.MatchString(text):
		name, args = "evaluate_expression", map[string]string{"expression": text}
	case hasTool(req.Tools, "set_topic") && strings.HasPrefix(strings.ToLower(text), "topic:"):
		name, args = "set_topic", map[string]string{"topic": strings.TrimSpace(text[len("topic:"):])}
	default:
		return nil
	}

	encoded, _ := json.Marshal(args)
	return &domain.ToolCall{
		ID:   "call_" + uuid.New().String()[:8],
		Type: "function",
		Function: domain.FunctionCall{
			Name:      name,
			Arguments: string(encoded),
		},
	}
}

// generateMockResponse generates a mock response based on the request.
func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == domain.RoleTool {
		return fmt.Sprintf("[MOCK] The tool returned: %s", req.Messages[n-1].Content.String())
	}

	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			lastUserMessage = req.Messages[i].Content.String()
			break
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the LLM client."
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

func (m *MockClient) usage(req *ChatCompletionRequest, completion string) *Usage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(msg.Content.String()) / 4
	}
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: len(completion) / 4,
		TotalTokens:      prompt + len(completion)/4,
	}
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func (m *MockClient) splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}

	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

func hasTool(specs []ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
