package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/fzzzy/aguitest/internal/domain"
)

// Client talks to an OpenAI-compatible endpoint (OpenAI, LiteLLM, OpenRouter).
type Client struct {
	client       *openai.Client
	defaultModel string
}

var _ Model = (*Client)(nil)

// NewClient creates a new OpenAI-compatible client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: model,
	}
}

// CreateChatCompletionStream streams a chat completion. Tool call fragments
// are accumulated by index and delivered once the model finishes them.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      convertMessages(req.Messages, req.System),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion stream: %w", err)
	}
	defer stream.Close()

	usage := &Usage{}
	pending := make(map[int]*domain.ToolCall)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		calls := make([]domain.ToolCall, 0, len(pending))
		indexes := make([]int, 0, len(pending))
		for i := range pending {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			if tc := pending[i]; tc.ID != "" && tc.Function.Name != "" {
				calls = append(calls, *tc)
			}
		}
		pending = make(map[int]*domain.ToolCall)
		if len(calls) == 0 {
			return nil
		}
		return callback(&StreamChunk{ToolCalls: calls})
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if err := flush(); err != nil {
				return nil, err
			}
			return usage, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read completion stream: %w", err)
		}

		if resp.Usage != nil {
			usage.PromptTokens = resp.Usage.PromptTokens
			usage.CompletionTokens = resp.Usage.CompletionTokens
			usage.TotalTokens = resp.Usage.TotalTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			if err := callback(&StreamChunk{Text: choice.Delta.Content}); err != nil {
				return nil, err
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call := pending[index]
			if call == nil {
				call = &domain.ToolCall{Type: "function"}
				pending[index] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
}

func convertMessages(messages []domain.ChatMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleUser:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
			if msg.Content.IsParts() {
				oaiMsg.MultiContent = convertParts(msg.Content.Parts)
			} else {
				oaiMsg.Content = msg.Content.Text
			}
			result = append(result, oaiMsg)

		case domain.RoleAssistant:
			// Stored turns keep one item per text block or tool call. The API
			// needs a step's tool calls in a single message ahead of its tool
			// results, so adjacent assistant items are folded together.
			var oaiMsg *openai.ChatCompletionMessage
			if n := len(result); n > 0 && result[n-1].Role == openai.ChatMessageRoleAssistant {
				oaiMsg = &result[n-1]
			} else {
				result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant})
				oaiMsg = &result[len(result)-1]
			}
			if text := msg.Content.String(); text != "" {
				if oaiMsg.Content != "" {
					oaiMsg.Content += "\n"
				}
				oaiMsg.Content += text
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}

		case domain.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content.String(),
				ToolCallID: msg.ToolCallID,
			})

		case domain.RoleSystem, domain.RoleDeveloper:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content.String(),
			})
		}
	}
	return result
}

func convertParts(parts []domain.ContentPart) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Type == domain.PartTypeText:
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		case strings.HasPrefix(p.MimeType, "image/"):
			url := p.URL
			if url == "" {
				url = "data:" + p.MimeType + ";base64," + p.Data
			}
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    url,
					Detail: openai.ImageURLDetailAuto,
				},
			})
		default:
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("[attachment %s (%s) not supported by this model]", p.Filename, p.MimeType),
			})
		}
	}
	return out
}

func convertTools(specs []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		params := spec.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		}
	}
	return result
}
