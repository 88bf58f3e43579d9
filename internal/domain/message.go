package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is one persisted turn of a conversation. Messages are immutable and
// linked to the previous turn through ParentID.
type Message struct {
	ID        string        `json:"id"`
	ParentID  string        `json:"parent_id,omitempty"`
	Content   string        `json:"content"`
	Events    []ChatMessage `json:"events"`
	CreatedAt time.Time     `json:"created_at"`
}

// ChatMessage is an AG-UI message as exchanged with the client and the runtime.
type ChatMessage struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// UnmarshalJSON accepts both the camelCase wire names and the snake_case
// names used by older clients.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type plain ChatMessage
	aux := struct {
		*plain
		SnakeToolCalls  []ToolCall `json:"tool_calls"`
		SnakeToolCallID string     `json:"tool_call_id"`
	}{plain: (*plain)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(m.ToolCalls) == 0 && len(aux.SnakeToolCalls) > 0 {
		m.ToolCalls = aux.SnakeToolCalls
	}
	if m.ToolCallID == "" {
		m.ToolCallID = aux.SnakeToolCallID
	}
	return nil
}

// ToolCall is a function call requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Content is message content: a plain string, or a list of parts once
// Parts is non-nil.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent returns string content.
func TextContent(s string) Content {
	return Content{Text: s}
}

// IsParts reports whether the content is a list of parts.
func (c Content) IsParts() bool {
	return c.Parts != nil
}

// String returns the textual portion of the content.
func (c Content) String() string {
	if !c.IsParts() {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartTypeText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
	case '[':
		parts := []ContentPart{}
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
	default:
		return fmt.Errorf("content must be a string or a list of parts")
	}
	return nil
}
