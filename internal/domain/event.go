package domain

import (
	"encoding/json"
	"strings"
)

// Event is one AG-UI run event. The set of implementations is closed;
// anything the server does not model is carried as a RawEvent.
type Event interface {
	EventType() EventType
	isEvent()
}

// RunStarted opens a run.
type RunStarted struct {
	ThreadID  string `json:"threadId"`
	RunID     string `json:"runId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RunFinished closes a run. AssistantMessageID is set once the turn has been persisted.
type RunFinished struct {
	ThreadID           string          `json:"threadId"`
	RunID              string          `json:"runId"`
	Result             json.RawMessage `json:"result,omitempty"`
	AssistantMessageID string          `json:"assistantMessageId,omitempty"`
	Timestamp          int64           `json:"timestamp,omitempty"`
}

// RunError terminates a run that failed.
type RunError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type TextMessageStart struct {
	MessageID string `json:"messageId"`
	Role      Role   `json:"role,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type TextMessageContent struct {
	MessageID string `json:"messageId"`
	Delta     string `json:"delta"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type TextMessageEnd struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type ToolCallStart struct {
	ToolCallID      string `json:"toolCallId"`
	ToolCallName    string `json:"toolCallName"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
	Timestamp       int64  `json:"timestamp,omitempty"`
}

type ToolCallArgs struct {
	ToolCallID string `json:"toolCallId"`
	Delta      string `json:"delta"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

type ToolCallEnd struct {
	ToolCallID string `json:"toolCallId"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// ToolCallResult carries a tool's output. Content is either a JSON string or
// a list of content items; see ToolResultText.
type ToolCallResult struct {
	MessageID  string          `json:"messageId,omitempty"`
	ToolCallID string          `json:"toolCallId"`
	Content    json.RawMessage `json:"content"`
	Role       Role            `json:"role,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

// Custom is an application-defined event.
type Custom struct {
	Name      string `json:"name"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RawEvent is an event of a type the server passes through untouched.
type RawEvent struct {
	Kind EventType
	Data json.RawMessage
}

func (RunStarted) EventType() EventType         { return EventTypeRunStarted }
func (RunFinished) EventType() EventType        { return EventTypeRunFinished }
func (RunError) EventType() EventType           { return EventTypeRunError }
func (TextMessageStart) EventType() EventType   { return EventTypeTextMessageStart }
func (TextMessageContent) EventType() EventType { return EventTypeTextMessageContent }
func (TextMessageEnd) EventType() EventType     { return EventTypeTextMessageEnd }
func (ToolCallStart) EventType() EventType      { return EventTypeToolCallStart }
func (ToolCallArgs) EventType() EventType       { return EventTypeToolCallArgs }
func (ToolCallEnd) EventType() EventType        { return EventTypeToolCallEnd }
func (ToolCallResult) EventType() EventType     { return EventTypeToolCallResult }
func (Custom) EventType() EventType             { return EventTypeCustom }
func (e RawEvent) EventType() EventType         { return e.Kind }

func (RunStarted) isEvent()         {}
func (RunFinished) isEvent()        {}
func (RunError) isEvent()           {}
func (TextMessageStart) isEvent()   {}
func (TextMessageContent) isEvent() {}
func (TextMessageEnd) isEvent()     {}
func (ToolCallStart) isEvent()      {}
func (ToolCallArgs) isEvent()       {}
func (ToolCallEnd) isEvent()        {}
func (ToolCallResult) isEvent()     {}
func (Custom) isEvent()             {}
func (RawEvent) isEvent()           {}

// NewToolCallResult builds a result event with plain text content.
func NewToolCallResult(messageID, toolCallID, text string) ToolCallResult {
	content, _ := json.Marshal(text)
	return ToolCallResult{
		MessageID:  messageID,
		ToolCallID: toolCallID,
		Content:    content,
		Role:       RoleTool,
	}
}

// ToolResultText flattens tool result content to a single string. A list of
// items is joined with newlines using each item's "text" field.
func ToolResultText(content json.RawMessage) string {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var items []json.RawMessage
	if err := json.Unmarshal(content, &items); err == nil {
		texts := make([]string, 0, len(items))
		for _, item := range items {
			// non-object items contribute nothing
			if !strings.HasPrefix(strings.TrimSpace(string(item)), "{") {
				continue
			}
			var obj struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			texts = append(texts, obj.Text)
		}
		return strings.Join(texts, "\n")
	}

	return trimmed
}
