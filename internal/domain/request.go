package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageRequest is the body of POST /message.
type MessageRequest struct {
	Content    string `json:"content"`
	PreviousID string `json:"previous_id,omitempty"`
}

// MessageResponse is returned by POST /message.
type MessageResponse struct {
	ID string `json:"id"`
}

// RunAgentInput is the body of a run submission.
type RunAgentInput struct {
	ThreadID       string          `json:"threadId"`
	RunID          string          `json:"runId"`
	State          RunState        `json:"state"`
	Messages       []ChatMessage   `json:"messages"`
	Tools          []Tool          `json:"tools"`
	Context        []ContextItem   `json:"context"`
	ForwardedProps json.RawMessage `json:"forwardedProps,omitempty"`
}

// UnmarshalJSON accepts thread_id, run_id and forwarded_props as aliases.
func (in *RunAgentInput) UnmarshalJSON(data []byte) error {
	type plain RunAgentInput
	aux := struct {
		*plain
		SnakeThreadID       string          `json:"thread_id"`
		SnakeRunID          string          `json:"run_id"`
		SnakeForwardedProps json.RawMessage `json:"forwarded_props"`
	}{plain: (*plain)(in)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if in.ThreadID == "" {
		in.ThreadID = aux.SnakeThreadID
	}
	if in.RunID == "" {
		in.RunID = aux.SnakeRunID
	}
	if len(in.ForwardedProps) == 0 {
		in.ForwardedProps = aux.SnakeForwardedProps
	}
	return nil
}

// Tool is a client-declared tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ContextItem is a piece of client-supplied context.
type ContextItem struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// RunState is the subset of the AG-UI shared state the server interprets.
type RunState struct {
	DeferredToolApprovals map[string]ApprovalDecision `json:"deferred_tool_approvals,omitempty"`
	Attachments           Attachments                 `json:"attachments,omitempty"`
	MessageID             string                      `json:"message_id,omitempty"`
}

// ApprovalDecision is the client's answer to a deferred tool request. It is
// sent either as a bare boolean or as {"approved": bool, "message": "..."}.
type ApprovalDecision struct {
	Approved bool
	Message  string
}

func (d ApprovalDecision) MarshalJSON() ([]byte, error) {
	if d.Message == "" {
		return json.Marshal(d.Approved)
	}
	return json.Marshal(struct {
		Approved bool   `json:"approved"`
		Message  string `json:"message"`
	}{d.Approved, d.Message})
}

func (d *ApprovalDecision) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*d = ApprovalDecision{Approved: b}
		return nil
	}
	var obj struct {
		Approved *bool  `json:"approved"`
		Kind     string `json:"kind"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("approval must be a boolean or an object: %w", err)
	}
	switch {
	case obj.Approved != nil:
		d.Approved = *obj.Approved
	case obj.Kind != "":
		d.Approved = obj.Kind == "tool-approved"
	}
	d.Message = obj.Message
	return nil
}

// Attachment is one file attached to a user turn.
type Attachment struct {
	Filename string
	DataURL  string
}

// Attachments is a filename → data URL mapping that keeps the order in which
// the client sent the keys.
type Attachments []Attachment

func (a Attachments) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, att := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(att.Filename)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(att.DataURL)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attachments) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("attachments must be an object")
	}

	out := Attachments{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("attachment %q: %w", key, err)
		}
		out = append(out, Attachment{Filename: key, DataURL: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}
