package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EncodeEvent marshals an event to its JSON payload with the "type" field first.
func EncodeEvent(e Event) ([]byte, error) {
	if raw, ok := e.(RawEvent); ok {
		return raw.Data, nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.EventType(), err)
	}
	typ, err := json.Marshal(e.EventType())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(typ) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// DecodeEvent parses a JSON payload into a typed event. Unknown types are
// returned as RawEvent; payloads that are not JSON objects or lack a type
// yield a *ParseError.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &ParseError{Frame: string(data), Err: err}
	}

	switch head.Type {
	case "":
		return nil, &ParseError{Frame: string(data), Err: errors.New("missing event type")}
	case EventTypeRunStarted:
		return decodeAs[RunStarted](data)
	case EventTypeRunFinished:
		return decodeAs[RunFinished](data)
	case EventTypeRunError:
		return decodeAs[RunError](data)
	case EventTypeTextMessageStart:
		return decodeAs[TextMessageStart](data)
	case EventTypeTextMessageContent:
		return decodeAs[TextMessageContent](data)
	case EventTypeTextMessageEnd:
		return decodeAs[TextMessageEnd](data)
	case EventTypeToolCallStart:
		return decodeAs[ToolCallStart](data)
	case EventTypeToolCallArgs:
		return decodeAs[ToolCallArgs](data)
	case EventTypeToolCallEnd:
		return decodeAs[ToolCallEnd](data)
	case EventTypeToolCallResult:
		return decodeAs[ToolCallResult](data)
	case EventTypeCustom:
		return decodeAs[Custom](data)
	default:
		return RawEvent{Kind: head.Type, Data: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeAs[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &ParseError{Frame: string(data), Err: err}
	}
	return e, nil
}

// Frame wraps a JSON payload as one SSE frame.
func Frame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame
}

// EncodeFrame encodes an event as an SSE frame.
func EncodeFrame(e Event) ([]byte, error) {
	payload, err := EncodeEvent(e)
	if err != nil {
		return nil, err
	}
	return Frame(payload), nil
}

// FramePayload strips the "data: " prefix and the trailing blank line from a frame.
func FramePayload(frame []byte) ([]byte, bool) {
	rest, ok := bytes.CutPrefix(frame, []byte("data:"))
	if !ok {
		return nil, false
	}
	return bytes.TrimSpace(rest), true
}
