// Package domain defines the wire and storage types shared by the agent server.
package domain

// EventType is the AG-UI event discriminator carried in the "type" field.
type EventType string

const (
	EventTypeRunStarted         EventType = "RUN_STARTED"
	EventTypeRunFinished        EventType = "RUN_FINISHED"
	EventTypeRunError           EventType = "RUN_ERROR"
	EventTypeTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTypeTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTypeTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventTypeToolCallStart      EventType = "TOOL_CALL_START"
	EventTypeToolCallArgs       EventType = "TOOL_CALL_ARGS"
	EventTypeToolCallEnd        EventType = "TOOL_CALL_END"
	EventTypeToolCallResult     EventType = "TOOL_CALL_RESULT"
	EventTypeCustom             EventType = "CUSTOM"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
)

// Names of CUSTOM events emitted by the server.
const (
	CustomInstructions         = "instructions"
	CustomAttachments          = "attachments"
	CustomDeferredToolRequests = "deferred_tool_requests"
	CustomMessageCount         = "message_count"
	CustomTopicChanged         = "topic_changed"
)

// ContentPart types.
const (
	PartTypeText   = "text"
	PartTypeBinary = "binary"
)
