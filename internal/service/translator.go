package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/runtime"
	"github.com/fzzzy/aguitest/internal/store"
)

// AgentInstructions are the fixed system instructions of the agent.
const AgentInstructions = "You are a helpful assistant. Be concise and friendly."

const summaryFallback = "Agent completed"

// Translator turns the runtime's events into the frames sent to the client
// and collects the turn's response items for persistence.
type Translator struct {
	store    store.Store
	parentID string
	logTag   string

	firstTurn   bool
	attachments domain.Attachments
	deferred    map[string]runtime.DeferredToolRequest
	onSave      func(error)

	started bool
	items   []domain.ChatMessage

	textID string
	text   strings.Builder

	toolOpen bool
	toolID   string
	toolName string
	toolArgs strings.Builder
}

// TranslatorOptions configures a Translator.
type TranslatorOptions struct {
	// ParentID links the persisted turn to the message it answers.
	ParentID string
	// FirstTurn adds the instructions event after RUN_STARTED.
	FirstTurn bool
	// Attachments are echoed after RUN_STARTED when non-empty.
	Attachments domain.Attachments
	// LogTag prefixes log lines.
	LogTag string
	// OnSave is called with the result of persisting the turn.
	OnSave func(error)
}

// NewTranslator creates a translator for one run.
func NewTranslator(s store.Store, opts TranslatorOptions) *Translator {
	return &Translator{
		store:       s,
		parentID:    opts.ParentID,
		logTag:      opts.LogTag,
		firstTurn:   opts.FirstTurn,
		attachments: opts.Attachments,
		onSave:      opts.OnSave,
	}
}

// Complete records the run outcome. It is the runtime's completion callback.
func (t *Translator) Complete(result runtime.Result) {
	if result.IsDeferred() {
		t.deferred = result.Deferred
	}
}

// Deferred returns the tool requests captured by Complete.
func (t *Translator) Deferred() map[string]runtime.DeferredToolRequest {
	return t.deferred
}

// Items returns the response items collected so far.
func (t *Translator) Items() []domain.ChatMessage {
	return t.items
}

// Translate returns the events to emit for evt, in order.
func (t *Translator) Translate(ctx context.Context, evt domain.Event) []domain.Event {
	if !t.started {
		t.started = true
		out := []domain.Event{evt}
		if t.firstTurn {
			out = append(out, domain.Custom{Name: domain.CustomInstructions, Value: AgentInstructions, Timestamp: now()})
		}
		if len(t.attachments) > 0 {
			out = append(out, domain.Custom{Name: domain.CustomAttachments, Value: t.attachments, Timestamp: now()})
		}
		return out
	}

	switch e := evt.(type) {
	case domain.TextMessageStart:
		t.textID = e.MessageID
		t.text.Reset()
	case domain.TextMessageContent:
		t.text.WriteString(e.Delta)
	case domain.TextMessageEnd:
		if t.text.Len() > 0 {
			t.items = append(t.items, domain.ChatMessage{
				ID:      t.textID,
				Role:    domain.RoleAssistant,
				Content: domain.TextContent(t.text.String()),
			})
		}
		t.textID = ""
		t.text.Reset()
	case domain.ToolCallStart:
		t.toolOpen = true
		t.toolID = e.ToolCallID
		t.toolName = e.ToolCallName
		t.toolArgs.Reset()
	case domain.ToolCallArgs:
		t.toolArgs.WriteString(e.Delta)
	case domain.ToolCallEnd:
		if t.toolOpen && t.toolID != "" {
			t.items = append(t.items, domain.ChatMessage{
				ID:   uuid.New().String(),
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{{
					ID:       t.toolID,
					Type:     "function",
					Function: domain.FunctionCall{Name: t.toolName, Arguments: t.toolArgs.String()},
				}},
			})
		}
		t.toolOpen = false
		t.toolID, t.toolName = "", ""
		t.toolArgs.Reset()
	case domain.ToolCallResult:
		t.items = append(t.items, domain.ChatMessage{
			ID:         uuid.New().String(),
			Role:       domain.RoleTool,
			ToolCallID: e.ToolCallID,
			Content:    domain.TextContent(domain.ToolResultText(e.Content)),
		})
	case domain.RunFinished:
		return t.finish(ctx, e)
	}
	return []domain.Event{evt}
}

func (t *Translator) finish(ctx context.Context, e domain.RunFinished) []domain.Event {
	var out []domain.Event
	if len(t.deferred) > 0 {
		out = append(out, domain.Custom{Name: domain.CustomDeferredToolRequests, Value: t.deferred, Timestamp: now()})
	}

	summary := t.Summary()
	id, err := t.store.SaveMessage(ctx, summary, t.items, t.parentID)
	if t.onSave != nil {
		t.onSave(err)
	}
	if err != nil {
		log.Printf("ERROR: [%s] failed to save assistant response: %v", t.logTag, err)
	} else {
		log.Printf("[%s] saved assistant response with %d items, id: %s", t.logTag, len(t.items), id)
		e.AssistantMessageID = id
	}
	return append(out, e)
}

// Summary is the content of the last non-empty assistant text item.
func (t *Translator) Summary() string {
	for i := len(t.items) - 1; i >= 0; i-- {
		item := t.items[i]
		if item.Role == domain.RoleAssistant && len(item.ToolCalls) == 0 {
			if text := item.Content.String(); text != "" {
				return text
			}
		}
	}
	return summaryFallback
}

func now() int64 {
	return time.Now().UnixMilli()
}
