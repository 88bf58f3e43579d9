package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/fzzzy/aguitest/internal/attachment"
	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/hub"
	"github.com/fzzzy/aguitest/internal/runtime"
	"github.com/fzzzy/aguitest/internal/store"
)

const responseBuffer = 16

// Run outcomes recorded in metrics.
const (
	runCompleted = "completed"
	runDeferred  = "deferred"
	runCancelled = "cancelled"
	runFailed    = "error"
)

// runPlan is a run input resolved against the store.
type runPlan struct {
	threadID  string
	runID     string
	parentID  string
	messages  []domain.ChatMessage
	tools     []domain.Tool
	approvals map[string]domain.ApprovalDecision
	echoed    domain.Attachments
	logTag    string
}

// runSink receives the payloads of one run.
type runSink struct {
	emit    func(ctx context.Context, payload []byte)
	current func() bool
}

// Submit starts a run on the session identified by token. Any run already
// in flight for the session is cancelled and awaited first. The returned
// channel carries the run's payloads for the submitting request and is
// closed when the run ends; the same payloads are mirrored into the session
// queue. messageID, when set, names the stored message the run answers.
func (s *Service) Submit(ctx context.Context, token string, input *domain.RunAgentInput, messageID string) (<-chan []byte, error) {
	session, err := s.hub.Lookup(token)
	if err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, input, messageID)
	if err != nil {
		return nil, err
	}
	plan.logTag = session.ShortToken()

	out := make(chan []byte, responseBuffer)
	err = session.Submit(ctx, func(runCtx context.Context, gen uint64) {
		defer close(out)

		// The run also stops when the submitting request goes away.
		runCtx, cancel := context.WithCancel(runCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		s.execute(runCtx, plan, runSink{
			emit: func(ctx context.Context, payload []byte) {
				if !session.Emit(ctx, gen, payload) {
					return
				}
				select {
				case out <- payload:
				case <-ctx.Done():
				}
			},
			current: func() bool { return session.IsCurrent(gen) },
		})
	})
	if errors.Is(err, hub.ErrSessionClosed) {
		return nil, fmt.Errorf("session %s: %w", token, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunStateless runs the agent over the stored conversation ending at
// messageID, without a session. The thread id is the id of the first message
// of the conversation.
func (s *Service) RunStateless(ctx context.Context, messageID string) (<-chan []byte, error) {
	history, err := s.History(ctx, messageID)
	if err != nil {
		return nil, err
	}

	threadID := messageID
	if len(history) > 0 {
		threadID = history[0].ID
	}
	plan := &runPlan{
		threadID: threadID,
		runID:    "run-" + messageID,
		parentID: messageID,
		messages: store.Flatten(history),
		logTag:   shortID(messageID),
	}
	log.Printf("[%s] sending %d messages to agent", plan.logTag, len(plan.messages))

	out := make(chan []byte, responseBuffer)
	go func() {
		defer close(out)
		s.execute(ctx, plan, runSink{
			emit: func(ctx context.Context, payload []byte) {
				select {
				case out <- payload:
				case <-ctx.Done():
				}
			},
			current: func() bool { return ctx.Err() == nil },
		})
	}()
	return out, nil
}

func (s *Service) plan(ctx context.Context, input *domain.RunAgentInput, messageID string) (*runPlan, error) {
	if input == nil {
		return nil, fmt.Errorf("run input is required: %w", domain.ErrInvalidInput)
	}

	parentID := messageID
	if parentID == "" {
		parentID = input.State.MessageID
	}

	messages := input.Messages
	if len(messages) == 0 && parentID != "" {
		history, err := s.History(ctx, parentID)
		if err != nil {
			return nil, err
		}
		messages = store.Flatten(history)
	}

	threadID := input.ThreadID
	if threadID == "" {
		if len(messages) > 0 && messages[0].ID != "" {
			threadID = messages[0].ID
		} else {
			threadID = uuid.New().String()
		}
	}
	runID := input.RunID
	if runID == "" {
		runID = "run-" + uuid.New().String()
	}

	return &runPlan{
		threadID:  threadID,
		runID:     runID,
		parentID:  parentID,
		messages:  messages,
		tools:     input.Tools,
		approvals: input.State.DeferredToolApprovals,
		echoed:    attachment.Inject(messages, input.State.Attachments),
	}, nil
}

// execute drives one run to completion. Runtime failures other than
// cancellation end the run with a RUN_ERROR frame.
func (s *Service) execute(ctx context.Context, plan *runPlan, sink runSink) {
	if err := s.runs.Acquire(ctx, 1); err != nil {
		s.metrics.RunFinished(runCancelled)
		return
	}
	defer s.runs.Release(1)

	tr := NewTranslator(s.store, TranslatorOptions{
		ParentID:    plan.parentID,
		FirstTurn:   len(plan.messages) == 1,
		Attachments: plan.echoed,
		LogTag:      plan.logTag,
		OnSave:      s.metrics.MessageSaved,
	})

	stream, err := s.runtime.Run(ctx, runtime.RunInput{
		ThreadID:   plan.threadID,
		RunID:      plan.runID,
		Messages:   plan.messages,
		Tools:      plan.tools,
		Approvals:  plan.approvals,
		OnComplete: tr.Complete,
	})
	if err != nil {
		s.fail(ctx, plan, sink, err)
		return
	}
	defer stream.Close()

	for {
		evt, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.metrics.RunFinished(outcome(tr))
			return
		}
		if err != nil {
			if errors.Is(err, domain.ErrRunCancelled) || ctx.Err() != nil {
				log.Printf("[%s] run %s cancelled", plan.logTag, plan.runID)
				s.metrics.RunFinished(runCancelled)
				return
			}
			s.fail(ctx, plan, sink, err)
			return
		}

		_, finished := evt.(domain.RunFinished)
		if finished && !sink.current() {
			// Superseded between the last event and completion.
			s.metrics.RunFinished(runCancelled)
			return
		}

		for _, out := range tr.Translate(ctx, evt) {
			s.send(ctx, plan, sink, out)
		}
		if finished {
			s.metrics.RunFinished(outcome(tr))
			return
		}
	}
}

func (s *Service) fail(ctx context.Context, plan *runPlan, sink runSink, err error) {
	log.Printf("ERROR: [%s] run %s failed: %v", plan.logTag, plan.runID, err)
	s.metrics.RunFinished(runFailed)
	if !sink.current() {
		return
	}
	s.send(ctx, plan, sink, domain.RunError{Message: err.Error(), Code: "agent_error", Timestamp: now()})
}

func (s *Service) send(ctx context.Context, plan *runPlan, sink runSink, evt domain.Event) {
	payload, err := domain.EncodeEvent(evt)
	if err != nil {
		log.Printf("WARN: [%s] dropping %s event: %v", plan.logTag, evt.EventType(), err)
		return
	}
	s.metrics.FrameEmitted(string(evt.EventType()))
	sink.emit(ctx, payload)
}

func outcome(tr *Translator) string {
	if len(tr.Deferred()) > 0 {
		return runDeferred
	}
	return runCompleted
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
