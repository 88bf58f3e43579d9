package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fzzzy/aguitest/internal/config"
	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/hub"
	"github.com/fzzzy/aguitest/internal/observability"
	"github.com/fzzzy/aguitest/internal/runtime"
	"github.com/fzzzy/aguitest/internal/store"
	"github.com/fzzzy/aguitest/tests/helpers"
)

// scriptedRuntime replays a fixed list of events per run. When hold is set
// the stream blocks after the script until it is cancelled.
type scriptedRuntime struct {
	mu     sync.Mutex
	script func(in runtime.RunInput) []domain.Event
	result func(in runtime.RunInput) runtime.Result
	hold   func(in runtime.RunInput) bool
	inputs []runtime.RunInput
	err    error
}

func (r *scriptedRuntime) Run(ctx context.Context, in runtime.RunInput) (runtime.Stream, error) {
	r.mu.Lock()
	r.inputs = append(r.inputs, in)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	s := &scriptedStream{ctx: ctx, events: r.script(in), onComplete: in.OnComplete, done: make(chan struct{})}
	if r.result != nil {
		s.result = r.result(in)
	}
	if r.hold != nil {
		s.hold = r.hold(in)
	}
	return s, nil
}

func (r *scriptedRuntime) Inputs() []runtime.RunInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runtime.RunInput(nil), r.inputs...)
}

type scriptedStream struct {
	ctx        context.Context
	events     []domain.Event
	pos        int
	result     runtime.Result
	onComplete func(runtime.Result)
	hold       bool
	fail       error

	once sync.Once
	done chan struct{}
}

func (s *scriptedStream) Next(ctx context.Context) (domain.Event, error) {
	if s.pos < len(s.events) {
		evt := s.events[s.pos]
		s.pos++
		if _, ok := evt.(domain.RunFinished); ok && s.onComplete != nil {
			s.onComplete(s.result)
		}
		return evt, nil
	}
	if s.fail != nil {
		return nil, s.fail
	}
	if s.hold {
		select {
		case <-s.ctx.Done():
		case <-ctx.Done():
		case <-s.done:
		}
		return nil, domain.ErrRunCancelled
	}
	return nil, io.EOF
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func textRun(in runtime.RunInput, text string) []domain.Event {
	msgID := in.RunID + "-msg"
	return []domain.Event{
		domain.RunStarted{ThreadID: in.ThreadID, RunID: in.RunID},
		domain.TextMessageStart{MessageID: msgID, Role: domain.RoleAssistant},
		domain.TextMessageContent{MessageID: msgID, Delta: text},
		domain.TextMessageEnd{MessageID: msgID},
		domain.RunFinished{ThreadID: in.ThreadID, RunID: in.RunID},
	}
}

func newTestService(t *testing.T, rt runtime.Runtime) (*Service, store.Store) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	cfg := config.Default()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	h := hub.NewHub(hub.Options{QueueSize: 128, KeepaliveInterval: time.Hour, Observer: metrics})
	return New(st, h, rt, cfg, metrics), st
}

func collect(t *testing.T, frames <-chan []byte) []domain.Event {
	t.Helper()
	var events []domain.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case payload, ok := <-frames:
			if !ok {
				return events
			}
			evt, err := domain.DecodeEvent(payload)
			if err != nil {
				t.Fatalf("bad payload %s: %v", payload, err)
			}
			events = append(events, evt)
		case <-timeout:
			t.Fatalf("timed out waiting for frames")
		}
	}
}

func eventTypes(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

var errUnavailable = errors.New("model unavailable")
