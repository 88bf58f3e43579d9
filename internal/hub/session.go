package hub

import (
	"context"
	"sync"
)

// Session is one connected client: an outbound queue with a single
// consumer and at most one active run.
type Session struct {
	Token string

	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	// submitMu serializes Submit so cancel-and-await is never interleaved.
	submitMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	current *run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ShortToken is the token prefix used in log lines.
func (s *Session) ShortToken() string {
	if len(s.Token) > 8 {
		return s.Token[:8]
	}
	return s.Token
}

// Submit cancels the in-flight run, waits for it to return, then starts work
// in a new goroutine under the next generation. work's context is cancelled
// when the run is superseded or the session closes.
func (s *Session) Submit(ctx context.Context, work func(ctx context.Context, gen uint64)) error {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.current = r
	s.mu.Unlock()

	go func() {
		defer close(r.done)
		defer cancel()
		work(runCtx, gen)
	}()
	return nil
}

// IsCurrent reports whether gen is the latest submitted run.
func (s *Session) IsCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.ctx.Err() == nil
}

// Emit queues payload on behalf of run gen. Payloads from a superseded run
// are dropped and Emit returns false.
func (s *Session) Emit(ctx context.Context, gen uint64, payload []byte) bool {
	if !s.IsCurrent(gen) {
		return false
	}
	select {
	case s.queue <- payload:
		return true
	case <-ctx.Done():
		return false
	case <-s.ctx.Done():
		return false
	}
}

// TryPush queues payload only if there is room.
func (s *Session) TryPush(payload []byte) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.queue <- payload:
		return true
	default:
		return false
	}
}

// Next blocks for the next queued payload.
func (s *Session) Next(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-s.queue:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrSessionClosed
	}
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) shutdown() {
	s.cancel()

	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r != nil {
		<-r.done
	}
}
