package runtime

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/fzzzy/aguitest/internal/domain"
)

type emitFunc func(domain.Event) error

// chanStream runs a producer goroutine and hands its events to the consumer
// through an unbuffered channel, so the producer never runs ahead of Next.
type chanStream struct {
	events chan domain.Event
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce sync.Once
	err       error
}

func newChanStream(parent context.Context, produce func(ctx context.Context, emit emitFunc) error) *chanStream {
	ctx, cancel := context.WithCancel(parent)
	s := &chanStream{
		events: make(chan domain.Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	emit := func(e domain.Event) error {
		select {
		case s.events <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(s.done)
		s.err = produce(ctx, emit)
		close(s.events)
	}()
	return s
}

func (s *chanStream) Next(ctx context.Context) (domain.Event, error) {
	select {
	case e, ok := <-s.events:
		if ok {
			return e, nil
		}
		if s.err == nil {
			return nil, io.EOF
		}
		if errors.Is(s.err, context.Canceled) {
			return nil, domain.ErrRunCancelled
		}
		return nil, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
