package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzzzy/aguitest/internal/domain"
)

type countingObserver struct {
	opened, closed, dropped atomic.Int32
}

func (o *countingObserver) SessionOpened() { o.opened.Add(1) }
func (o *countingObserver) SessionClosed() { o.closed.Add(1) }
func (o *countingObserver) PingDropped()   { o.dropped.Add(1) }

func TestOpenLookupClose(t *testing.T) {
	obs := &countingObserver{}
	h := NewHub(Options{Observer: obs})

	s := h.Open()
	require.NotEmpty(t, s.Token)
	assert.Equal(t, 1, h.Count())

	got, err := h.Lookup(s.Token)
	require.NoError(t, err)
	assert.Same(t, s, got)

	h.Close(s.Token)
	h.Close(s.Token)
	assert.Equal(t, 0, h.Count())
	assert.Equal(t, int32(1), obs.closed.Load())

	_, err = h.Lookup(s.Token)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestPingDroppedWhenQueueFull(t *testing.T) {
	obs := &countingObserver{}
	h := NewHub(Options{QueueSize: 1, KeepaliveInterval: time.Millisecond, Observer: obs})
	s := h.Open()

	require.True(t, s.TryPush([]byte(`{"x":1}`)))

	done := make(chan struct{})
	go func() {
		h.ping()
		h.ping()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ping blocked on a full queue")
	}
	assert.Equal(t, int32(2), obs.dropped.Load())

	payload, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(payload))
}

func TestKeepaliveLoopDeliversPings(t *testing.T) {
	h := NewHub(Options{QueueSize: 4, KeepaliveInterval: 5 * time.Millisecond})
	s := h.Open()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	defer readCancel()
	payload, err := s.Next(readCtx)
	require.NoError(t, err)
	assert.Equal(t, string(PingPayload), string(payload))

	cancel()
	<-stopped
	assert.Equal(t, 0, h.Count())
}

func TestSubmitCancelsAndAwaitsPreviousRun(t *testing.T) {
	h := NewHub(Options{QueueSize: 64})
	s := h.Open()
	defer h.Close(s.Token)

	var mu sync.Mutex
	var order []string
	record := func(v string) {
		mu.Lock()
		order = append(order, v)
		mu.Unlock()
	}

	firstStarted := make(chan struct{})
	require.NoError(t, s.Submit(context.Background(), func(ctx context.Context, gen uint64) {
		record("first:start")
		close(firstStarted)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		record("first:end")
	}))
	<-firstStarted

	secondDone := make(chan struct{})
	require.NoError(t, s.Submit(context.Background(), func(ctx context.Context, gen uint64) {
		record("second:start")
		close(secondDone)
	}))
	<-secondDone

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:start", "first:end", "second:start"}, order)
}

func TestEmitDropsStaleGeneration(t *testing.T) {
	h := NewHub(Options{QueueSize: 64})
	s := h.Open()
	defer h.Close(s.Token)

	var staleGen uint64
	firstDone := make(chan struct{})
	require.NoError(t, s.Submit(context.Background(), func(ctx context.Context, gen uint64) {
		staleGen = gen
		assert.True(t, s.Emit(ctx, gen, []byte("a1")))
		close(firstDone)
	}))
	<-firstDone

	secondDone := make(chan struct{})
	require.NoError(t, s.Submit(context.Background(), func(ctx context.Context, gen uint64) {
		assert.True(t, s.Emit(ctx, gen, []byte("b1")))
		close(secondDone)
	}))
	<-secondDone

	assert.False(t, s.IsCurrent(staleGen))
	assert.False(t, s.Emit(context.Background(), staleGen, []byte("a2")))

	for _, want := range []string{"a1", "b1"} {
		got, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	h := NewHub(Options{})
	s := h.Open()
	h.Close(s.Token)

	err := s.Submit(context.Background(), func(ctx context.Context, gen uint64) {})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseCancelsRun(t *testing.T) {
	h := NewHub(Options{})
	s := h.Open()

	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Submit(context.Background(), func(ctx context.Context, gen uint64) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	h.Close(s.Token)
	select {
	case <-cancelled:
	default:
		t.Fatal("Close returned before the run observed cancellation")
	}
}
