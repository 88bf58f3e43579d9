// Package hub owns the live client sessions: their tokens, outbound queues,
// keepalive pings and the single in-flight run of each session.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fzzzy/aguitest/internal/domain"
)

// PingPayload is pushed into every queue on each keepalive tick.
var PingPayload = []byte(`{"ping":true}`)

// ErrSessionClosed is returned by session operations after Close.
var ErrSessionClosed = errors.New("session closed")

const (
	defaultQueueSize = 256
	defaultKeepalive = 60 * time.Second
)

// Observer receives session lifecycle notifications.
type Observer interface {
	SessionOpened()
	SessionClosed()
	PingDropped()
}

// Options configures a Hub.
type Options struct {
	QueueSize         int
	KeepaliveInterval time.Duration
	Observer          Observer
}

// Hub manages all sessions.
type Hub struct {
	// Sessions indexed by token
	sessions map[string]*Session
	mu       sync.RWMutex

	queueSize int
	keepalive time.Duration
	observer  Observer
}

// NewHub creates a new Hub.
func NewHub(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = defaultKeepalive
	}
	return &Hub{
		sessions:  make(map[string]*Session),
		queueSize: opts.QueueSize,
		keepalive: opts.KeepaliveInterval,
		observer:  opts.Observer,
	}
}

// Open allocates and registers a new session.
func (h *Hub) Open() *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Token:  uuid.New().String(),
		queue:  make(chan []byte, h.queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.sessions[s.Token] = s
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.SessionOpened()
	}
	log.Printf("[%s] session opened", s.ShortToken())
	return s
}

// Lookup returns the session for token.
func (h *Hub) Lookup(token string) (*Session, error) {
	h.mu.RLock()
	s, ok := h.sessions[token]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", token, domain.ErrNotFound)
	}
	return s, nil
}

// Close deregisters the session, cancels its run and waits for it to stop.
// Closing an unknown token is a no-op.
func (h *Hub) Close(token string) {
	h.mu.Lock()
	s, ok := h.sessions[token]
	delete(h.sessions, token)
	h.mu.Unlock()
	if !ok {
		return
	}

	s.shutdown()
	if h.observer != nil {
		h.observer.SessionClosed()
	}
	log.Printf("[%s] session closed", s.ShortToken())
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Run starts the keepalive loop and blocks until ctx is done, then closes
// every remaining session.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.ping()
		}
	}
}

// ping pushes a keepalive into every queue without ever blocking.
func (h *Hub) ping() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if !s.TryPush(PingPayload) && h.observer != nil {
			h.observer.PingDropped()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	tokens := make([]string, 0, len(h.sessions))
	for token := range h.sessions {
		tokens = append(tokens, token)
	}
	h.mu.RUnlock()

	for _, token := range tokens {
		h.Close(token)
	}
}
