// Package store persists conversation turns as a parent-linked chain.
package store

import (
	"context"
	"errors"

	"github.com/fzzzy/aguitest/internal/domain"
)

// Store defines the interface for conversation persistence.
type Store interface {
	// SaveMessage persists a new immutable message and returns its id.
	SaveMessage(ctx context.Context, content string, events []domain.ChatMessage, parentID string) (string, error)
	// GetMessage returns nil, nil when the message does not exist.
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	// Reconstruct returns the chain ending at id, oldest first.
	Reconstruct(ctx context.Context, id string) ([]*domain.Message, error)
	Close() error
}

type getFunc func(ctx context.Context, id string) (*domain.Message, error)

// reconstruct walks parent links from id until a message has no parent or a
// link target is missing, then reverses the visited nodes.
func reconstruct(ctx context.Context, id string, get getFunc) ([]*domain.Message, error) {
	var chain []*domain.Message
	seen := make(map[string]bool)

	for cur := id; cur != "" && !seen[cur]; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[cur] = true

		msg, err := get(ctx, cur)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			break
		}
		chain = append(chain, msg)
		cur = msg.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Flatten concatenates the events of every message in order.
func Flatten(history []*domain.Message) []domain.ChatMessage {
	var out []domain.ChatMessage
	for _, msg := range history {
		out = append(out, msg.Events...)
	}
	return out
}

// IsStorageError reports whether err is a persistence failure.
func IsStorageError(err error) bool {
	var serr *domain.StorageError
	return errors.As(err, &serr)
}
