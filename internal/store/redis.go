package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fzzzy/aguitest/internal/domain"
)

const defaultRedisPrefix = "aguitest:message:"

// RedisClient is the subset of the go-redis client the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisStore implements Store with one JSON value per message key.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. A zero ttl keeps messages forever.
func NewRedisStore(client RedisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// SaveMessage stores a new message. SetNX keeps messages immutable.
func (s *RedisStore) SaveMessage(ctx context.Context, content string, events []domain.ChatMessage, parentID string) (string, error) {
	if events == nil {
		events = []domain.ChatMessage{}
	}
	msg := domain.Message{
		ID:        uuid.New().String(),
		ParentID:  parentID,
		Content:   content,
		Events:    events,
		CreatedAt: time.Now().UTC(),
	}
	val, err := json.Marshal(msg)
	if err != nil {
		return "", &domain.StorageError{Op: "encode message", Err: err}
	}

	ok, err := s.client.SetNX(ctx, s.key(msg.ID), val, s.ttl).Result()
	if err != nil {
		return "", &domain.StorageError{Op: "save message", Err: err}
	}
	if !ok {
		return "", &domain.StorageError{Op: "save message", Err: errors.New("message id already exists")}
	}
	return msg.ID, nil
}

// GetMessage returns nil, nil when the key is absent.
func (s *RedisStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get message", Err: err}
	}

	var msg domain.Message
	if err := json.Unmarshal(val, &msg); err != nil {
		return nil, &domain.StorageError{Op: "decode message", Err: err}
	}
	return &msg, nil
}

// Reconstruct returns the conversation ending at id, oldest first.
func (s *RedisStore) Reconstruct(ctx context.Context, id string) ([]*domain.Message, error) {
	return reconstruct(ctx, id, s.GetMessage)
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
