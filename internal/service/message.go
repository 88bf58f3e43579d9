package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fzzzy/aguitest/internal/domain"
)

// PostMessage persists a user turn and returns its id.
func (s *Service) PostMessage(ctx context.Context, req domain.MessageRequest) (*domain.MessageResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("content is required: %w", domain.ErrInvalidInput)
	}

	event := domain.ChatMessage{
		ID:      uuid.New().String(),
		Role:    domain.RoleUser,
		Content: domain.TextContent(req.Content),
	}
	id, err := s.store.SaveMessage(ctx, req.Content, []domain.ChatMessage{event}, req.PreviousID)
	s.metrics.MessageSaved(err)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return &domain.MessageResponse{ID: id}, nil
}

// GetMessage returns a stored message.
func (s *Service) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return msg, nil
}

// History returns the conversation ending at id, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]*domain.Message, error) {
	if _, err := s.GetMessage(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.store.Reconstruct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct history: %w", err)
	}
	return history, nil
}
