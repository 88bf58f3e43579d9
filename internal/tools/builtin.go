package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fzzzy/aguitest/internal/domain"
)

const (
	EvaluateExpression = "evaluate_expression"
	CountMessages      = "count_messages"
	SetTopic           = "set_topic"
)

// RegisterBuiltins adds the server's built-in tools to r.
func RegisterBuiltins(r *Registry) error {
	defs := []Definition{
		{
			Name: EvaluateExpression,
			Description: "Evaluate mathematical and logical expressions safely. " +
				"Operators: + - * / ** % == < > <= >= and or not in. " +
				"Functions: randint(x), rand(), int(x), float(x), str(x). " +
				`Examples: "2 + 2" returns 4, "15 % 4" returns 3, "1 / 0" returns inf.`,
			Parameters: json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string","description":"The expression to evaluate"}},"required":["expression"]}`),
			Executor:   evaluateExpression,
		},
		{
			Name:        CountMessages,
			Description: "Count messages and notify the client.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
			Executor:    countMessages,
		},
		{
			Name:        SetTopic,
			Description: "Set the conversation topic.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"topic":{"type":"string"}},"required":["topic"]}`),
			Executor:    setTopic,
		},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func evaluateExpression(ctx context.Context, args json.RawMessage) (Result, error) {
	var in struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, fmt.Errorf("invalid arguments: %w", err)
	}
	return Result{Content: Evaluate(in.Expression)}, nil
}

func countMessages(ctx context.Context, args json.RawMessage) (Result, error) {
	return Result{
		Content: "Message counted",
		Events: []domain.Event{domain.Custom{
			Name:      domain.CustomMessageCount,
			Value:     "1",
			Timestamp: time.Now().UnixMilli(),
		}},
	}, nil
}

func setTopic(ctx context.Context, args json.RawMessage) (Result, error) {
	var in struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Result{}, fmt.Errorf("invalid arguments: %w", err)
	}
	return Result{
		Content: "Topic set to: " + in.Topic,
		Events: []domain.Event{domain.Custom{
			Name:      domain.CustomTopicChanged,
			Value:     in.Topic,
			Timestamp: time.Now().UnixMilli(),
		}},
	}, nil
}
