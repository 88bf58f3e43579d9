// Package service implements the agent server's use cases: storing user
// turns and running the agent for a session or a stored message.
package service

import (
	"golang.org/x/sync/semaphore"

	"github.com/fzzzy/aguitest/internal/config"
	"github.com/fzzzy/aguitest/internal/hub"
	"github.com/fzzzy/aguitest/internal/observability"
	"github.com/fzzzy/aguitest/internal/runtime"
	"github.com/fzzzy/aguitest/internal/store"
)

type Service struct {
	store   store.Store
	hub     *hub.Hub
	runtime runtime.Runtime
	config  *config.Config
	metrics *observability.Metrics
	runs    *semaphore.Weighted
}

func New(store store.Store, hub *hub.Hub, rt runtime.Runtime, cfg *config.Config, metrics *observability.Metrics) *Service {
	limit := int64(cfg.MaxConcurrentRuns)
	if limit <= 0 {
		limit = 1
	}
	return &Service{
		store:   store,
		hub:     hub,
		runtime: rt,
		config:  cfg,
		metrics: metrics,
		runs:    semaphore.NewWeighted(limit),
	}
}

// Hub returns the session hub.
func (s *Service) Hub() *hub.Hub {
	return s.hub
}
