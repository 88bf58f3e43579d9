package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fzzzy/aguitest/internal/adapter/agentclient"
	"github.com/fzzzy/aguitest/internal/adapter/llm"
	"github.com/fzzzy/aguitest/internal/config"
	"github.com/fzzzy/aguitest/internal/hub"
	"github.com/fzzzy/aguitest/internal/observability"
	"github.com/fzzzy/aguitest/internal/policy"
	"github.com/fzzzy/aguitest/internal/runtime"
	"github.com/fzzzy/aguitest/internal/service"
	"github.com/fzzzy/aguitest/internal/store"
	"github.com/fzzzy/aguitest/internal/tools"
	handler "github.com/fzzzy/aguitest/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting agent server...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Store: %s", cfg.StoreDriver)
	log.Printf("Agent mode: %s", cfg.AgentMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Initialize agent runtime
	rt, err := newRuntime(ctx, cfg, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize agent runtime: %v", err)
	}

	// Initialize session hub and service
	sessions := hub.NewHub(hub.Options{
		QueueSize:         cfg.SessionQueueSize,
		KeepaliveInterval: cfg.KeepaliveInterval,
		Observer:          metrics,
	})
	svc := service.New(db, sessions, rt, cfg, metrics)

	server := handler.NewServer(svc, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down agent server...")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown server gracefully: %v", err)
		}
		return nil
	})

	log.Printf("Agent server started on port %d", cfg.HTTPPort)
	if err := g.Wait(); err != nil {
		log.Printf("ERROR: %v", err)
	}
	log.Println("Agent server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Printf("Redis: %s (prefix %s)", cfg.RedisAddr, cfg.RedisPrefix)
		return store.NewRedisStore(client, cfg.RedisPrefix, cfg.RedisTTL), nil
	default:
		log.Printf("Database: %s", cfg.DatabaseURL)
		return store.NewSQLiteStore(cfg.DatabaseURL)
	}
}

func newRuntime(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (runtime.Runtime, error) {
	if cfg.AgentMode == config.AgentModeRemote {
		log.Printf("Remote agent: %s", cfg.RemoteAgentURL)
		return runtime.NewRemote(agentclient.NewClient(0), cfg.RemoteAgentURL), nil
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	model := llm.NewModel(cfg.AgentMode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	return runtime.NewAgent(model, registry, policyEngine, runtime.AgentOptions{
		Instructions: service.AgentInstructions,
		Model:        cfg.LLMModel,
		MaxRounds:    cfg.MaxToolRounds,
		Observer:     metrics,
	}), nil
}
