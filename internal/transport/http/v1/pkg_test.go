package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fzzzy/aguitest/internal/adapter/llm"
	"github.com/fzzzy/aguitest/internal/config"
	"github.com/fzzzy/aguitest/internal/domain"
	"github.com/fzzzy/aguitest/internal/hub"
	"github.com/fzzzy/aguitest/internal/observability"
	"github.com/fzzzy/aguitest/internal/policy"
	"github.com/fzzzy/aguitest/internal/runtime"
	"github.com/fzzzy/aguitest/internal/service"
	"github.com/fzzzy/aguitest/internal/store"
	"github.com/fzzzy/aguitest/internal/tools"
	"github.com/fzzzy/aguitest/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, store.Store) {
	t.Helper()
	cfg := config.Default()
	db := helpers.NewTestSQLiteStore(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	agent := runtime.NewAgent(llm.NewMockClient(), registry, policyEngine, runtime.AgentOptions{
		Instructions: service.AgentInstructions,
		Observer:     metrics,
	})

	h := hub.NewHub(hub.Options{QueueSize: cfg.SessionQueueSize, KeepaliveInterval: cfg.KeepaliveInterval, Observer: metrics})
	svc := service.New(db, h, agent, cfg, metrics)
	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h.Run(ctx)
	})

	handler := NewHandler(svc)
	e := echo.New()
	handler.RegisterRoutes(e)
	return handler, e, db
}

// parseFrames decodes every data frame of an SSE body.
func parseFrames(t *testing.T, body []byte) []domain.Event {
	t.Helper()
	var events []domain.Event
	for _, frame := range bytes.Split(body, []byte("\n\n")) {
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		payload, ok := domain.FramePayload(frame)
		if !ok {
			t.Fatalf("not a data frame: %q", frame)
		}
		evt, err := domain.DecodeEvent(payload)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		events = append(events, evt)
	}
	return events
}

func postJSON(t *testing.T, e *echo.Echo, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func findCustom(events []domain.Event, name string) (domain.Custom, bool) {
	for _, e := range events {
		if c, ok := e.(domain.Custom); ok && c.Name == name {
			return c, true
		}
	}
	return domain.Custom{}, false
}

func decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
