package runtime

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/fzzzy/aguitest/internal/adapter/agentclient"
	"github.com/fzzzy/aguitest/internal/domain"
)

// Remote relays runs to an external AG-UI agent endpoint.
type Remote struct {
	client   *agentclient.Client
	endpoint string
}

var _ Runtime = (*Remote)(nil)

// NewRemote creates a runtime that forwards to endpoint.
func NewRemote(client *agentclient.Client, endpoint string) *Remote {
	return &Remote{client: client, endpoint: endpoint}
}

// Run starts a remote run. Frames that fail to parse are logged and dropped.
// A deferred_tool_requests event from the remote agent is captured as the
// run's outcome rather than forwarded.
func (r *Remote) Run(ctx context.Context, in RunInput) (Stream, error) {
	input := &domain.RunAgentInput{
		ThreadID: in.ThreadID,
		RunID:    in.RunID,
		State:    domain.RunState{DeferredToolApprovals: in.Approvals},
		Messages: in.Messages,
		Tools:    in.Tools,
		Context:  []domain.ContextItem{},
	}
	if input.Tools == nil {
		input.Tools = []domain.Tool{}
	}

	return newChanStream(ctx, func(ctx context.Context, emit emitFunc) error {
		var text strings.Builder
		var deferred map[string]DeferredToolRequest
		completed := false

		err := r.client.Run(ctx, r.endpoint, input, func(sse agentclient.SSEEvent) error {
			evt, err := agentclient.ParseEvent(sse)
			if err != nil {
				log.Printf("WARN: dropping frame from remote agent: %v", err)
				return nil
			}

			switch e := evt.(type) {
			case domain.TextMessageStart:
				text.Reset()
			case domain.TextMessageContent:
				text.WriteString(e.Delta)
			case domain.Custom:
				if e.Name == domain.CustomDeferredToolRequests {
					deferred = decodeDeferred(e.Value)
					return nil
				}
			case domain.RunFinished:
				if !completed && in.OnComplete != nil {
					completed = true
					in.OnComplete(Result{Output: text.String(), Deferred: deferred})
				}
			}
			return emit(evt)
		})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}), nil
}

func decodeDeferred(value any) map[string]DeferredToolRequest {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var out map[string]DeferredToolRequest
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Printf("WARN: ignoring malformed deferred_tool_requests: %v", err)
		return nil
	}
	return out
}
