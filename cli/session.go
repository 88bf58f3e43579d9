package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fzzzy/aguitest/internal/adapter/agentclient"
	"github.com/fzzzy/aguitest/internal/domain"
)

func init() {
	sessionCmd.Flags().BoolVarP(&sessionVerbose, "verbose", "v", false, "print custom events")
	rootCmd.AddCommand(sessionCmd)
}

var sessionVerbose bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Chat through an event session with tool approvals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		client := newClient()

		agentPath, err := openSession(ctx, client)
		if err != nil {
			return err
		}
		fmt.Printf("Session open: %s\n", agentPath)

		threadID := uuid.New().String()
		previous := ""
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if text == "quit" || text == "exit" {
				return nil
			}

			id, err := postMessage(ctx, text, previous)
			if err != nil {
				return err
			}
			previous = id

			input := &domain.RunAgentInput{ThreadID: threadID, State: domain.RunState{MessageID: id}}
			for {
				input.RunID = "run-" + uuid.New().String()
				outcome, err := submitRun(ctx, client, baseURL()+agentPath, input)
				if err != nil {
					return err
				}
				if outcome.AssistantMessageID != "" {
					previous = outcome.AssistantMessageID
				}
				if len(outcome.Deferred) == 0 || outcome.AssistantMessageID == "" {
					break
				}
				input = &domain.RunAgentInput{
					ThreadID: threadID,
					State: domain.RunState{
						MessageID:             outcome.AssistantMessageID,
						DeferredToolApprovals: askApprovals(scanner, outcome),
					},
				}
			}
		}
	},
}

// openSession connects to /events and returns the run submission path from
// its first frame. The stream stays open until ctx is cancelled.
func openSession(ctx context.Context, client *agentclient.Client) (string, error) {
	first := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		sent := false
		err := client.Stream(ctx, http.MethodPost, baseURL()+"/events", nil, nil, func(evt agentclient.SSEEvent) error {
			if !sent {
				sent = true
				first <- evt.Data
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errc <- err
		}
	}()

	select {
	case data := <-first:
		var hello struct {
			Agent string `json:"agent"`
		}
		if err := json.Unmarshal([]byte(data), &hello); err != nil || hello.Agent == "" {
			return "", fmt.Errorf("unexpected first frame: %s", data)
		}
		return hello.Agent, nil
	case err := <-errc:
		return "", fmt.Errorf("open session: %w", err)
	case <-time.After(10 * time.Second):
		return "", fmt.Errorf("open session: no response from %s/events", baseURL())
	}
}

func submitRun(ctx context.Context, client *agentclient.Client, endpoint string, input *domain.RunAgentInput) (runOutcome, error) {
	r := &renderer{out: os.Stdout, verbose: sessionVerbose}
	err := client.Stream(ctx, http.MethodPost, endpoint, input, nil, func(evt agentclient.SSEEvent) error {
		parsed, err := agentclient.ParseEvent(evt)
		if err != nil {
			return nil
		}
		r.handle(parsed)
		return nil
	})
	if err != nil {
		return r.outcome, fmt.Errorf("submit run: %w", err)
	}
	return r.outcome, nil
}

func askApprovals(scanner *bufio.Scanner, outcome runOutcome) map[string]domain.ApprovalDecision {
	ids := make([]string, 0, len(outcome.Deferred))
	for id := range outcome.Deferred {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	approvals := make(map[string]domain.ApprovalDecision, len(ids))
	for _, id := range ids {
		req := outcome.Deferred[id]
		args, _ := json.Marshal(req.Args)
		fmt.Printf("Approve %s %s? [y/N] ", req.ToolName, args)
		answer := ""
		if scanner.Scan() {
			answer = strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
		approvals[id] = domain.ApprovalDecision{Approved: answer == "y" || answer == "yes"}
	}
	return approvals
}
