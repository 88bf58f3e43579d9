package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fzzzy/aguitest/internal/adapter/agentclient"
	"github.com/fzzzy/aguitest/internal/domain"
)

func init() {
	chatCmd.Flags().StringVar(&chatPrevious, "previous", "", "message id to continue from")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "print custom events")
	rootCmd.AddCommand(chatCmd)
}

var (
	chatPrevious string
	chatVerbose  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat through the stateless message endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client := newClient()
		previous := chatPrevious

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
			outcome, err := streamMessage(ctx, client, id)
			if err != nil {
				return err
			}
			previous = id
			if outcome.AssistantMessageID != "" {
				previous = outcome.AssistantMessageID
			}
			if len(outcome.Deferred) > 0 {
				fmt.Println("Tool approvals need a session; use the session command.")
			}
		}
	},
}

func postMessage(ctx context.Context, content, previous string) (string, error) {
	var resp domain.MessageResponse
	err := postJSON(ctx, baseURL()+"/message", domain.MessageRequest{Content: content, PreviousID: previous}, &resp)
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	return resp.ID, nil
}

func streamMessage(ctx context.Context, client *agentclient.Client, messageID string) (runOutcome, error) {
	r := &renderer{out: os.Stdout, verbose: chatVerbose}
	endpoint := baseURL() + "/agent?message_id=" + url.QueryEscape(messageID)
	err := client.Stream(ctx, http.MethodGet, endpoint, nil, nil, func(evt agentclient.SSEEvent) error {
		parsed, err := agentclient.ParseEvent(evt)
		if err != nil {
			return nil
		}
		r.handle(parsed)
		return nil
	})
	if err != nil {
		return r.outcome, fmt.Errorf("stream run: %w", err)
	}
	return r.outcome, nil
}
