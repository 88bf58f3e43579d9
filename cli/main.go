// Package main provides a command line client for the agent server.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fzzzy/aguitest/internal/adapter/agentclient"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:           "aguicli",
	Short:         "Command line client for the AG-UI agent server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", envOr("AGENT_SERVER_URL", "http://localhost:8000"), "agent server base URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func baseURL() string {
	return strings.TrimRight(serverAddr, "/")
}

func newClient() *agentclient.Client {
	return agentclient.NewClient(0)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
