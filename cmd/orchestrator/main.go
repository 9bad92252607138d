// Package main provides the orchestrator daemon entry point.
//
// orchestrator runs a parallel-inference, multi-mode LLM orchestration engine
// behind a single streaming HTTP endpoint: one request fans out across
// several backend models, classifies and retries their failures, and streams
// tagged status/data/error frames back to the caller as the pipeline runs.
//
// # Basic Usage
//
// Start the server:
//
//	orchestrator serve --config orchestrator.yaml
//
// # Environment Variables
//
//   - CEREBRAS_API_KEYS: comma-separated backend credentials (required)
//   - CEREBRAS_BASE_URL: override for the OpenAI-compatible endpoint
//   - ORCHESTRATOR_HTTP_ADDR, ORCHESTRATOR_LOG_LEVEL, ORCHESTRATOR_LOG_FORMAT
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "LLM parallel-inference orchestration engine",
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("orchestrator %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
