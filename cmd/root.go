// Package cmd contains the askbase CLI entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "askbase",
	Short: "Askbase - multi-tenant retrieval-augmented chat service",
	Long: `Askbase serves tenant-scoped chatbots backed by a shared knowledge
pipeline: source text is chunked and embedded into a per-tenant vector
store, and user questions are answered by retrieving the most similar
chunks and handing them to a generation backend.

Run 'askbase serve' to start the HTTP API.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
