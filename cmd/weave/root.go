package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Task-graph agent orchestration",
	Long: `Weave runs flows: graphs of dependent tasks executed by LLM agents.

A flow file declares tasks, their dependencies, and the shape each task's
result must take. Weave schedules independent tasks concurrently, feeds
dependency results into downstream prompts, validates agent output against
the declared shapes, and re-prompts with corrective feedback when the output
does not fit.

Interactive tasks may suspend mid-flow to ask the user a question; the flow
keeps running other tasks while the question waits for an answer.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
