package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/weave/internal/state"
	"github.com/ShayCichocki/weave/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [flow-id]",
	Short: "Show recorded flow runs",
	Long: `Display flow runs recorded in the project snapshot database.

Without arguments, lists recent flow runs.
With a flow ID, shows the per-task outcome of that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No recorded flows. Run 'weave run <flow.yaml>' to start one.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return showFlow(db, args[0])
	}
	return listFlows(db)
}

func listFlows(db *state.DB) error {
	flows, err := db.ListFlows()
	if err != nil {
		return err
	}
	if len(flows) == 0 {
		fmt.Println("No recorded flows.")
		return nil
	}

	for _, f := range flows {
		name := f.Name
		if name == "" {
			name = "(unnamed)"
		}
		line := fmt.Sprintf("%s  %-20s %-20s %s", f.ID, name, f.State, f.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Println(colorForFlowState(f.State)(line))
	}
	return nil
}

func showFlow(db *state.DB, flowID string) error {
	f, err := db.GetFlow(flowID)
	if err != nil {
		return fmt.Errorf("flow %s not found: %w", flowID, err)
	}

	fmt.Printf("flow %s (%s): %s\n", f.ID, f.Name, f.State)
	fmt.Printf("started %s", f.StartedAt.Format("2006-01-02 15:04:05"))
	if f.FinishedAt != nil {
		fmt.Printf(", finished %s", f.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	tasks, err := db.ListTasks(flowID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		line := fmt.Sprintf("  %-12s %s", t.State, t.TaskID)
		if t.FailureReason != "" {
			line += fmt.Sprintf(" (%s)", t.FailureReason)
		}
		fmt.Println(line)
		if t.FailureDetail != "" {
			fmt.Printf("    %s\n", firstLine(t.FailureDetail))
		}
	}
	return nil
}

func colorForFlowState(s models.FlowState) func(a ...interface{}) string {
	switch s {
	case models.FlowCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case models.FlowFailed:
		return color.New(color.FgRed).SprintFunc()
	case models.FlowPartiallyCompleted:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return fmt.Sprint
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
