package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/internal/config"
	"github.com/ShayCichocki/weave/internal/flow"
	"github.com/ShayCichocki/weave/internal/interaction"
	"github.com/ShayCichocki/weave/internal/orchestrator"
	"github.com/ShayCichocki/weave/internal/state"
	"github.com/ShayCichocki/weave/internal/tui"
	"github.com/ShayCichocki/weave/pkg/models"
)

var (
	runInteractive      bool
	runConcurrency      int
	runCorrectionRounds int
	runNoState          bool
	runAnswersDir       string
	runModel            string
)

var runCmd = &cobra.Command{
	Use:   "run <flow.yaml>",
	Short: "Run a flow file",
	Long: `Run the tasks declared in a flow file.

Independent tasks execute concurrently up to the concurrency limit.
Each task's output is validated against its declared result shape; output
that does not fit is sent back to the agent with corrective feedback.

Interactive tasks may ask questions mid-flow. With --interactive, questions
appear in a console where you type answers directly. Without it, questions
are printed along with instructions for answering via the answers directory:
write the answer text to a file named after the task ID.

Examples:
  weave run release.yaml
  weave run release.yaml --interactive
  weave run release.yaml --concurrency 8 --no-state`,
	Args: cobra.ExactArgs(1),
	RunE: runFlow,
}

func init() {
	runCmd.Flags().BoolVarP(&runInteractive, "interactive", "i", false, "Answer task questions in an interactive console")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Maximum simultaneously running tasks (0 uses config)")
	runCmd.Flags().IntVar(&runCorrectionRounds, "correction-rounds", 0, "Total agent invocations allowed per task (0 uses config)")
	runCmd.Flags().BoolVar(&runNoState, "no-state", false, "Disable flow snapshot persistence")
	runCmd.Flags().StringVar(&runAnswersDir, "answers-dir", "", "Directory watched for answer files (overrides config)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model to use for agent invocations (overrides config)")
}

func runFlow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunFlags(cfg)

	file, err := flow.Load(args[0])
	if err != nil {
		return fmt.Errorf("load flow file: %w", err)
	}
	tasks, err := file.BuildTasks()
	if err != nil {
		return fmt.Errorf("build tasks: %w", err)
	}

	binding, client, err := buildBinding(cfg)
	if err != nil {
		return err
	}
	if client.UsesBedrock() {
		fmt.Fprintf(os.Stderr, "routing through AWS Bedrock (%s)\n", client.Model())
	}

	opts := []orchestrator.Option{
		orchestrator.WithConcurrency(cfg.Defaults.Concurrency),
		orchestrator.WithCorrectionRounds(cfg.Defaults.CorrectionRounds),
	}
	if os.Getenv("WEAVE_DEBUG") != "" {
		opts = append(opts, orchestrator.WithDebugLog(func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}))
	}

	var store state.Store
	if cfg.State.Enabled && !runNoState {
		dbPath := cfg.State.Path
		if dbPath == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			dbPath = state.ProjectDBPath(cwd)
		}
		db, err := state.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate state database: %w", err)
		}
		store = db
		opts = append(opts, orchestrator.WithStateStore(store))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *orchestrator.FlowResult
	if runInteractive {
		result, err = runWithConsole(ctx, orchestrator.New(binding, opts...), file.Name, tasks)
	} else {
		result, err = runHeadless(ctx, binding, opts, file.Name, tasks)
	}
	if result != nil {
		printSummary(result)
	}
	if client != nil {
		in, out := client.Tracker().Total()
		fmt.Printf("tokens: %d in / %d out over %d calls\n", in, out, client.Tracker().Calls())
	}
	if err != nil {
		return err
	}
	if result != nil && result.State == models.FlowFailed {
		return fmt.Errorf("flow failed")
	}
	return nil
}

// applyRunFlags folds command-line overrides into the loaded config.
func applyRunFlags(cfg *config.Config) {
	if runConcurrency > 0 {
		cfg.Defaults.Concurrency = runConcurrency
	}
	if runCorrectionRounds > 0 {
		cfg.Defaults.CorrectionRounds = runCorrectionRounds
	}
	if runAnswersDir != "" {
		cfg.Answers.Dir = runAnswersDir
	}
	if runModel != "" {
		cfg.Anthropic.Model = runModel
	}
	answersDir = cfg.Answers.Dir
}

// answersDir is the resolved answer-file directory for this run.
var answersDir string

// runHeadless executes the flow printing colored progress lines to stdout.
func runHeadless(ctx context.Context, binding *agent.Binding, opts []orchestrator.Option, name string, tasks []*models.Task) (*orchestrator.FlowResult, error) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	opts = append(opts, orchestrator.WithEventHandler(func(e orchestrator.Event) {
		switch e.Type {
		case orchestrator.EventTaskStarted:
			fmt.Printf("%s %s\n", cyan("▸"), e.TaskID)
		case orchestrator.EventTaskResumed:
			fmt.Printf("%s %s (resumed)\n", cyan("▸"), e.TaskID)
		case orchestrator.EventTaskSucceeded:
			fmt.Printf("%s %s\n", green("✓"), e.TaskID)
		case orchestrator.EventTaskFailed:
			fmt.Printf("%s %s: %s\n", red("✗"), e.TaskID, e.Message)
		case orchestrator.EventTaskSkipped:
			fmt.Printf("%s %s: %s\n", yellow("−"), e.TaskID, e.Message)
		case orchestrator.EventTaskAwaitingInput:
			fmt.Printf("%s %s asks: %s\n", yellow("?"), e.TaskID, e.Question)
			if answersDir != "" {
				fmt.Printf("  answer by writing a file named %q to %s\n", e.TaskID, answersDir)
			}
		}
	}))

	o := orchestrator.New(binding, opts...)
	f, err := o.NewFlow(name, tasks)
	if err != nil {
		return nil, err
	}

	// Answer files let non-interactive runs still resolve questions.
	if answersDir != "" {
		watcher, err := interaction.NewAnswerWatcher(answersDir, f.Session())
		if err != nil {
			return nil, fmt.Errorf("watch answers directory: %w", err)
		}
		defer watcher.Close()
	}

	return f.Run(ctx)
}

// runWithConsole executes the flow alongside the interactive console,
// feeding flow events into the view and answers back into the session.
func runWithConsole(ctx context.Context, o *orchestrator.Orchestrator, name string, tasks []*models.Task) (*orchestrator.FlowResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// NewFlow happens before the console so event wiring can reference the
	// session. The handler is set through a late-bound variable because the
	// orchestrator is already constructed by the caller.
	f, err := o.NewFlow(name, tasks)
	if err != nil {
		return nil, err
	}

	program, _ := tui.NewConsoleProgram(
		func(taskID, answer string) error { return f.Session().SupplyInput(taskID, answer) },
		tui.AbortFunc(cancel),
	)
	o.SetEventHandler(func(e orchestrator.Event) {
		program.Send(tui.FlowEventMsg{Event: e})
	})

	var result *orchestrator.FlowResult
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		var runErr error
		result, runErr = f.Run(gctx)
		program.Send(tui.FlowDoneMsg{State: stateOf(result), Err: runErr})
		return runErr
	})
	g.Go(func() error {
		_, uiErr := program.Run()
		// Closing the console abandons the flow.
		cancel()
		return uiErr
	})

	return result, g.Wait()
}

func stateOf(r *orchestrator.FlowResult) models.FlowState {
	if r == nil {
		return models.FlowFailed
	}
	return r.State
}

// printSummary writes the final per-task outcome table.
func printSummary(result *orchestrator.FlowResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("\nflow %s: %s\n", result.FlowID, result.State)
	for _, task := range result.Tasks {
		switch task.State {
		case models.TaskStateSucceeded:
			fmt.Printf("  %s %s\n", green("✓"), task.ID)
		case models.TaskStateFailed:
			fmt.Printf("  %s %s (%s)\n", red("✗"), task.ID, task.FailureReason)
		case models.TaskStateSkipped:
			fmt.Printf("  %s %s\n", yellow("−"), task.ID)
		default:
			fmt.Printf("  ? %s (%s)\n", task.ID, task.State)
		}
	}
}
