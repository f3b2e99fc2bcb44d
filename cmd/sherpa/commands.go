package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/sherpa/internal/complexity"
	"github.com/cloud-shuttle/sherpa/internal/config"
	"github.com/cloud-shuttle/sherpa/internal/engine"
	"github.com/cloud-shuttle/sherpa/internal/executor"
	"github.com/cloud-shuttle/sherpa/internal/history"
	"github.com/cloud-shuttle/sherpa/internal/knowledge"
	"github.com/cloud-shuttle/sherpa/internal/plan"
	"github.com/cloud-shuttle/sherpa/internal/recovery"
	"github.com/cloud-shuttle/sherpa/pkg/types"
)

const defaultConfigYAML = `# Sherpa project configuration
# Environment variables (SHERPA_*) override these values.

# engine_base_url: http://localhost:11434
# engine_api_key: ""
# engine_model: qwen2.5-coder:latest
# engine_timeout: 5m

# task_delay: 2s
# max_plan_steps: 10
# unattended: false
# verbose: false
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Sherpa in the current project",
		Long: `Initialize Sherpa in the current project.

Creates a .sherpa directory holding the project config, the learned error
knowledge store, and the SQLite run-history database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}

			stateDir := filepath.Join(dir, config.StateDirName)
			if _, err := os.Stat(stateDir); err == nil {
				return fmt.Errorf("already initialized in %s", stateDir)
			}

			if err := os.MkdirAll(stateDir, 0755); err != nil {
				return fmt.Errorf("creating %s directory: %w", config.StateDirName, err)
			}

			configPath := filepath.Join(stateDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0644); err != nil {
				return fmt.Errorf("creating config file: %w", err)
			}

			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			store, err := history.Open(cfg.HistoryFile())
			if err != nil {
				return fmt.Errorf("creating history database: %w", err)
			}
			defer store.Close()

			if err := store.InitSchema(); err != nil {
				return fmt.Errorf("initializing history schema: %w", err)
			}

			fmt.Printf("🧭 Initialized Sherpa in %s\n", stateDir)
			fmt.Println("\nNext steps:")
			fmt.Println("  sherpa analyze \"refactor the auth module and add tests\"")
			fmt.Println("  sherpa run \"refactor the auth module and add tests\"")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var (
		unattended     bool
		verbose        bool
		maxSteps       int
		projectContext string
	)

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Plan and execute a development goal",
		Long: `Plan and execute a development goal.

The goal is scored for complexity. Complex goals are decomposed into an
ordered plan by the engine; simple goals run as a single step. Each step is
executed sequentially, and on failure you choose retry, skip, or stop.
Resolutions that work are stored and suggested for similar future failures.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProject()
			if err != nil {
				return err
			}
			if unattended {
				cfg.Unattended = true
			}
			if verbose {
				cfg.Verbose = true
			}
			if maxSteps > 0 {
				cfg.MaxPlanSteps = maxSteps
			}

			goal := strings.Join(args, " ")
			return runGoal(cfg, goal, projectContext)
		},
	}

	cmd.Flags().BoolVar(&unattended, "unattended", false, "retry failed tasks once without prompting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	cmd.Flags().IntVar(&maxSteps, "steps", 0, "maximum plan steps (overrides config)")
	cmd.Flags().StringVar(&projectContext, "context", "", "extra project context included in every task prompt")
	return cmd
}

func runGoal(cfg *config.Config, goal, projectContext string) error {
	verdict := complexity.Analyze(goal)
	fmt.Printf("Complexity: %s (score %d)\n", coloredLevel(verdict.Level), verdict.Score)

	client := engine.NewClient(engine.Config{
		BaseURL: cfg.EngineBaseURL,
		APIKey:  cfg.EngineAPIKey,
		Model:   cfg.EngineModel,
		Timeout: cfg.EngineTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plans := plan.NewManager()
	plans.Create(goal)

	if complexity.ShouldSuggestPlan(verdict) {
		fmt.Println("Decomposing goal into a plan...")
		steps, err := plan.DecomposeGoal(ctx, client, goal, cfg.MaxPlanSteps)
		if err != nil {
			return fmt.Errorf("decomposing goal: %w", err)
		}
		for _, step := range steps {
			plans.AddTask(step)
		}
	} else {
		plans.AddTask(goal)
	}

	fmt.Println()
	fmt.Println(plans.Render())

	knowledgeStore := knowledge.Open(cfg.KnowledgeFile())
	recorder := recovery.NewRecorder(knowledgeStore)
	recorder.SetVerbose(cfg.Verbose)

	var runRecorder executor.RunRecorder
	historyStore, err := history.Open(cfg.HistoryFile())
	if err == nil {
		defer historyStore.Close()
		if err := historyStore.InitSchema(); err == nil {
			runRecorder = historyStore
		}
	}

	var prompter executor.DecisionProvider
	if cfg.Unattended {
		prompter = &executor.StaticPrompter{Decision: executor.DecisionRetry}
	}

	session := executor.NewSession(&executor.SessionConfig{
		Plans:     plans,
		Engine:    client,
		Prompter:  prompter,
		Recovery:  recorder,
		History:   runRecorder,
		TaskDelay: cfg.TaskDelay,
		Verbose:   cfg.Verbose,
	})

	// First interrupt stops cleanly after the current task, second kills
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nStopping after the current task (interrupt again to abort)...")
		session.Stop()
		<-sigCh
		cancel()
	}()

	result := session.ExecutePlan(ctx, projectContext)

	fmt.Println()
	fmt.Println(plans.Render())
	if result.Success {
		color.Green("%s", result.Message)
		return nil
	}
	color.Red("%s", result.Message)
	return fmt.Errorf("plan did not complete")
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <request>",
		Short: "Score a request's complexity without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.Join(args, " ")
			verdict := complexity.Analyze(request)

			fmt.Printf("Level:   %s\n", coloredLevel(verdict.Level))
			fmt.Printf("Score:   %d\n", verdict.Score)
			if verdict.Reasoning != "" {
				fmt.Printf("Signals: %s\n", verdict.Reasoning)
			}
			if complexity.ShouldSuggestPlan(verdict) {
				fmt.Println("\nThis request is complex enough to benefit from a plan:")
				fmt.Printf("  sherpa run %q\n", request)
			}
			return nil
		},
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <goal>",
		Short: "Decompose a goal into a plan without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProject()
			if err != nil {
				return err
			}

			client := engine.NewClient(engine.Config{
				BaseURL: cfg.EngineBaseURL,
				APIKey:  cfg.EngineAPIKey,
				Model:   cfg.EngineModel,
				Timeout: cfg.EngineTimeout,
			})

			goal := strings.Join(args, " ")
			steps, err := plan.DecomposeGoal(context.Background(), client, goal, cfg.MaxPlanSteps)
			if err != nil {
				return fmt.Errorf("decomposing goal: %w", err)
			}

			plans := plan.NewManager()
			plans.Create(goal)
			for _, step := range steps {
				plans.AddTask(step)
			}
			fmt.Println(plans.Render())
			return nil
		},
	}
}

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect the learned error knowledge store",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List learned error patterns",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadProject()
				if err != nil {
					return err
				}

				store := knowledge.Open(cfg.KnowledgeFile())
				patterns := store.Patterns()
				if len(patterns) == 0 {
					fmt.Println("No learned patterns yet.")
					return nil
				}

				for _, p := range patterns {
					fmt.Printf("%s  ", color.CyanString(p.Signature))
					fmt.Printf("seen %d, %s / %s\n",
						p.SuccessCount+p.FailureCount,
						color.GreenString("%d resolved", p.SuccessCount),
						color.RedString("%d failed", p.FailureCount))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "suggest <error message>",
			Short: "Show learned solutions for an error message",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadProject()
				if err != nil {
					return err
				}

				store := knowledge.Open(cfg.KnowledgeFile())
				recorder := recovery.NewRecorder(store)

				message := strings.Join(args, " ")
				rec := recorder.RecordFailure("", message)
				solutions := store.GetLearnedSolutions(rec)
				if len(solutions) == 0 {
					fmt.Printf("No learned solutions for [%s] errors like this.\n", rec.Type)
					return nil
				}

				fmt.Printf("Learned solutions for [%s]:\n", rec.Type)
				for i, s := range solutions {
					fmt.Printf("  %d. %s (used %d times, confidence %.0f%%)\n",
						i+1, s.Solution, s.UsageCount, s.Confidence*100)
				}
				return nil
			},
		},
	)

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	var showTasks bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past plan runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProject()
			if err != nil {
				return err
			}

			store, err := history.Open(cfg.HistoryFile())
			if err != nil {
				return fmt.Errorf("opening history: %w", err)
			}
			defer store.Close()
			if err := store.InitSchema(); err != nil {
				return fmt.Errorf("initializing history schema: %w", err)
			}

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			for _, r := range runs {
				mark := color.RedString("✗")
				if r.Success {
					mark = color.GreenString("✓")
				}
				fmt.Printf("%s %s  %s  %d/%d completed, %d failed, %d skipped\n",
					mark, r.StartedAt.Format("2006-01-02 15:04"), r.Goal,
					r.Completed, r.Total, r.Failed, r.Skipped)

				if showTasks {
					tasks, err := store.RunTasks(r.ID)
					if err != nil {
						return err
					}
					for _, t := range tasks {
						line := fmt.Sprintf("    %d. [%s] %s", t.Number, t.Status, t.Description)
						if t.Error != "" {
							line += " (" + t.Error + ")"
						}
						fmt.Println(line)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	cmd.Flags().BoolVar(&showTasks, "tasks", false, "show each run's task outcomes")
	return cmd
}

func coloredLevel(level types.ComplexityLevel) string {
	switch level {
	case types.ComplexitySimple:
		return color.GreenString(string(level))
	case types.ComplexityModerate:
		return color.YellowString(string(level))
	default:
		return color.RedString(string(level))
	}
}
