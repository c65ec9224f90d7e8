package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crucible-eval/crucible/internal/config"
	"github.com/crucible-eval/crucible/internal/dataset"
	"github.com/crucible-eval/crucible/internal/episode"
	"github.com/crucible-eval/crucible/internal/llm"
	"github.com/crucible-eval/crucible/internal/report"
	"github.com/crucible-eval/crucible/internal/result"
)

var (
	flagData        string
	flagRowIndex    int
	flagTask        string
	flagRubric      string
	flagAppName     string
	flagModel       string
	flagTemplate    string
	flagMaxSteps    int
	flagStepDelay   int
	flagQuiet       bool
	flagSkipGrading bool
	flagParallel    int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task words...]",
		Short: "Run evaluation episodes",
		RunE:  runEpisodes,
	}
	cmd.Flags().StringVar(&flagData, "data", "", "CSV dataset of tasks")
	cmd.Flags().IntVar(&flagRowIndex, "row-index", -1, "run a single dataset row (default: all rows)")
	cmd.Flags().StringVar(&flagTask, "task", "", "run a single ad-hoc task instead of a dataset")
	cmd.Flags().StringVar(&flagRubric, "rubric", "", "rubric for an ad-hoc task")
	cmd.Flags().StringVar(&flagAppName, "app-name", "ad-hoc", "app name for an ad-hoc task")
	cmd.Flags().StringVar(&flagModel, "model", "", "model to evaluate (default: config default_model)")
	cmd.Flags().StringVar(&flagTemplate, "template", "default", "project template name")
	cmd.Flags().IntVar(&flagMaxSteps, "max-steps", 0, "override agent step budget")
	cmd.Flags().IntVar(&flagStepDelay, "step-delay", 0, "seconds to wait between agent steps")
	cmd.Flags().BoolVar(&flagQuiet, "quiet", false, "suppress per-step progress output")
	cmd.Flags().BoolVar(&flagSkipGrading, "skip-grading", false, "run the agent without grading")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent episodes")
	return cmd
}

func runEpisodes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	taskText := flagTask
	if taskText == "" && len(args) > 0 {
		taskText = strings.Join(args, " ")
	}
	tasks, err := selectTasks(flagData, flagRowIndex, taskText, flagRubric, flagAppName)
	if err != nil {
		return err
	}

	modelID := flagModel
	if modelID == "" {
		modelID = cfg.DefaultModel
	}
	agentClient, err := newModelClient(cfg, modelID)
	if err != nil {
		return err
	}
	var judgeClient llm.Client
	if !flagSkipGrading {
		judgeClient, err = newModelClient(cfg, cfg.Grading.JudgeModel)
		if err != nil {
			return err
		}
	}

	runDir, err := result.CreateRunDir(cfg.RunsDir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	index, err := result.OpenIndex(filepath.Join(cfg.RunsDir, "index.db"))
	if err != nil {
		return err
	}
	defer index.Close()

	coord := episode.NewCoordinator(cfg, agentClient, judgeClient, episode.Opts{
		Quiet:       flagQuiet,
		SkipGrading: flagSkipGrading,
	})

	ctx := context.Background()
	runOne := func(i int, task dataset.Task) error {
		fmt.Printf("Episode %d/%d: %s × %s\n", i+1, len(tasks), modelID, task.AppName)
		ep := episode.NewEpisode(task.AppName, task.Prompt, task.Constraints, task.Rubric, modelID, flagTemplate)
		ep.MaxSteps = flagMaxSteps
		ep.StepDelay = time.Duration(flagStepDelay) * time.Second
		if flagParallel > 1 {
			// Each concurrent episode needs its own dev-server port.
			ep.ServerPort = cfg.Grading.ServerPort + i
		}

		rec, err := coord.Run(ctx, ep, runDir)
		if err != nil {
			return fmt.Errorf("episode %s: %w", task.AppName, err)
		}
		fmt.Printf("  %s: %s (%d steps, score %.1f, pass=%v)\n",
			task.AppName, rec.AgentStatus, rec.Steps, rec.OverallScore, rec.OverallPass)
		if err := index.Add(rec, result.EpisodeDir(runDir, rec.Model, rec.EpisodeID)); err != nil {
			fmt.Printf("  warning: %v\n", err)
		}
		return nil
	}

	if flagParallel > 1 {
		jobs := make([]episode.Job, len(tasks))
		for i, task := range tasks {
			i, task := i, task
			jobs[i] = func() error { return runOne(i, task) }
		}
		for _, err := range episode.RunPool(flagParallel, jobs) {
			fmt.Printf("  ERROR: %v\n", err)
		}
	} else {
		for i, task := range tasks {
			if err := runOne(i, task); err != nil {
				fmt.Printf("  ERROR: %v\n", err)
			}
		}
	}

	fmt.Println("\n--- Results ---")
	return report.Generate(runDir, "table", os.Stdout)
}

// selectTasks picks the episode tasks: every dataset row, one row by
// index, or a single ad-hoc task from flags.
func selectTasks(dataPath string, rowIndex int, taskText, rubric, appName string) ([]dataset.Task, error) {
	if dataPath != "" && taskText != "" {
		return nil, fmt.Errorf("--data and --task are mutually exclusive")
	}
	if dataPath == "" {
		if taskText == "" {
			return nil, fmt.Errorf("either --data or --task is required")
		}
		return []dataset.Task{{AppName: appName, Prompt: taskText, Rubric: rubric}}, nil
	}
	if rowIndex >= 0 {
		task, err := dataset.Row(dataPath, rowIndex)
		if err != nil {
			return nil, err
		}
		return []dataset.Task{*task}, nil
	}
	return dataset.Load(dataPath)
}

func newModelClient(cfg *config.Config, modelID string) (llm.Client, error) {
	m, ok := cfg.Models[modelID]
	if !ok {
		return nil, fmt.Errorf("model %q not in config", modelID)
	}
	return llm.New(modelID, m)
}
