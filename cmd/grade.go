package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crucible-eval/crucible/internal/config"
	"github.com/crucible-eval/crucible/internal/grader"
	"github.com/crucible-eval/crucible/internal/sandbox"
	"github.com/crucible-eval/crucible/internal/tools"
)

var (
	flagGradePrompt string
	flagGradeRubric string
)

func newGradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade [workspace-dir]",
		Short: "Grade an existing workspace",
		Long:  "Run the automated checks (install, build, server health) and the rubric judge against a workspace directory, then print the grade as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			workspaceDir := args[0]
			sb, err := sandbox.New(workspaceDir)
			if err != nil {
				return fmt.Errorf("opening workspace: %w", err)
			}
			tb := tools.NewToolbox(sb, tools.Options{
				InstallCmd:     cfg.Grading.InstallCmd,
				ServerCmd:      cfg.Grading.ServerCmd,
				ServerPort:     cfg.Grading.ServerPort,
				InstallTimeout: time.Duration(cfg.Agent.InstallTimeoutS) * time.Second,
				ServerWait:     time.Duration(cfg.Grading.ServerWaitS) * time.Second,
			})
			defer tb.Cleanup()

			ctx := context.Background()
			checks := grader.NewChecks(sb, tb, grader.CheckOpts{
				BuildCmd:     cfg.Grading.BuildCmd,
				BuildTimeout: time.Duration(cfg.Grading.BuildTimeoutS) * time.Second,
				ServerCmd:    cfg.Grading.ServerCmd,
				ServerPort:   cfg.Grading.ServerPort,
				ServerWait:   time.Duration(cfg.Grading.ServerWaitS) * time.Second,
			})
			verdict := checks.Run(ctx)

			judgeClient, err := newModelClient(cfg, cfg.Grading.JudgeModel)
			if err != nil {
				return err
			}
			judge := grader.NewJudge(judgeClient, cfg.Grading.JudgeModel)
			judgeResult := judge.Evaluate(ctx, sb.WorkspaceDir, flagGradePrompt, flagGradeRubric)

			grade := grader.ComputeGrade(verdict, judgeResult, cfg.Grading.Weights, cfg.Grading.JudgeThreshold)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(grade)
		},
	}
	cmd.Flags().StringVar(&flagGradePrompt, "prompt", "", "task prompt the workspace was built against")
	cmd.Flags().StringVar(&flagGradeRubric, "rubric", "", "rubric for the judge")
	return cmd
}
