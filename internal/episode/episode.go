// Package episode coordinates one end-to-end evaluation: workspace from
// template, agent loop to completion, grading pipeline, persisted results.
package episode

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/crucible-eval/crucible/internal/agent"
	"github.com/crucible-eval/crucible/internal/config"
	"github.com/crucible-eval/crucible/internal/grader"
	"github.com/crucible-eval/crucible/internal/llm"
	"github.com/crucible-eval/crucible/internal/result"
	"github.com/crucible-eval/crucible/internal/sandbox"
	"github.com/crucible-eval/crucible/internal/tools"
)

// Episode describes one evaluation run. Fields are fixed before Run and
// never change while it executes.
type Episode struct {
	ID          string
	AppName     string
	Task        string
	Constraints string
	Rubric      string
	Model       string
	Template    string
	MaxSteps    int
	StepDelay   time.Duration
	// ServerPort overrides the configured dev-server port. Parallel
	// episodes each need their own.
	ServerPort int
}

// NewEpisode assigns a fresh ID to an episode definition.
func NewEpisode(appName, task, constraints, rubric, model, template string) *Episode {
	return &Episode{
		ID:          uuid.NewString()[:8],
		AppName:     appName,
		Task:        task,
		Constraints: constraints,
		Rubric:      rubric,
		Model:       model,
		Template:    template,
	}
}

// Opts adjusts coordinator behavior.
type Opts struct {
	Quiet       bool
	SkipGrading bool
}

// Coordinator wires the agent loop into the grading pipeline and persists
// everything either produces.
type Coordinator struct {
	cfg         *config.Config
	agentClient llm.Client
	judgeClient llm.Client
	opts        Opts
}

func NewCoordinator(cfg *config.Config, agentClient, judgeClient llm.Client, opts Opts) *Coordinator {
	return &Coordinator{cfg: cfg, agentClient: agentClient, judgeClient: judgeClient, opts: opts}
}

// Run executes one episode and persists its record, grade and transcript
// under runDir. Grading runs even when the agent loop failed: a workspace
// the agent abandoned may still partially build, and every episode must
// leave a result behind. The returned error covers setup problems only;
// agent and grading failures are reported through the record.
func (c *Coordinator) Run(ctx context.Context, ep *Episode, runDir string) (*result.Record, error) {
	started := time.Now().UTC()
	episodeDir := result.EpisodeDir(runDir, ep.Model, ep.ID)

	workspaceDir := filepath.Join(episodeDir, "workspace")
	templateDir := filepath.Join(c.cfg.TemplatesDir, ep.Template)
	if err := CopyTemplate(templateDir, workspaceDir); err != nil {
		return nil, fmt.Errorf("preparing workspace: %w", err)
	}

	sb, err := sandbox.New(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("preparing sandbox: %w", err)
	}
	serverPort := ep.ServerPort
	if serverPort == 0 {
		serverPort = c.cfg.Grading.ServerPort
	}
	tb := tools.NewToolbox(sb, tools.Options{
		InstallCmd:     c.cfg.Grading.InstallCmd,
		ServerCmd:      c.cfg.Grading.ServerCmd,
		ServerPort:     serverPort,
		CommandTimeout: time.Duration(c.cfg.Agent.CommandTimeoutS) * time.Second,
		InstallTimeout: time.Duration(c.cfg.Agent.InstallTimeoutS) * time.Second,
		ServerWait:     time.Duration(c.cfg.Grading.ServerWaitS) * time.Second,
		AgentLogPath:   filepath.Join(episodeDir, "agent.log"),
		SystemLogPath:  filepath.Join(episodeDir, "system.log"),
	})
	defer tb.Cleanup()

	maxSteps := ep.MaxSteps
	if maxSteps <= 0 {
		maxSteps = c.cfg.Agent.MaxSteps
	}
	stepDelay := ep.StepDelay
	if stepDelay == 0 {
		stepDelay = time.Duration(c.cfg.Agent.StepDelaySeconds) * time.Second
	}
	loop := agent.NewLoop(c.agentClient, tb, agent.LoopOpts{
		MaxSteps:  maxSteps,
		StepDelay: stepDelay,
		Quiet:     c.opts.Quiet,
	})

	outcome, transcript := loop.Run(ctx, ep.Task, ep.Constraints)
	if err := result.WriteTranscript(episodeDir, transcript); err != nil {
		log.Printf("warning: writing transcript for %s: %v", ep.ID, err)
	}

	var grade *grader.Grade
	if !c.opts.SkipGrading {
		grade = c.grade(ctx, sb, tb, workspaceDir, ep, serverPort)
		if err := result.WriteGrade(episodeDir, grade); err != nil {
			log.Printf("warning: writing grade for %s: %v", ep.ID, err)
		}
	}

	rec := &result.Record{
		EpisodeID:   ep.ID,
		Model:       ep.Model,
		AppName:     ep.AppName,
		Task:        ep.Task,
		Template:    ep.Template,
		Steps:       outcome.Steps,
		AgentStatus: string(outcome.Status),
		AgentReason: outcome.Reason,
		Success:     outcome.Success(),
		DurationS:   time.Since(started).Seconds(),
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	}
	if grade != nil {
		rec.OverallScore = grade.OverallScore
		rec.OverallPass = grade.OverallPass
	}
	if err := result.WriteRecord(episodeDir, rec); err != nil {
		return rec, fmt.Errorf("writing record: %w", err)
	}
	return rec, nil
}

func (c *Coordinator) grade(ctx context.Context, sb *sandbox.Sandbox, tb *tools.Toolbox, workspaceDir string, ep *Episode, serverPort int) *grader.Grade {
	checks := grader.NewChecks(sb, tb, grader.CheckOpts{
		BuildCmd:     c.cfg.Grading.BuildCmd,
		BuildTimeout: time.Duration(c.cfg.Grading.BuildTimeoutS) * time.Second,
		ServerCmd:    c.cfg.Grading.ServerCmd,
		ServerPort:   serverPort,
		ServerWait:   time.Duration(c.cfg.Grading.ServerWaitS) * time.Second,
	})
	verdict := checks.Run(ctx)

	// The judge sees the full requirements, CLI additions included; the
	// agent loop gets constraints separately via its system prompt.
	judgeTask := ep.Task
	if ep.Constraints != "" {
		judgeTask = ep.Task + "\n\n" + ep.Constraints
	}
	judge := grader.NewJudge(c.judgeClient, c.cfg.Grading.JudgeModel)
	judgeResult := judge.Evaluate(ctx, workspaceDir, judgeTask, ep.Rubric)

	return grader.ComputeGrade(verdict, judgeResult, c.cfg.Grading.Weights, c.cfg.Grading.JudgeThreshold)
}
