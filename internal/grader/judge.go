package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crucible-eval/crucible/internal/llm"
)

const judgeSystemPrompt = `You are a Senior QA Engineer and Code Reviewer evaluating a web application built by an AI agent.

You will be given:
1. The original task prompt (what the agent was asked to build)
2. A grading rubric (evaluation criteria)
3. The source code the agent produced

Evaluate the code against the rubric and provide a detailed assessment.

CRITICAL: You must respond with valid JSON only. No markdown, no code blocks, just pure JSON.

Response format:
{
  "score": <number 0-100>,
  "reasoning": "<detailed explanation of your evaluation>",
  "breakdown": {
    "<criterion1>": <score 0-100>,
    "<criterion2>": <score 0-100>
  }
}`

// JudgeResult is the rubric judge's assessment of one workspace.
type JudgeResult struct {
	Score          float64            `json:"score"`
	Reasoning      string             `json:"reasoning"`
	Breakdown      map[string]float64 `json:"breakdown,omitempty"`
	FilesEvaluated int                `json:"files_evaluated"`
	Model          string             `json:"model"`
	Error          string             `json:"error,omitempty"`
}

// Judge scores a workspace against a rubric using an LLM. Judge failures
// degrade to a zero score with diagnostics rather than aborting grading.
type Judge struct {
	client llm.Client
	model  string
}

func NewJudge(client llm.Client, model string) *Judge {
	return &Judge{client: client, model: model}
}

var (
	sourceExtensions = map[string]bool{
		".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".css": true,
	}
	ignoreDirs = map[string]bool{
		"node_modules": true, ".next": true, ".git": true,
		"dist": true, "build": true, "out": true,
	}
	ignoreFiles = map[string]bool{
		"package.json": true, "package-lock.json": true, "pnpm-lock.yaml": true,
		"tsconfig.json": true, "next.config.js": true, "next.config.ts": true,
		"tailwind.config.js": true, "tailwind.config.ts": true,
		"postcss.config.js": true, "postcss.config.mjs": true,
		"eslint.config.js": true, "eslint.config.mjs": true,
	}
)

// Evaluate discovers the workspace's source files, assembles them into a
// review context and asks the judge model for a rubric score.
func (j *Judge) Evaluate(ctx context.Context, workspaceDir, prompt, rubric string) *JudgeResult {
	files, err := discoverSourceFiles(workspaceDir)
	if err != nil {
		return &JudgeResult{Model: j.model, Error: fmt.Sprintf("discovering source files: %v", err), Reasoning: "workspace could not be scanned"}
	}
	if len(files) == 0 {
		return &JudgeResult{Model: j.model, Reasoning: "no source files found in workspace"}
	}

	codeContext := assembleCodeContext(workspaceDir, files)
	userMessage := fmt.Sprintf(`# Task Prompt
%s

# Grading Rubric
%s

# Source Code

%s

Evaluate the code based on the rubric above. Respond with JSON only.`, prompt, rubric, codeContext)

	response, err := j.client.Complete(ctx, judgeSystemPrompt, []llm.Message{{Role: llm.RoleUser, Content: userMessage}})
	if err != nil {
		log.Printf("warning: judge call failed: %v", err)
		return &JudgeResult{
			Model:          j.model,
			FilesEvaluated: len(files),
			Error:          fmt.Sprintf("judge call failed: %v", err),
			Reasoning:      "judge model unreachable",
		}
	}

	result := parseJudgeResponse(response)
	result.Model = j.model
	result.FilesEvaluated = len(files)
	return result
}

func parseJudgeResponse(response string) *JudgeResult {
	raw, err := llm.ExtractJSON(response)
	if err != nil {
		return &JudgeResult{Error: "judge response was not JSON", Reasoning: response}
	}
	var parsed struct {
		Score     float64            `json:"score"`
		Reasoning string             `json:"reasoning"`
		Breakdown map[string]float64 `json:"breakdown"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return &JudgeResult{Error: fmt.Sprintf("parsing judge response: %v", err), Reasoning: response}
	}
	return &JudgeResult{
		Score:     clampScore(parsed.Score),
		Reasoning: parsed.Reasoning,
		Breakdown: parsed.Breakdown,
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// discoverSourceFiles walks the workspace collecting reviewable source
// files, skipping dependency and build-output trees plus scaffold config
// files the agent did not write.
func discoverSourceFiles(workspaceDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(workspaceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(d.Name())] || ignoreFiles[d.Name()] {
			return nil
		}
		rel, err := filepath.Rel(workspaceDir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func assembleCodeContext(workspaceDir string, files []string) string {
	var b strings.Builder
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(workspaceDir, rel))
		if err != nil {
			fmt.Fprintf(&b, "=== %s ===\n[error reading file: %v]\n\n", rel, err)
			continue
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", rel, data)
	}
	return b.String()
}
