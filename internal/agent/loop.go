package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/crucible-eval/crucible/internal/llm"
	"github.com/crucible-eval/crucible/internal/tools"
)

// Status is the terminal state of a loop run.
type Status string

const (
	// StatusCompleted means the model invoked finish_task.
	StatusCompleted Status = "completed"
	// StatusMaxSteps means the step budget ran out first.
	StatusMaxSteps Status = "max_steps"
	// StatusError means the model collaborator became unusable; the
	// partial transcript is still valid and gradable.
	StatusError Status = "error"
)

// Outcome summarizes one loop run.
type Outcome struct {
	Status  Status `json:"status"`
	Steps   int    `json:"steps"`
	Reason  string `json:"reason"`
	Summary string `json:"summary,omitempty"`
}

// Success reports whether the model finished the task itself.
func (o *Outcome) Success() bool { return o.Status == StatusCompleted }

// Loop drives one episode: think, act, observe, repeat.
type Loop struct {
	client    llm.Client
	toolbox   *tools.Toolbox
	maxSteps  int
	stepDelay time.Duration
	quiet     bool
}

// LoopOpts configures a Loop. MaxSteps must be positive.
type LoopOpts struct {
	MaxSteps  int
	StepDelay time.Duration
	Quiet     bool
}

func NewLoop(client llm.Client, toolbox *tools.Toolbox, opts LoopOpts) *Loop {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 50
	}
	return &Loop{
		client:    client,
		toolbox:   toolbox,
		maxSteps:  opts.MaxSteps,
		stepDelay: opts.StepDelay,
		quiet:     opts.Quiet,
	}
}

// Run executes the loop until finish_task, the step budget, or an
// unrecoverable model error. The transcript is written incrementally, so
// whatever happened before a failure is preserved for grading. Model
// protocol errors (unparseable responses, unknown tools) are observations
// fed back to the model, not failures.
func (l *Loop) Run(ctx context.Context, task, constraints string) (*Outcome, *Transcript) {
	system := SystemPrompt(constraints)
	transcript := NewTranscript(task, constraints)
	messages := []llm.Message{{Role: llm.RoleUser, Content: task}}

	for step := 1; step <= l.maxSteps; step++ {
		if step > 1 && l.stepDelay > 0 {
			time.Sleep(l.stepDelay)
		}
		l.logf("step %d/%d: requesting next action", step, l.maxSteps)

		response, err := l.client.Complete(ctx, system, messages)
		if err != nil {
			log.Printf("warning: model call failed on step %d: %v", step, err)
			return &Outcome{
				Status: StatusError,
				Steps:  transcript.Len(),
				Reason: fmt.Sprintf("model call failed: %v", err),
			}, transcript
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: response})

		action, perr := ParseAction(response)
		var obs tools.Result
		if perr != nil {
			obs = tools.Result{
				Success: false,
				Error:   fmt.Sprintf("could not parse your response as an action: %v. Respond with a single JSON object: {\"tool\": \"<name>\", \"args\": {...}}", perr),
			}
			transcript.Append(response, nil, obs)
		} else {
			l.logf("step %d/%d: %s", step, l.maxSteps, action.Tool)
			obs = l.toolbox.Dispatch(ctx, action.Tool, action.Args)
			transcript.Append(response, action, obs)
		}
		messages = append(messages, llm.Message{Role: llm.RoleTool, Content: encodeObservation(obs)})

		if l.toolbox.Done() {
			l.logf("task completed in %d steps", transcript.Len())
			return &Outcome{
				Status:  StatusCompleted,
				Steps:   transcript.Len(),
				Reason:  "agent invoked finish_task",
				Summary: l.toolbox.Summary(),
			}, transcript
		}
	}

	l.logf("stopping: step budget of %d exhausted", l.maxSteps)
	return &Outcome{
		Status: StatusMaxSteps,
		Steps:  transcript.Len(),
		Reason: fmt.Sprintf("reached max steps (%d) without finish_task", l.maxSteps),
	}, transcript
}

func (l *Loop) logf(format string, args ...any) {
	if !l.quiet {
		log.Printf(format, args...)
	}
}

func encodeObservation(r tools.Result) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"observation encoding failed: %v"}`, err)
	}
	return string(data)
}
