package agent

import (
	"time"

	"github.com/crucible-eval/crucible/internal/tools"
)

// Step is one (action, observation) pair. Action is nil when the model's
// response could not be parsed into one; Raw always carries the response
// text as received.
type Step struct {
	Index       int          `json:"index"`
	Raw         string       `json:"raw,omitempty"`
	Action      *Action      `json:"action,omitempty"`
	Observation tools.Result `json:"observation"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Transcript records one episode's conversation: the initial task context
// followed by every step in order. Steps are appended and never mutated.
type Transcript struct {
	Task        string `json:"task"`
	Constraints string `json:"constraints,omitempty"`
	Steps       []Step `json:"steps"`
}

func NewTranscript(task, constraints string) *Transcript {
	return &Transcript{Task: task, Constraints: constraints, Steps: []Step{}}
}

func (tr *Transcript) Append(raw string, action *Action, obs tools.Result) {
	tr.Steps = append(tr.Steps, Step{
		Index:       len(tr.Steps) + 1,
		Raw:         raw,
		Action:      action,
		Observation: obs,
		Timestamp:   time.Now().UTC(),
	})
}

// Len returns the number of recorded steps.
func (tr *Transcript) Len() int { return len(tr.Steps) }
