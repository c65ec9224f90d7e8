// Package agent runs the tool-calling loop for one episode: it asks the
// model for the next action, dispatches it, feeds the observation back,
// and stops when the model declares the task finished or the step budget
// runs out.
package agent

import (
	"encoding/json"
	"fmt"

	"github.com/crucible-eval/crucible/internal/llm"
)

// Action is one tool invocation proposed by the model.
type Action struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ParseAction extracts an Action from a model response. Models wrap JSON
// in prose and code fences in provider-specific ways, so the parser takes
// the first balanced JSON object found in the text rather than requiring
// the whole response to be JSON.
func ParseAction(response string) (*Action, error) {
	raw, err := llm.ExtractJSON(response)
	if err != nil {
		return nil, err
	}
	var a Action
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("response is not a valid action: %w", err)
	}
	if a.Tool == "" {
		return nil, fmt.Errorf("action is missing the %q field", "tool")
	}
	if a.Args == nil {
		a.Args = map[string]any{}
	}
	return &a, nil
}
