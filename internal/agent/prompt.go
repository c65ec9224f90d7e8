package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crucible-eval/crucible/internal/tools"
)

const promptPreamble = `You are an autonomous coding agent working inside an isolated project workspace. Your job is to complete the given task by invoking tools, one per turn.

On every turn respond with exactly one JSON object and nothing else:

{"tool": "<tool_name>", "args": {...}}

Rules:
- Invoke exactly one tool per turn. Do not describe an action without invoking it.
- Use relative paths; everything happens inside the workspace root.
- The app must run fully offline. Replace any external dependency (APIs, databases, auth providers, payment processors) with local mocks or in-memory stand-ins. Never add code that requires network access or real credentials.
- Run install_deps before building or starting the server.
- Verify your work (build it, or start the server) before finishing.
- When the task is done, invoke finish_task with a short summary. This is the only way to end the session.`

// SystemPrompt assembles the instructions sent on every model call: the
// fixed preamble, the tool catalog, and any task-specific constraints.
func SystemPrompt(constraints string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nAvailable tools:\n")
	for _, d := range tools.Definitions() {
		params, _ := json.Marshal(d.Parameters)
		fmt.Fprintf(&b, "\n%s: %s\n  parameters: %s\n", d.Name, d.Description, params)
	}
	if constraints != "" {
		b.WriteString("\nAdditional constraints for this task:\n")
		b.WriteString(constraints)
		b.WriteString("\n")
	}
	return b.String()
}
