package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/crucible-eval/crucible/internal/llm"
	"github.com/crucible-eval/crucible/internal/sandbox"
	"github.com/crucible-eval/crucible/internal/tools"
)

// scriptClient replays canned responses and records every conversation it
// was shown. Once the script runs out it repeats the last response.
type scriptClient struct {
	responses []string
	systems   []string
	calls     [][]llm.Message
	err       error
}

func (c *scriptClient) Complete(_ context.Context, system string, messages []llm.Message) (string, error) {
	c.systems = append(c.systems, system)
	c.calls = append(c.calls, append([]llm.Message(nil), messages...))
	if c.err != nil {
		return "", c.err
	}
	i := len(c.calls) - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

func newLoopFixture(t *testing.T, client llm.Client, opts LoopOpts) (*Loop, *tools.Toolbox) {
	t.Helper()
	sb, err := sandbox.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tb := tools.NewToolbox(sb, tools.Options{})
	t.Cleanup(tb.Cleanup)
	opts.Quiet = true
	return NewLoop(client, tb, opts), tb
}

func TestParseAction(t *testing.T) {
	cases := []struct {
		name     string
		response string
		wantTool string
		wantErr  bool
	}{
		{
			name:     "bare json",
			response: `{"tool": "read_file", "args": {"path": "a.txt"}}`,
			wantTool: "read_file",
		},
		{
			name:     "fenced json",
			response: "```json\n{\"tool\": \"finish_task\", \"args\": {\"summary\": \"done\"}}\n```",
			wantTool: "finish_task",
		},
		{
			name:     "prose around json",
			response: `I'll write the file now. {"tool": "write_file", "args": {"path": "a", "content": "b"}} Let me know.`,
			wantTool: "write_file",
		},
		{
			name:     "braces inside string content",
			response: `{"tool": "write_file", "args": {"path": "a.ts", "content": "function f() { return {x: 1} }"}}`,
			wantTool: "write_file",
		},
		{
			name:     "escaped quotes in content",
			response: `{"tool": "write_file", "args": {"path": "a", "content": "say \"hi\" {"}}`,
			wantTool: "write_file",
		},
		{
			name:     "no json at all",
			response: "I think I should read the file first.",
			wantErr:  true,
		},
		{
			name:     "missing tool field",
			response: `{"args": {"path": "a.txt"}}`,
			wantErr:  true,
		},
		{
			name:     "unterminated object",
			response: `{"tool": "read_file", "args": {"path": "a.txt"`,
			wantErr:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseAction(tc.response)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseAction(%q) succeeded, want error", tc.response)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAction: %v", err)
			}
			if a.Tool != tc.wantTool {
				t.Errorf("tool = %q, want %q", a.Tool, tc.wantTool)
			}
			if a.Args == nil {
				t.Error("args should never be nil after a successful parse")
			}
		})
	}
}

func TestLoopStopsAtMaxSteps(t *testing.T) {
	client := &scriptClient{responses: []string{`{"tool": "list_files", "args": {}}`}}
	loop, _ := newLoopFixture(t, client, LoopOpts{MaxSteps: 5})

	outcome, transcript := loop.Run(context.Background(), "build something", "")
	if outcome.Status != StatusMaxSteps {
		t.Fatalf("status = %s, want %s", outcome.Status, StatusMaxSteps)
	}
	if outcome.Success() {
		t.Error("max-steps outcome must not be a success")
	}
	if outcome.Steps != 5 || transcript.Len() != 5 {
		t.Errorf("steps = %d, transcript = %d, want exactly 5", outcome.Steps, transcript.Len())
	}
	if len(client.calls) != 5 {
		t.Errorf("model called %d times, want 5", len(client.calls))
	}
}

func TestLoopProtocolErrorFedBack(t *testing.T) {
	client := &scriptClient{responses: []string{
		"Sure, let me think about this first.",
		`{"tool": "finish_task", "args": {"summary": "ok"}}`,
	}}
	loop, _ := newLoopFixture(t, client, LoopOpts{MaxSteps: 5})

	outcome, transcript := loop.Run(context.Background(), "task", "")
	if outcome.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed after self-correction", outcome.Status)
	}
	if transcript.Len() != 2 {
		t.Fatalf("transcript steps = %d, want 2", transcript.Len())
	}
	first := transcript.Steps[0]
	if first.Action != nil {
		t.Error("unparseable response should record a nil action")
	}
	if first.Observation.Success {
		t.Error("protocol error observation must be a failure envelope")
	}

	// The second model call must include the corrective feedback.
	second := client.calls[1]
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || !strings.Contains(last.Content, "could not parse") {
		t.Errorf("corrective feedback missing from conversation: %+v", last)
	}
}

func TestLoopUnknownToolIsRecoverable(t *testing.T) {
	client := &scriptClient{responses: []string{
		`{"tool": "deploy_to_prod", "args": {}}`,
		`{"tool": "finish_task", "args": {"summary": "ok"}}`,
	}}
	loop, _ := newLoopFixture(t, client, LoopOpts{MaxSteps: 5})

	outcome, transcript := loop.Run(context.Background(), "task", "")
	if outcome.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", outcome.Status)
	}
	if transcript.Steps[0].Observation.Success {
		t.Error("unknown tool must produce a failure observation, not a crash")
	}
}

func TestLoopWriteThenFinish(t *testing.T) {
	client := &scriptClient{responses: []string{
		`{"tool": "write_file", "args": {"path": "app/page.tsx", "content": "export default function Page() {}"}}`,
		`{"tool": "finish_task", "args": {"summary": "counter app written"}}`,
	}}
	loop, tb := newLoopFixture(t, client, LoopOpts{MaxSteps: 5})

	outcome, transcript := loop.Run(context.Background(), "Build a counter app with increment/decrement buttons", "")
	if !outcome.Success() {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.Summary != "counter app written" {
		t.Errorf("summary = %q", outcome.Summary)
	}
	if transcript.Len() > 5 {
		t.Errorf("transcript has %d steps, want at most the budget", transcript.Len())
	}
	lastStep := transcript.Steps[transcript.Len()-1]
	if lastStep.Action == nil || lastStep.Action.Tool != "finish_task" {
		t.Error("transcript must end with finish_task")
	}
	if res := tb.ReadFile("app/page.tsx"); !res.Success {
		t.Errorf("written file missing from workspace: %s", res.Error)
	}
}

func TestLoopConstraintsInjectedOnce(t *testing.T) {
	client := &scriptClient{responses: []string{
		`{"tool": "finish_task", "args": {"summary": "done"}}`,
	}}
	loop, _ := newLoopFixture(t, client, LoopOpts{MaxSteps: 3})

	const task = "Build a counter app"
	const constraints = "The app must work fully offline"
	loop.Run(context.Background(), task, constraints)

	if len(client.systems) == 0 {
		t.Fatal("no model calls recorded")
	}
	if got := strings.Count(client.systems[0], constraints); got != 1 {
		t.Errorf("constraints appear %d times in system prompt, want 1", got)
	}
	if got := client.calls[0][0].Content; got != task {
		t.Errorf("task message = %q, want just the task text", got)
	}
	for _, m := range client.calls[0] {
		if strings.Contains(m.Content, constraints) {
			t.Errorf("constraints duplicated into conversation message %q", m.Content)
		}
	}
}

func TestLoopModelFailurePreservesTranscript(t *testing.T) {
	client := &scriptClient{err: errors.New("connection refused")}
	loop, _ := newLoopFixture(t, client, LoopOpts{MaxSteps: 5})

	outcome, transcript := loop.Run(context.Background(), "task", "")
	if outcome.Status != StatusError {
		t.Fatalf("status = %s, want %s", outcome.Status, StatusError)
	}
	if transcript == nil {
		t.Fatal("partial transcript must be preserved on model failure")
	}
	if !strings.Contains(outcome.Reason, "connection refused") {
		t.Errorf("reason = %q, want the underlying error", outcome.Reason)
	}
}

func TestSystemPromptMentionsAllTools(t *testing.T) {
	p := SystemPrompt("no blue buttons")
	for _, name := range tools.Names() {
		if !strings.Contains(p, name) {
			t.Errorf("system prompt missing tool %s", name)
		}
	}
	if !strings.Contains(p, "mock") {
		t.Error("system prompt must carry the offline/mock guidance")
	}
	if !strings.Contains(p, "no blue buttons") {
		t.Error("system prompt must include task constraints")
	}
}
