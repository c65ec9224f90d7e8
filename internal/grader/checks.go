// Package grader evaluates a finished workspace: a fixed pipeline of
// automated checks (install, build, server health), a rubric-based LLM
// judge, and a pure combination rule producing the overall grade.
package grader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crucible-eval/crucible/internal/sandbox"
	"github.com/crucible-eval/crucible/internal/tools"
)

// Check statuses. A stage that never ran because an earlier stage failed
// is recorded as skipped, never silently absent.
const (
	CheckPassed  = "passed"
	CheckFailed  = "failed"
	CheckSkipped = "skipped"
)

// CheckResult is one automated-check outcome.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

func (c CheckResult) Passed() bool { return c.Status == CheckPassed }

// Verdict aggregates the three automated checks.
type Verdict struct {
	Install      CheckResult `json:"install"`
	Build        CheckResult `json:"build"`
	ServerHealth CheckResult `json:"server_health"`
	AllPass      bool        `json:"all_pass"`
}

// Checks runs the automated pipeline against one workspace.
type Checks struct {
	sb   *sandbox.Sandbox
	tb   *tools.Toolbox
	opts CheckOpts
}

// CheckOpts configures the automated pipeline. Zero values get the same
// defaults the agent-facing tools use.
type CheckOpts struct {
	BuildCmd     string
	BuildTimeout time.Duration
	ServerCmd    string
	ServerPort   int
	ServerWait   time.Duration
}

func NewChecks(sb *sandbox.Sandbox, tb *tools.Toolbox, opts CheckOpts) *Checks {
	if opts.BuildCmd == "" {
		opts.BuildCmd = "pnpm build"
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = 10 * time.Minute
	}
	if opts.ServerCmd == "" {
		opts.ServerCmd = "pnpm dev"
	}
	if opts.ServerPort == 0 {
		opts.ServerPort = 3000
	}
	if opts.ServerWait <= 0 {
		opts.ServerWait = 30 * time.Second
	}
	return &Checks{sb: sb, tb: tb, opts: opts}
}

// Run executes install, build and server health in order. Each stage
// short-circuits the later ones on failure, and every stage always has a
// recorded result.
func (c *Checks) Run(ctx context.Context) *Verdict {
	v := &Verdict{}
	v.Install = c.runInstall(ctx)
	if !v.Install.Passed() {
		v.Build = CheckResult{Name: "build", Status: CheckSkipped, Detail: "install did not pass"}
		v.ServerHealth = CheckResult{Name: "server_health", Status: CheckSkipped, Detail: "install did not pass"}
		return v
	}
	v.Build = c.runBuild(ctx)
	if !v.Build.Passed() {
		v.ServerHealth = CheckResult{Name: "server_health", Status: CheckSkipped, Detail: "build did not pass"}
		return v
	}
	v.ServerHealth = c.runServerHealth(ctx)
	v.AllPass = v.Install.Passed() && v.Build.Passed() && v.ServerHealth.Passed()
	return v
}

func (c *Checks) runInstall(ctx context.Context) CheckResult {
	start := time.Now()
	res := c.tb.InstallDeps(ctx)
	cr := CheckResult{Name: "install", Duration: time.Since(start)}
	if res.Success {
		cr.Status = CheckPassed
		return cr
	}
	cr.Status = CheckFailed
	cr.Detail = res.Error
	return cr
}

func (c *Checks) runBuild(ctx context.Context) CheckResult {
	start := time.Now()
	res, err := c.sb.Execute(ctx, c.opts.BuildCmd, sandbox.ExecOpts{Timeout: c.opts.BuildTimeout})
	cr := CheckResult{Name: "build", Duration: time.Since(start)}
	if err != nil {
		cr.Status = CheckFailed
		cr.Detail = fmt.Sprintf("running %q: %v", c.opts.BuildCmd, err)
		return cr
	}
	if res.TimedOut {
		cr.Status = CheckFailed
		cr.Detail = fmt.Sprintf("build timed out after %s", c.opts.BuildTimeout)
		return cr
	}
	if res.ExitCode != 0 {
		cr.Status = CheckFailed
		cr.Detail = fmt.Sprintf("exit code %d: %s", res.ExitCode, tail(res.Stderr, 20))
		return cr
	}
	cr.Status = CheckPassed
	return cr
}

// runServerHealth starts the server, waits for the port, issues one HTTP
// request and requires a 2xx response. The server process is always torn
// down before returning.
func (c *Checks) runServerHealth(ctx context.Context) CheckResult {
	start := time.Now()
	cr := CheckResult{Name: "server_health"}
	proc, err := c.sb.StartBackground(c.opts.ServerCmd, map[string]string{
		"PORT": strconv.Itoa(c.opts.ServerPort),
	})
	if err != nil {
		cr.Status = CheckFailed
		cr.Detail = fmt.Sprintf("starting server: %v", err)
		cr.Duration = time.Since(start)
		return cr
	}
	defer proc.Stop()

	if err := tools.WaitForPort(ctx, c.opts.ServerPort, c.opts.ServerWait); err != nil {
		cr.Status = CheckFailed
		cr.Detail = fmt.Sprintf("server never became reachable: %v", err)
		cr.Duration = time.Since(start)
		return cr
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/", c.opts.ServerPort))
	cr.Duration = time.Since(start)
	if err != nil {
		cr.Status = CheckFailed
		cr.Detail = fmt.Sprintf("health request failed: %v", err)
		return cr
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cr.Status = CheckFailed
		cr.Detail = fmt.Sprintf("health request returned %d", resp.StatusCode)
		return cr
	}
	cr.Status = CheckPassed
	return cr
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(s)
	}
	return "...\n" + strings.Join(lines[len(lines)-n:], "\n")
}
