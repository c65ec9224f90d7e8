// Package tools exposes the fixed set of operations the agent may invoke:
// read_file, write_file, list_files, run_command, install_deps,
// start_server and finish_task. Every operation returns a uniform result
// envelope; failures are data fed back to the model, never errors thrown
// into the loop.
package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crucible-eval/crucible/internal/sandbox"
)

// Result is the uniform envelope returned by every tool operation.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func ok(data map[string]any) Result {
	return Result{Success: true, Data: data}
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Options configures a Toolbox.
type Options struct {
	InstallCmd     string        // command for install_deps (default "pnpm install --no-frozen-lockfile")
	ServerCmd      string        // command for start_server (default "pnpm dev")
	ServerPort     int           // port start_server polls (default 3000)
	CommandTimeout time.Duration // per run_command timeout
	InstallTimeout time.Duration // install_deps timeout (installs are slow)
	ServerWait     time.Duration // total bound on the start_server port poll
	AgentLogPath   string        // optional agent.log
	SystemLogPath  string        // optional system.log
}

// Toolbox binds the tool surface to one sandbox. It owns at most one
// background server process at a time.
type Toolbox struct {
	sb      *sandbox.Sandbox
	opts    Options
	server  *sandbox.Proc
	logs    *episodeLogs
	done    bool
	summary string
}

func NewToolbox(sb *sandbox.Sandbox, opts Options) *Toolbox {
	if opts.InstallCmd == "" {
		opts.InstallCmd = "pnpm install --no-frozen-lockfile"
	}
	if opts.ServerCmd == "" {
		opts.ServerCmd = "pnpm dev"
	}
	if opts.ServerPort == 0 {
		opts.ServerPort = 3000
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 5 * time.Minute
	}
	if opts.InstallTimeout <= 0 {
		opts.InstallTimeout = 10 * time.Minute
	}
	if opts.ServerWait <= 0 {
		opts.ServerWait = 30 * time.Second
	}
	return &Toolbox{
		sb:   sb,
		opts: opts,
		logs: newEpisodeLogs(opts.AgentLogPath, opts.SystemLogPath),
	}
}

// Done reports whether finish_task has been invoked.
func (t *Toolbox) Done() bool { return t.done }

// Summary returns the summary passed to finish_task, if any.
func (t *Toolbox) Summary() string { return t.summary }

// Server returns the live background server handle, or nil.
func (t *Toolbox) Server() *sandbox.Proc { return t.server }

// Cleanup terminates any background server. Required on every exit path;
// calling it twice is harmless.
func (t *Toolbox) Cleanup() {
	if t.server != nil {
		t.server.Stop()
	}
}

// Dispatch routes a named tool call. Unknown tools and malformed arguments
// come back as failure envelopes.
func (t *Toolbox) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	switch name {
	case "read_file":
		path, ok := stringArg(args, "path")
		if !ok {
			return fail("read_file: missing required argument %q", "path")
		}
		return t.ReadFile(path)
	case "write_file":
		path, ok := stringArg(args, "path")
		if !ok {
			return fail("write_file: missing required argument %q", "path")
		}
		content, ok := stringArg(args, "content")
		if !ok {
			return fail("write_file: missing required argument %q", "content")
		}
		return t.WriteFile(path, content)
	case "list_files":
		path, _ := stringArg(args, "path")
		pattern, _ := stringArg(args, "pattern")
		return t.ListFiles(path, pattern)
	case "run_command":
		cmd, ok := stringArg(args, "command")
		if !ok {
			return fail("run_command: missing required argument %q", "command")
		}
		cwd, _ := stringArg(args, "cwd")
		return t.RunCommand(ctx, cmd, cwd)
	case "install_deps":
		return t.InstallDeps(ctx)
	case "start_server":
		return t.StartServer(ctx)
	case "finish_task":
		summary, _ := stringArg(args, "summary")
		return t.FinishTask(summary)
	default:
		return fail("unknown tool: %s (available: %s)", name, strings.Join(Names(), ", "))
	}
}

// ReadFile returns the content of a workspace file.
func (t *Toolbox) ReadFile(path string) Result {
	resolved, err := t.sb.ResolvePath(path)
	if err != nil {
		return fail("path must be within workspace: %s", path)
	}
	info, err := os.Stat(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return fail("file not found: %s", path)
	}
	if err != nil {
		return fail("reading %s: %v", path, err)
	}
	if info.IsDir() {
		return fail("path is a directory, not a file: %s", path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fail("reading %s: %v", path, err)
	}
	t.logs.agent("read_file", fmt.Sprintf("Read %s (%d bytes)", path, len(data)))
	return ok(map[string]any{"path": path, "content": string(data)})
}

// WriteFile writes content to a workspace file, creating parent directories
// as needed. The write is atomic: content lands in a temp file that is
// renamed into place, so a crash mid-write never leaves a partial file.
func (t *Toolbox) WriteFile(path, content string) Result {
	resolved, err := t.sb.ResolvePath(path)
	if err != nil {
		return fail("path must be within workspace: %s", path)
	}
	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("creating parent directories for %s: %v", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return fail("writing %s: %v", path, err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fail("writing %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fail("writing %s: %v", path, err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		os.Remove(tmp.Name())
		return fail("writing %s: %v", path, err)
	}
	t.logs.agent("write_file", fmt.Sprintf("Wrote %s (%d bytes)", path, len(content)))
	return ok(map[string]any{"path": path, "bytes_written": len(content)})
}

// ListFiles lists workspace entries under path matching pattern.
func (t *Toolbox) ListFiles(path, pattern string) Result {
	if path == "" {
		path = "."
	}
	if pattern == "" {
		pattern = "*"
	}
	resolved, err := t.sb.ResolvePath(path)
	if err != nil {
		return fail("path must be within workspace: %s", path)
	}
	info, err := os.Stat(resolved)
	if errors.Is(err, os.ErrNotExist) {
		return fail("path not found: %s", path)
	}
	if err != nil || !info.IsDir() {
		return fail("path is not a directory: %s", path)
	}
	matches, err := filepath.Glob(filepath.Join(resolved, pattern))
	if err != nil {
		return fail("bad pattern %q: %v", pattern, err)
	}
	sort.Strings(matches)
	files := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(t.sb.WorkspaceDir, m)
		if err != nil {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil {
			continue
		}
		entry := map[string]any{"path": rel, "is_dir": fi.IsDir()}
		if !fi.IsDir() {
			entry["size"] = fi.Size()
		}
		files = append(files, entry)
	}
	return ok(map[string]any{"path": path, "files": files, "count": len(files)})
}

// RunCommand executes a foreground shell command. A non-zero exit is not a
// tool failure; the exit code is information for the agent.
func (t *Toolbox) RunCommand(ctx context.Context, command, cwd string) Result {
	t.logs.agent("run_command", "Executing: "+command)
	res, err := t.sb.Execute(ctx, command, sandbox.ExecOpts{
		Cwd:     cwd,
		Timeout: t.opts.CommandTimeout,
	})
	if errors.Is(err, sandbox.ErrPathViolation) {
		return fail("working directory must be within workspace: %s", cwd)
	}
	if err != nil {
		return fail("executing command: %v", err)
	}
	t.logs.system(command, res)
	return ok(map[string]any{
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
		"timed_out": res.TimedOut,
	})
}

// installCleanup are stale artifacts removed before a fresh install.
var installCleanup = []string{"pnpm-lock.yaml", "package-lock.json", "node_modules"}

// InstallDeps installs workspace dependencies with pnpm. The target
// architecture is asked from node itself so native modules match the
// runtime rather than the harness process.
func (t *Toolbox) InstallDeps(ctx context.Context) Result {
	t.logs.agent("install_deps", "Installing dependencies with pnpm")
	for _, item := range installCleanup {
		os.RemoveAll(filepath.Join(t.sb.WorkspaceDir, item))
	}

	arch := runtime.GOARCH
	if res, err := t.sb.Execute(ctx, `node -p "process.arch"`, sandbox.ExecOpts{Timeout: 30 * time.Second}); err == nil && res.ExitCode == 0 {
		if a := strings.TrimSpace(res.Stdout); a != "" {
			arch = a
		}
	}
	env := map[string]string{
		"CI":                  "false",
		"npm_config_arch":     arch,
		"npm_config_platform": runtime.GOOS,
	}

	res, err := t.sb.Execute(ctx, t.opts.InstallCmd, sandbox.ExecOpts{
		Timeout: t.opts.InstallTimeout,
		Env:     env,
	})
	if err != nil {
		return fail("installing dependencies: %v", err)
	}
	t.logs.system(t.opts.InstallCmd, res)
	if res.TimedOut {
		return Result{
			Success: false,
			Error:   fmt.Sprintf("install timed out after %s", t.opts.InstallTimeout),
			Data:    map[string]any{"stdout": res.Stdout, "stderr": res.Stderr, "timed_out": true},
		}
	}
	if res.ExitCode != 0 {
		return Result{
			Success: false,
			Error:   "install failed: " + firstLines(res.Stderr, 20),
			Data:    map[string]any{"stdout": res.Stdout, "stderr": res.Stderr, "exit_code": res.ExitCode},
		}
	}

	// Rebuild native modules as a safety net; failures here are non-fatal.
	if rres, err := t.sb.Execute(ctx, "pnpm rebuild", sandbox.ExecOpts{Timeout: t.opts.InstallTimeout, Env: env}); err == nil {
		t.logs.system("pnpm rebuild", rres)
	}

	return ok(map[string]any{
		"package_manager": "pnpm",
		"arch":            arch,
		"message":         "dependencies installed",
	})
}

// StartServer launches the dev server in the background and waits for its
// port to accept connections. Any previously started server for this
// workspace is terminated first.
func (t *Toolbox) StartServer(ctx context.Context) Result {
	t.logs.agent("start_server", fmt.Sprintf("Starting dev server on port %d", t.opts.ServerPort))
	if t.server != nil {
		t.server.Stop()
		t.server = nil
	}
	proc, err := t.sb.StartBackground(t.opts.ServerCmd, map[string]string{
		"PORT": strconv.Itoa(t.opts.ServerPort),
	})
	if err != nil {
		return fail("starting server: %v", err)
	}
	t.server = proc

	if err := WaitForPort(ctx, t.opts.ServerPort, t.opts.ServerWait); err != nil {
		out := proc.Output()
		proc.Stop()
		t.server = nil
		return Result{
			Success: false,
			Error:   fmt.Sprintf("server did not come up: %v", err),
			Data:    map[string]any{"output": firstLines(out, 40)},
		}
	}
	return ok(map[string]any{
		"url":     fmt.Sprintf("http://localhost:%d", t.opts.ServerPort),
		"pid":     proc.PID(),
		"message": fmt.Sprintf("dev server running on http://localhost:%d", t.opts.ServerPort),
	})
}

// FinishTask flips the termination flag. It takes no further action.
func (t *Toolbox) FinishTask(summary string) Result {
	t.logs.agent("finish_task", "Task completed: "+summary)
	t.done = true
	t.summary = summary
	return ok(map[string]any{"summary": summary, "message": "task marked as complete"})
}

// WaitForPort polls a local TCP port with short-interval retries until it
// accepts a connection or the bounded wait elapses.
func WaitForPort(ctx context.Context, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	addr := fmt.Sprintf("localhost:%d", port)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("port %d not ready after %s", port, timeout)
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}
