// Package sandbox executes shell commands confined to a single workspace
// directory. Isolation is best-effort process-level: commands run in their
// own process group so timeouts and teardown can kill the whole tree.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrPathViolation is returned when a path resolves outside the workspace.
var ErrPathViolation = errors.New("path escapes workspace")

const (
	// DefaultTimeout bounds foreground commands that don't specify one.
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxOutputBytes caps captured stdout/stderr per stream.
	DefaultMaxOutputBytes = 1 << 20 // 1 MiB
)

// Result holds the outcome of one foreground execution.
type Result struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Sandbox runs commands inside one workspace directory.
type Sandbox struct {
	WorkspaceDir   string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// New creates a sandbox rooted at workspaceDir, creating the directory if
// needed.
func New(workspaceDir string) (*Sandbox, error) {
	abs, err := filepath.Abs(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace dir: %w", err)
	}
	// Store the symlink-free path so ResolvePath containment checks compare
	// like with like.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace dir: %w", err)
	}
	return &Sandbox{
		WorkspaceDir:   abs,
		DefaultTimeout: DefaultTimeout,
		MaxOutputBytes: DefaultMaxOutputBytes,
	}, nil
}

// ResolvePath resolves rel against the workspace and rejects anything that
// escapes it. Absolute paths are accepted only if already inside. Symlinks
// on the existing portion of the path are followed before the containment
// check, so a link pointing outside the workspace cannot smuggle reads or
// writes out.
func (s *Sandbox) ResolvePath(rel string) (string, error) {
	p := rel
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.WorkspaceDir, p)
	}
	p = filepath.Clean(p)
	resolved, err := resolveExisting(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", rel, err)
	}
	if resolved != s.WorkspaceDir && !strings.HasPrefix(resolved, s.WorkspaceDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathViolation, rel)
	}
	return p, nil
}

// resolveExisting follows symlinks on the longest existing ancestor of p and
// rejoins the not-yet-created remainder lexically.
func resolveExisting(p string) (string, error) {
	suffix := ""
	for cur := p; ; {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}

// ExecOpts configures one foreground execution.
type ExecOpts struct {
	Cwd     string            // relative to workspace; empty means workspace root
	Timeout time.Duration     // 0 means Sandbox.DefaultTimeout
	Env     map[string]string // merged over os.Environ()
}

// Execute runs command through the shell, blocking until completion or
// timeout. On timeout the whole process group is killed, ExitCode is -1 and
// TimedOut is set. A non-zero exit is not an error; err is reserved for
// failures to run the command at all.
func (s *Sandbox) Execute(ctx context.Context, command string, opts ExecOpts) (*Result, error) {
	cwd := s.WorkspaceDir
	if opts.Cwd != "" {
		resolved, err := s.ResolvePath(opts.Cwd)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(resolved, 0o755); err != nil {
			return nil, fmt.Errorf("creating cwd: %w", err)
		}
		cwd = resolved
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = cwd
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Kill the whole group on timeout, not just the shell; grandchildren
	// holding the output pipes would otherwise keep Run blocked past the
	// deadline. WaitDelay bounds how long Wait waits for those pipes.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdout := newBoundedBuffer(s.MaxOutputBytes)
	stderr := newBoundedBuffer(s.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			res.ExitCode = -1
			return res, nil
		}
		if errors.Is(runErr, exec.ErrWaitDelay) {
			// The command exited but a background child kept the output
			// pipes open past WaitDelay. The command itself completed.
			res.ExitCode = cmd.ProcessState.ExitCode()
			return res, nil
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("executing command: %w", runErr)
	}
	return res, nil
}
