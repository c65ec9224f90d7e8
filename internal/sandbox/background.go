package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Proc is a handle to a backgrounded process started in the workspace.
// Output is captured incrementally into a bounded buffer. Stop kills the
// whole process group and is safe to call more than once.
type Proc struct {
	cmd      *exec.Cmd
	out      *boundedBuffer
	stopOnce sync.Once
	done     chan struct{}
}

// StartBackground launches command in the workspace root and returns
// immediately with a handle. Entries in env are merged over the harness
// environment.
func (s *Sandbox) StartBackground(command string, env map[string]string) (*Proc, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = s.WorkspaceDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	out := newBoundedBuffer(s.MaxOutputBytes)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting background process: %w", err)
	}

	p := &Proc{cmd: cmd, out: out, done: make(chan struct{})}
	go func() {
		cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID returns the process id of the backgrounded shell.
func (p *Proc) PID() int {
	return p.cmd.Process.Pid
}

// Alive reports whether the process is still running.
func (p *Proc) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Output returns everything captured so far.
func (p *Proc) Output() string {
	return p.out.String()
}

// Stop terminates the process group. Calling Stop on an already-stopped
// process is a no-op.
func (p *Proc) Stop() {
	p.stopOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
		}
		<-p.done
	})
}
