package tools

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crucible-eval/crucible/internal/sandbox"
)

// episodeLogs appends to the two per-episode log files: agent.log records
// every tool invocation from the model's point of view, system.log records
// raw command output. Either path may be empty, in which case that stream
// is dropped. Log failures never interrupt an episode.
type episodeLogs struct {
	agentPath  string
	systemPath string
}

func newEpisodeLogs(agentPath, systemPath string) *episodeLogs {
	return &episodeLogs{agentPath: agentPath, systemPath: systemPath}
}

func (l *episodeLogs) agent(tool, msg string) {
	l.append(l.agentPath, fmt.Sprintf("[%s] [%s] %s\n", timestamp(), tool, msg))
}

func (l *episodeLogs) system(command string, res *sandbox.Result) {
	if l.systemPath == "" || res == nil {
		return
	}
	entry := fmt.Sprintf("[%s] $ %s\nexit=%d timed_out=%v duration=%s\n", timestamp(), command, res.ExitCode, res.TimedOut, res.Duration.Round(time.Millisecond))
	if res.Stdout != "" {
		entry += "--- stdout ---\n" + res.Stdout + "\n"
	}
	if res.Stderr != "" {
		entry += "--- stderr ---\n" + res.Stderr + "\n"
	}
	l.append(l.systemPath, entry)
}

func (l *episodeLogs) append(path, entry string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("warning: could not open log %s: %v", path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		log.Printf("warning: could not write log %s: %v", path, err)
	}
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}
