// Package result persists episode output: per-episode directories holding
// result, grade and transcript JSON, plus a SQLite index across runs.
package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CreateRunDir makes a timestamped run directory under baseDir/runs and
// points baseDir/latest at it.
func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// EpisodeDir is where one episode's artifacts live within a run.
func EpisodeDir(runDir, model, episodeID string) string {
	return filepath.Join(runDir, "episodes", model, episodeID)
}

// WriteRecord persists the episode summary as result.json.
func WriteRecord(episodeDir string, rec *Record) error {
	return writeJSON(episodeDir, "result.json", rec)
}

// ReadRecord loads a result.json.
func ReadRecord(path string) (*Record, error) {
	var rec Record
	if err := readJSON(path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// WriteGrade persists the grade as grade.json. The grade is stored as
// opaque structured data so the schema lives with its producer.
func WriteGrade(episodeDir string, grade any) error {
	return writeJSON(episodeDir, "grade.json", grade)
}

// WriteTranscript persists the transcript as transcript.json.
func WriteTranscript(episodeDir string, transcript any) error {
	return writeJSON(episodeDir, "transcript.json", transcript)
}

func writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating episode dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
