// Package dataset loads evaluation tasks from CSV. Each row describes one
// app-building task: what to build, extra constraints, and the rubric the
// judge scores against.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Task is one dataset row.
type Task struct {
	AppName     string `json:"app_name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	Constraints string `json:"constraints,omitempty"`
	Rubric      string `json:"rubric"`
}

// Column headers expected in the CSV, matched case-insensitively.
var columns = []string{"App Name", "App Description", "Prompt", "Addition for CLI Tools", "Rubric"}

// Load reads every task row from a CSV file. The first row must be a
// header naming the expected columns; column order is not significant.
func Load(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	index, err := headerIndex(records[0])
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}

	tasks := make([]Task, 0, len(records)-1)
	for i, rec := range records[1:] {
		task := Task{
			AppName:     field(rec, index["App Name"]),
			Description: field(rec, index["App Description"]),
			Prompt:      field(rec, index["Prompt"]),
			Constraints: field(rec, index["Addition for CLI Tools"]),
			Rubric:      field(rec, index["Rubric"]),
		}
		if task.Prompt == "" {
			return nil, fmt.Errorf("dataset %s: row %d has no prompt", path, i+1)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Row loads a single task by zero-based row index.
func Row(path string, idx int) (*Task, error) {
	tasks, err := Load(path)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(tasks) {
		return nil, fmt.Errorf("dataset %s: row index %d out of range (have %d rows)", path, idx, len(tasks))
	}
	return &tasks[idx], nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(columns))
	for _, want := range columns {
		found := -1
		for i, got := range header {
			if strings.EqualFold(strings.TrimSpace(got), want) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("missing column %q (header: %s)", want, strings.Join(header, ", "))
		}
		index[want] = found
	}
	return index, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
