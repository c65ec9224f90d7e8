package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apps.csv")
	content := `App Name,App Description,Prompt,Addition for CLI Tools,Rubric
Counter,desc,Build a counter,,rubric-a
Todo,desc,Build a todo list,,rubric-b
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSelectTasks(t *testing.T) {
	data := writeDataset(t)

	tests := []struct {
		name     string
		data     string
		rowIndex int
		task     string
		want     int
		wantApp  string
		wantErr  bool
	}{
		{"all dataset rows", data, -1, "", 2, "Counter", false},
		{"single row by index", data, 1, "", 1, "Todo", false},
		{"row index out of range", data, 9, "", 0, "", true},
		{"ad-hoc task", "", -1, "Build a timer", 1, "ad-hoc", false},
		{"neither data nor task", "", -1, "", 0, "", true},
		{"both data and task", data, -1, "Build a timer", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectTasks(tt.data, tt.rowIndex, tt.task, "rubric", "ad-hoc")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("selectTasks: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if got[0].AppName != tt.wantApp {
				t.Errorf("first app = %q, want %q", got[0].AppName, tt.wantApp)
			}
		})
	}
}

func TestNewRootCmdWiring(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"run", "grade", "list", "report"} {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}
