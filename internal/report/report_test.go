package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/crucible-eval/crucible/internal/report"
	"github.com/crucible-eval/crucible/internal/result"
)

func seedRun(t *testing.T) string {
	t.Helper()
	runDir := t.TempDir()

	records := []*result.Record{
		{EpisodeID: "ep-1", Model: "model-a", AppName: "Counter", Steps: 4, Success: true, OverallScore: 90, OverallPass: true},
		{EpisodeID: "ep-2", Model: "model-a", AppName: "Todo", Steps: 8, Success: true, OverallScore: 70, OverallPass: false},
		{EpisodeID: "ep-3", Model: "model-b", AppName: "Counter", Steps: 12, Success: false, OverallScore: 40, OverallPass: false},
	}
	for _, rec := range records {
		dir := result.EpisodeDir(runDir, rec.Model, rec.EpisodeID)
		if err := result.WriteRecord(dir, rec); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	return runDir
}

func TestGenerateTable(t *testing.T) {
	runDir := seedRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"model-a", "model-b", "MEAN SCORE"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestGenerateMarkdown(t *testing.T) {
	runDir := seedRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "markdown", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "| Model |") {
		t.Errorf("markdown output malformed:\n%s", buf.String())
	}
}

func TestGenerateJSON(t *testing.T) {
	runDir := seedRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "json", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var summaries []report.ModelSummary
	if err := json.Unmarshal(buf.Bytes(), &summaries); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len(summaries) = %d, want 2", len(summaries))
	}

	a := summaries[0]
	if a.Model != "model-a" {
		t.Fatalf("summaries not sorted by model: %+v", summaries)
	}
	if a.Episodes != 2 {
		t.Errorf("model-a episodes = %d, want 2", a.Episodes)
	}
	if a.SuccessRate != 1.0 {
		t.Errorf("model-a success rate = %v, want 1.0", a.SuccessRate)
	}
	if a.PassRate != 0.5 {
		t.Errorf("model-a pass rate = %v, want 0.5", a.PassRate)
	}
	if a.MeanScore != 80 {
		t.Errorf("model-a mean score = %v, want 80", a.MeanScore)
	}
	if a.MeanSteps != 6 {
		t.Errorf("model-a mean steps = %v, want 6", a.MeanSteps)
	}
}

func TestGenerateEmptyRunDir(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Generate(t.TempDir(), "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "MODEL") {
		t.Errorf("output = %q, want header", out)
	}
	if strings.Count(out, "\n") > 2 {
		t.Errorf("output = %q, want no data rows", out)
	}
}
