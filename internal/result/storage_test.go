package result_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crucible-eval/crucible/internal/result"
)

func sampleRecord() *result.Record {
	return &result.Record{
		EpisodeID:    "ep-123",
		Model:        "fast-model",
		AppName:      "Counter",
		Task:         "Build a counter app",
		Template:     "default",
		Steps:        7,
		AgentStatus:  "completed",
		Success:      true,
		DurationS:    42.5,
		OverallScore: 87.5,
		OverallPass:  true,
		StartedAt:    time.Now().UTC().Add(-time.Minute),
		FinishedAt:   time.Now().UTC(),
	}
}

func TestWriteAndReadRecord(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord()
	if err := result.WriteRecord(dir, rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	got, err := result.ReadRecord(filepath.Join(dir, "result.json"))
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got.EpisodeID != rec.EpisodeID {
		t.Errorf("episode_id: got %q, want %q", got.EpisodeID, rec.EpisodeID)
	}
	if got.OverallScore != rec.OverallScore {
		t.Errorf("overall_score: got %f, want %f", got.OverallScore, rec.OverallScore)
	}
	if !got.OverallPass {
		t.Error("overall_pass lost in round trip")
	}
}

func TestWriteGradeAndTranscript(t *testing.T) {
	dir := t.TempDir()
	if err := result.WriteGrade(dir, map[string]any{"overall_score": 80.0}); err != nil {
		t.Fatalf("WriteGrade: %v", err)
	}
	if err := result.WriteTranscript(dir, map[string]any{"task": "build it"}); err != nil {
		t.Fatalf("WriteTranscript: %v", err)
	}
	for _, name := range []string{"grade.json", "transcript.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestEpisodeDir(t *testing.T) {
	dir := result.EpisodeDir("/runs/now", "fast-model", "ep-1")
	expected := filepath.Join("/runs/now", "episodes", "fast-model", "ep-1")
	if dir != expected {
		t.Errorf("got %q, want %q", dir, expected)
	}
}

func TestIndexAddAndList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	ix, err := result.OpenIndex(dbPath)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer ix.Close()

	first := sampleRecord()
	second := sampleRecord()
	second.EpisodeID = "ep-456"
	second.Model = "slow-model"
	second.Success = false
	second.OverallPass = false
	second.FinishedAt = first.FinishedAt.Add(time.Minute)

	for _, rec := range []*result.Record{first, second} {
		if err := ix.Add(rec, "/runs/now/episodes/"+rec.EpisodeID); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	all, err := ix.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].EpisodeID != "ep-456" {
		t.Errorf("newest first ordering broken: %s", all[0].EpisodeID)
	}

	filtered, err := ix.List("fast-model")
	if err != nil {
		t.Fatalf("List(model): %v", err)
	}
	if len(filtered) != 1 || filtered[0].Model != "fast-model" {
		t.Errorf("filtered = %+v", filtered)
	}
	if !filtered[0].Success || !filtered[0].OverallPass {
		t.Error("boolean columns lost in round trip")
	}
}

func TestIndexUpsert(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	ix, err := result.OpenIndex(dbPath)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer ix.Close()

	rec := sampleRecord()
	if err := ix.Add(rec, "/a"); err != nil {
		t.Fatal(err)
	}
	rec.OverallScore = 95
	if err := ix.Add(rec, "/a"); err != nil {
		t.Fatal(err)
	}
	entries, err := ix.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1 after upsert", len(entries))
	}
	if entries[0].OverallScore != 95 {
		t.Errorf("score = %v, want updated value", entries[0].OverallScore)
	}
}
