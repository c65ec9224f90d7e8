// Package report aggregates persisted episode results into per-model
// summaries, rendered as a table, markdown or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/crucible-eval/crucible/internal/result"
)

// ModelSummary aggregates every episode one model ran.
type ModelSummary struct {
	Model       string  `json:"model"`
	Episodes    int     `json:"episodes"`
	SuccessRate float64 `json:"success_rate"`
	PassRate    float64 `json:"pass_rate"`
	MeanScore   float64 `json:"mean_score"`
	MeanSteps   float64 `json:"mean_steps"`
}

// Generate reads episode results under runDir and writes a summary report.
func Generate(runDir, format string, w io.Writer) error {
	records, err := collectRecords(runDir)
	if err != nil {
		return err
	}
	summaries := aggregate(records)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func collectRecords(runDir string) ([]*result.Record, error) {
	var records []*result.Record
	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "result.json" {
			rec, err := result.ReadRecord(path)
			if err != nil {
				return nil
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func aggregate(records []*result.Record) []ModelSummary {
	type accum struct {
		count     int
		succeeded int
		passed    int
		score     float64
		steps     float64
	}
	byModel := map[string]*accum{}

	for _, r := range records {
		a, ok := byModel[r.Model]
		if !ok {
			a = &accum{}
			byModel[r.Model] = a
		}
		a.count++
		a.score += r.OverallScore
		a.steps += float64(r.Steps)
		if r.Success {
			a.succeeded++
		}
		if r.OverallPass {
			a.passed++
		}
	}

	var summaries []ModelSummary
	for model, a := range byModel {
		summaries = append(summaries, ModelSummary{
			Model:       model,
			Episodes:    a.count,
			SuccessRate: float64(a.succeeded) / float64(a.count),
			PassRate:    float64(a.passed) / float64(a.count),
			MeanScore:   a.score / float64(a.count),
			MeanSteps:   a.steps / float64(a.count),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Model < summaries[j].Model
	})
	return summaries
}

func writeTable(summaries []ModelSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tEPISODES\tSUCCESS RATE\tPASS RATE\tMEAN SCORE\tMEAN STEPS")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%.0f%%\t%.1f\t%.1f\n",
			s.Model, s.Episodes, s.SuccessRate*100, s.PassRate*100, s.MeanScore, s.MeanSteps)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []ModelSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Model | Episodes | Success Rate | Pass Rate | Mean Score | Mean Steps |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %.0f%% | %.1f | %.1f |\n",
			s.Model, s.Episodes, s.SuccessRate*100, s.PassRate*100, s.MeanScore, s.MeanSteps)
	}
	return nil
}

func writeJSON(summaries []ModelSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
