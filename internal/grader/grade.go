package grader

import "github.com/crucible-eval/crucible/internal/config"

// Grade is the final evaluation of one episode. It is derived once, by a
// pure function of the automated verdict and the judge result.
type Grade struct {
	Verdict        *Verdict     `json:"automated"`
	Judge          *JudgeResult `json:"judge"`
	AutomatedScore float64      `json:"automated_score"`
	OverallScore   float64      `json:"overall_score"`
	OverallPass    bool         `json:"overall_pass"`
}

// ComputeGrade combines automated checks and the judge score.
//
// The automated component is the fraction of passed checks scaled to 100;
// a skipped check counts as not passed. The overall score is the weighted
// sum of the two components. Passing requires every automated check to
// pass and the judge score to meet the threshold; a high judge score
// never rescues a broken build.
func ComputeGrade(v *Verdict, j *JudgeResult, w config.Weights, threshold float64) *Grade {
	checks := []CheckResult{v.Install, v.Build, v.ServerHealth}
	passed := 0
	for _, c := range checks {
		if c.Passed() {
			passed++
		}
	}
	automated := 100 * float64(passed) / float64(len(checks))

	var judgeScore float64
	if j != nil {
		judgeScore = j.Score
	}

	total := w.Automated + w.Judge
	if total <= 0 {
		w = config.Weights{Automated: 0.5, Judge: 0.5}
		total = 1
	}
	overall := (w.Automated*automated + w.Judge*judgeScore) / total

	return &Grade{
		Verdict:        v,
		Judge:          j,
		AutomatedScore: automated,
		OverallScore:   overall,
		OverallPass:    v.AllPass && j != nil && judgeScore >= threshold,
	}
}
