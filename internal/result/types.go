package result

import "time"

// Record is the persisted summary of one episode.
type Record struct {
	EpisodeID    string    `json:"episode_id"`
	Model        string    `json:"model"`
	AppName      string    `json:"app_name"`
	Task         string    `json:"task"`
	Template     string    `json:"template"`
	Steps        int       `json:"steps"`
	AgentStatus  string    `json:"agent_status"`
	AgentReason  string    `json:"agent_reason,omitempty"`
	Success      bool      `json:"success"`
	DurationS    float64   `json:"duration_s"`
	OverallScore float64   `json:"overall_score"`
	OverallPass  bool      `json:"overall_pass"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
