package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	TemplatesDir string           `yaml:"templates_dir"`
	RunsDir      string           `yaml:"runs_dir"`
	DefaultModel string           `yaml:"default_model"`
	Models       map[string]Model `yaml:"models"`
	Agent        Agent            `yaml:"agent"`
	Grading      Grading          `yaml:"grading"`
}

// Model is one entry in the model catalog. EnvVar names the environment
// variable holding the API key for its provider.
type Model struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"model_name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Description string  `yaml:"description"`
	EnvVar      string  `yaml:"env_var"`
}

type Agent struct {
	MaxSteps         int `yaml:"max_steps"`
	StepDelaySeconds int `yaml:"step_delay_seconds"`
	CommandTimeoutS  int `yaml:"command_timeout_s"`
	InstallTimeoutS  int `yaml:"install_timeout_s"`
}

type Grading struct {
	InstallCmd     string  `yaml:"install_cmd"`
	BuildCmd       string  `yaml:"build_cmd"`
	ServerCmd      string  `yaml:"server_cmd"`
	ServerPort     int     `yaml:"server_port"`
	BuildTimeoutS  int     `yaml:"build_timeout_s"`
	ServerWaitS    int     `yaml:"server_wait_s"`
	JudgeModel     string  `yaml:"judge_model"`
	JudgeThreshold float64 `yaml:"judge_threshold"`
	Weights        Weights `yaml:"weights"`
}

// Weights combines the automated-check component and the judge score into
// the overall score.
type Weights struct {
	Automated float64 `yaml:"automated"`
	Judge     float64 `yaml:"judge"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.TemplatesDir == "" {
		cfg.TemplatesDir = "templates"
	}
	if cfg.RunsDir == "" {
		cfg.RunsDir = "runs"
	}
	if len(cfg.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	for id, m := range cfg.Models {
		if m.Name == "" {
			return fmt.Errorf("model %q: model_name is required", id)
		}
		if m.Provider == "" {
			return fmt.Errorf("model %q: provider is required", id)
		}
		if m.MaxTokens == 0 {
			m.MaxTokens = 4096
			cfg.Models[id] = m
		}
	}
	if cfg.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}
	if _, ok := cfg.Models[cfg.DefaultModel]; !ok {
		return fmt.Errorf("default_model %q not found in models", cfg.DefaultModel)
	}
	if cfg.Agent.MaxSteps < 1 {
		cfg.Agent.MaxSteps = 50
	}
	if cfg.Agent.CommandTimeoutS < 1 {
		cfg.Agent.CommandTimeoutS = 300
	}
	if cfg.Agent.InstallTimeoutS < 1 {
		cfg.Agent.InstallTimeoutS = 600
	}
	g := &cfg.Grading
	if g.InstallCmd == "" {
		g.InstallCmd = "pnpm install --no-frozen-lockfile"
	}
	if g.BuildCmd == "" {
		g.BuildCmd = "pnpm build"
	}
	if g.ServerCmd == "" {
		g.ServerCmd = "pnpm dev"
	}
	if g.ServerPort == 0 {
		g.ServerPort = 3000
	}
	if g.BuildTimeoutS < 1 {
		g.BuildTimeoutS = 600
	}
	if g.ServerWaitS < 1 {
		g.ServerWaitS = 30
	}
	if g.JudgeThreshold == 0 {
		g.JudgeThreshold = 70
	}
	if g.Weights.Automated == 0 && g.Weights.Judge == 0 {
		g.Weights = Weights{Automated: 0.5, Judge: 0.5}
	}
	if g.JudgeModel == "" {
		g.JudgeModel = cfg.DefaultModel
	}
	if _, ok := cfg.Models[g.JudgeModel]; !ok {
		return fmt.Errorf("judge_model %q not found in models", g.JudgeModel)
	}
	return nil
}

// LoadEnv reads a YAML mapping of secret names to values and exports each
// as an uppercase environment variable (openai_api_key -> OPENAI_API_KEY).
// Variables already present in the environment win.
func LoadEnv(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	var vars map[string]string
	if err := yaml.Unmarshal(data, &vars); err != nil {
		return fmt.Errorf("parsing env file %s: %w", path, err)
	}
	for k, v := range vars {
		key := strings.ToUpper(k)
		if os.Getenv(key) == "" && v != "" {
			os.Setenv(key, v)
		}
	}
	return nil
}
