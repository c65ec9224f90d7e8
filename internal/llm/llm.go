// Package llm wraps gollm behind the one call the harness needs: send a
// system prompt plus a conversation, get text back. The agent loop and the
// rubric judge both talk to a Client; tests substitute fakes.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/teilomillet/gollm"

	"github.com/crucible-eval/crucible/internal/config"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client is the model collaborator interface.
type Client interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// GollmClient implements Client on top of a gollm LLM.
type GollmClient struct {
	llm     gollm.LLM
	modelID string
}

// New builds a client from a model catalog entry. The API key is read from
// the entry's env_var; a missing key is reported before any request is made.
func New(id string, m config.Model) (*GollmClient, error) {
	if m.EnvVar != "" && os.Getenv(m.EnvVar) == "" {
		return nil, fmt.Errorf("model %q: environment variable %s not set", id, m.EnvVar)
	}
	opts := []gollm.ConfigOption{
		gollm.SetProvider(m.Provider),
		gollm.SetModel(m.Name),
		gollm.SetMaxTokens(m.MaxTokens),
		gollm.SetTemperature(m.Temperature),
		gollm.SetMaxRetries(2),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if m.EnvVar != "" {
		opts = append(opts, gollm.SetAPIKey(os.Getenv(m.EnvVar)))
	}
	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s client for model %q: %w", m.Provider, id, err)
	}
	return &GollmClient{llm: llm, modelID: id}, nil
}

// ModelID returns the catalog id this client was built from.
func (c *GollmClient) ModelID() string { return c.modelID }

// Complete flattens the conversation into a single gollm prompt and returns
// the raw model text.
func (c *GollmClient) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	var parts []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			parts = append(parts, "[Assistant]: "+msg.Content)
		case RoleTool:
			parts = append(parts, "[Tool Result]: "+msg.Content)
		default:
			parts = append(parts, msg.Content)
		}
	}
	text := strings.Join(parts, "\n\n")
	if text == "" {
		return "", fmt.Errorf("empty conversation")
	}

	promptOpts := []gollm.PromptOption{}
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	prompt := gollm.NewPrompt(text, promptOpts...)

	out, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	return out, nil
}
