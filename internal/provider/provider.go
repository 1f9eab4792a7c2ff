// Package provider routes completion prompts to a local Ollama server or the
// hosted OpenAI chat API.
package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sakif/code-runner/internal/apperror"
)

// Mode selects how the prompt is presented to the model.
type Mode string

const (
	ModeCompletion Mode = "completion"
	ModeAgent      Mode = "agent"
)

// UnmarshalText accepts "llm" as an alias for completion. An empty mode means
// completion.
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "completion", "llm":
		*m = ModeCompletion
	case "agent":
		*m = ModeAgent
	default:
		return apperror.ValidationFailed("mode", fmt.Sprintf("unknown mode %q", string(text)))
	}
	return nil
}

// Preference is the caller's choice of backend.
type Preference string

const (
	PreferAuto   Preference = "auto"
	PreferLocal  Preference = "local"
	PreferRemote Preference = "remote"
)

// UnmarshalText accepts backend names ("ollama", "openai") as aliases.
func (p *Preference) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "auto":
		*p = PreferAuto
	case "local", "ollama":
		*p = PreferLocal
	case "remote", "openai":
		*p = PreferRemote
	default:
		return apperror.ValidationFailed("provider", fmt.Sprintf("unknown provider %q", string(text)))
	}
	return nil
}

// Backend identifies a completion backend.
type Backend string

const (
	BackendNone   Backend = ""
	BackendLocal  Backend = "ollama"
	BackendRemote Backend = "openai"
)

// Reason explains why a backend was selected.
type Reason string

const (
	ReasonRequested        Reason = "requested explicitly"
	ReasonLocalAvailable   Reason = "local backend answered the probe"
	ReasonRemoteConfigured Reason = "local backend unavailable, remote credential configured"
	ReasonUnconfigured     Reason = "no backend available"
)

// Selection is the outcome of preference resolution.
type Selection struct {
	Backend Backend
	Reason  Reason
}

// Failure classifies a completion that produced a diagnostic instead of model
// output.
type Failure string

const (
	FailureNone               Failure = ""
	FailureBackendUnavailable Failure = "backend_unavailable"
	FailureUnconfigured       Failure = "unconfigured"
)

// LocalConfig overrides the server's Ollama settings for one request.
type LocalConfig struct {
	BaseURL string
	Model   string
}

// RemoteConfig overrides the server's OpenAI settings for one request.
type RemoteConfig struct {
	APIKey string
	Model  string
}

// CompletionRequest is one prompt plus the caller's provider preference.
type CompletionRequest struct {
	Mode       Mode
	Prompt     string
	Preference Preference
	// Model, when set, overrides the model of whichever backend is selected.
	Model  string
	Local  LocalConfig
	Remote RemoteConfig
}

type completionRequestJSON struct {
	Mode         Mode       `json:"mode"`
	Prompt       string     `json:"prompt"`
	Provider     Preference `json:"provider"`
	Model        string     `json:"model"`
	OllamaURL    string     `json:"ollama_url"`
	OllamaModel  string     `json:"ollama_model"`
	OpenAIAPIKey string     `json:"openai_api_key"`
	OpenAIModel  string     `json:"openai_model"`
}

// UnmarshalJSON decodes the flat wire form sent by editor plugins.
func (r *CompletionRequest) UnmarshalJSON(data []byte) error {
	w := completionRequestJSON{Mode: ModeCompletion, Provider: PreferAuto}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = CompletionRequest{
		Mode:       w.Mode,
		Prompt:     w.Prompt,
		Preference: w.Provider,
		Model:      w.Model,
		Local:      LocalConfig{BaseURL: w.OllamaURL, Model: w.OllamaModel},
		Remote:     RemoteConfig{APIKey: w.OpenAIAPIKey, Model: w.OpenAIModel},
	}
	return nil
}

// Result is always safe to show to the user: either the model's text or a
// diagnostic explaining why there is none.
type Result struct {
	Text          string
	Provider      Backend
	FailureReason Failure
}

// Status reports backend availability for the health endpoint.
type Status struct {
	LocalAvailable   bool
	RemoteConfigured bool
}

const agentTemplate = `You are a coding agent working inside a notes editor. Think through the task step by step and state any assumptions you make. End with the final answer or code.

Task:
%s`

// buildPrompt applies the agent template. Completion prompts pass through.
func buildPrompt(mode Mode, prompt string) string {
	if mode == ModeAgent {
		return fmt.Sprintf(agentTemplate, prompt)
	}
	return prompt
}
