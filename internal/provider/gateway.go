package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds the server-wide backend defaults. Per-request settings in a
// CompletionRequest take precedence.
type Config struct {
	OllamaURL   string
	OllamaModel string

	OpenAIKey   string
	OpenAIModel string
	OpenAIURL   string
	// Temperature is sent with remote requests. Nil means the default; a
	// pointer so that 0 stays configurable.
	Temperature *float64

	LocalTimeout  time.Duration
	RemoteTimeout time.Duration
	ProbeTimeout  time.Duration

	// HTTPClient is the base client for all backend calls. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// DefaultConfig returns the settings used for zero fields.
func DefaultConfig() Config {
	return Config{
		OllamaURL:     "http://localhost:11434",
		OllamaModel:   "llama2",
		OpenAIModel:   "gpt-4o-mini",
		OpenAIURL:     "https://api.openai.com/v1/chat/completions",
		Temperature:   ptr(0.7),
		LocalTimeout:  60 * time.Second,
		RemoteTimeout: 30 * time.Second,
		ProbeTimeout:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OllamaURL == "" {
		c.OllamaURL = d.OllamaURL
	}
	if c.OllamaModel == "" {
		c.OllamaModel = d.OllamaModel
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = d.OpenAIModel
	}
	if c.OpenAIURL == "" {
		c.OpenAIURL = d.OpenAIURL
	}
	if c.Temperature == nil {
		c.Temperature = d.Temperature
	}
	if c.LocalTimeout <= 0 {
		c.LocalTimeout = d.LocalTimeout
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = d.RemoteTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return c
}

// Gateway resolves a provider preference to one backend and dispatches the
// prompt to it.
type Gateway struct {
	cfg    Config
	logger *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{cfg: cfg.withDefaults(), logger: logger}
}

// target is a request's effective backend settings after overrides.
type target struct {
	ollama ollamaClient
	apiKey string
	model  string
}

func (g *Gateway) target(req CompletionRequest) target {
	base := firstNonEmpty(req.Local.BaseURL, g.cfg.OllamaURL)
	return target{
		ollama: ollamaClient{
			http:    g.cfg.HTTPClient,
			baseURL: strings.TrimRight(strings.TrimSpace(base), "/"),
			model:   firstNonEmpty(req.Model, req.Local.Model, g.cfg.OllamaModel),
		},
		apiKey: firstNonEmpty(req.Remote.APIKey, g.cfg.OpenAIKey),
		model:  firstNonEmpty(req.Model, req.Remote.Model, g.cfg.OpenAIModel),
	}
}

// Resolve picks the backend for req. Explicit preferences are honoured as
// given; auto prefers a reachable local server, then a configured remote
// credential. The probe runs once per call.
func (g *Gateway) Resolve(ctx context.Context, req CompletionRequest) Selection {
	return g.resolve(ctx, req.Preference, g.target(req))
}

func (g *Gateway) resolve(ctx context.Context, pref Preference, t target) Selection {
	switch pref {
	case PreferLocal:
		return Selection{Backend: BackendLocal, Reason: ReasonRequested}
	case PreferRemote:
		return Selection{Backend: BackendRemote, Reason: ReasonRequested}
	}

	err := g.probe(ctx, t.ollama)
	if err == nil {
		return Selection{Backend: BackendLocal, Reason: ReasonLocalAvailable}
	}
	g.logger.Debug("local backend probe failed",
		slog.String("url", t.ollama.baseURL),
		slog.String("error", err.Error()),
	)
	if t.apiKey != "" {
		return Selection{Backend: BackendRemote, Reason: ReasonRemoteConfigured}
	}
	return Selection{Backend: BackendNone, Reason: ReasonUnconfigured}
}

func (g *Gateway) probe(ctx context.Context, c ollamaClient) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ProbeTimeout)
	defer cancel()
	return c.probe(ctx)
}

// Complete resolves a backend and returns its completion. It never fails:
// backend faults and missing configuration come back as diagnostic text with
// FailureReason set. A failing backend is not retried on the other one.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) Result {
	t := g.target(req)
	sel := g.resolve(ctx, req.Preference, t)
	prompt := buildPrompt(req.Mode, req.Prompt)

	g.logger.Info("completion backend selected",
		slog.String("backend", string(sel.Backend)),
		slog.String("reason", string(sel.Reason)),
		slog.String("mode", string(req.Mode)),
	)

	switch sel.Backend {
	case BackendLocal:
		return g.completeLocal(ctx, t, prompt)
	case BackendRemote:
		return g.completeRemote(ctx, t, prompt)
	default:
		return Result{
			Text: fmt.Sprintf("No LLM provider is available. Start Ollama at %s "+
				"or configure an OpenAI API key in the plugin settings.", t.ollama.baseURL),
			FailureReason: FailureUnconfigured,
		}
	}
}

func (g *Gateway) completeLocal(ctx context.Context, t target, prompt string) Result {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.LocalTimeout)
	defer cancel()

	text, err := t.ollama.generate(ctx, prompt)
	if err != nil {
		g.logger.Warn("ollama request failed",
			slog.String("url", t.ollama.baseURL),
			slog.String("model", t.ollama.model),
			slog.String("error", err.Error()),
		)
		return Result{
			Text:          fmt.Sprintf("Ollama error: %s. Is Ollama running at %s?", describe(err), t.ollama.baseURL),
			FailureReason: FailureBackendUnavailable,
		}
	}
	return Result{Text: text, Provider: BackendLocal}
}

func (g *Gateway) completeRemote(ctx context.Context, t target, prompt string) Result {
	if t.apiKey == "" {
		return Result{
			Text:          "OpenAI was selected but no API key is configured. Add one in the plugin settings.",
			FailureReason: FailureUnconfigured,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RemoteTimeout)
	defer cancel()

	c := newOpenAIClient(g.cfg.HTTPClient, g.cfg.OpenAIURL, t.apiKey, t.model, *g.cfg.Temperature)
	text, err := c.chat(ctx, prompt)
	if err != nil {
		g.logger.Warn("openai request failed",
			slog.String("model", t.model),
			slog.String("error", err.Error()),
		)
		return Result{
			Text:          fmt.Sprintf("OpenAI error: %s", describe(err)),
			FailureReason: FailureBackendUnavailable,
		}
	}
	return Result{Text: text, Provider: BackendRemote}
}

// Status probes the default local server and reports whether a default remote
// credential is configured.
func (g *Gateway) Status(ctx context.Context) Status {
	t := g.target(CompletionRequest{})
	return Status{
		LocalAvailable:   g.probe(ctx, t.ollama) == nil,
		RemoteConfigured: t.apiKey != "",
	}
}

func describe(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var be *backendError
	if errors.As(err, &be) {
		return be.Error()
	}
	return err.Error()
}

func ptr[T any](v T) *T { return &v }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
