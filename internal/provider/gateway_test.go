package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOllama answers /api/tags and echoes prompts from /api/generate.
type fakeOllama struct {
	*httptest.Server
	generateCalls atomic.Int32
	lastModel     atomic.Value
	lastPrompt    atomic.Value
	fail          bool
}

func newFakeOllama(t *testing.T, fail bool) *fakeOllama {
	t.Helper()
	f := &fakeOllama{fail: fail}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama2"}]}`))
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		f.generateCalls.Add(1)
		var body struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Stream {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.lastModel.Store(body.Model)
		f.lastPrompt.Store(body.Prompt)
		if f.fail {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model 'nope' not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "local says: " + body.Prompt, "done": true})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// fakeOpenAI checks the bearer token and answers with one choice.
type fakeOpenAI struct {
	*httptest.Server
	calls     atomic.Int32
	lastAuth  atomic.Value
	lastModel atomic.Value
	lastTemp  atomic.Value
	delay     time.Duration
}

func newFakeOpenAI(t *testing.T, delay time.Duration) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{delay: delay}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		var body struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.lastModel.Store(body.Model)
		f.lastTemp.Store(body.Temperature)
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "remote says: " + body.Messages[0].Content}},
			},
		})
	}))
	t.Cleanup(f.Close)
	return f
}

// deadURL returns the address of a server that has already shut down.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func newGateway(cfg provider.Config) *provider.Gateway {
	return provider.NewGateway(cfg, discardLogger())
}

func TestComplete_AutoPrefersLocal(t *testing.T) {
	ollama := newFakeOllama(t, false)
	openai := newFakeOpenAI(t, 0)
	gw := newGateway(provider.Config{OllamaURL: ollama.URL, OpenAIURL: openai.URL, OpenAIKey: "sk-test"})

	res := gw.Complete(context.Background(), provider.CompletionRequest{
		Mode: provider.ModeCompletion, Prompt: "hello", Preference: provider.PreferAuto,
	})

	assert.Equal(t, provider.BackendLocal, res.Provider)
	assert.Equal(t, provider.FailureNone, res.FailureReason)
	assert.Equal(t, "local says: hello", res.Text)
	assert.Equal(t, "llama2", ollama.lastModel.Load())
	assert.Zero(t, openai.calls.Load())
}

func TestComplete_AutoFallsBackToRemoteWhenProbeFails(t *testing.T) {
	openai := newFakeOpenAI(t, 0)
	gw := newGateway(provider.Config{OllamaURL: deadURL(t), OpenAIURL: openai.URL, OpenAIKey: "sk-test"})

	res := gw.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello", Preference: provider.PreferAuto})

	assert.Equal(t, provider.BackendRemote, res.Provider)
	assert.Equal(t, "remote says: hello", res.Text)
	assert.Equal(t, "Bearer sk-test", openai.lastAuth.Load())
	assert.Equal(t, "gpt-4o-mini", openai.lastModel.Load())
}

func TestComplete_NothingAvailableReturnsHint(t *testing.T) {
	gw := newGateway(provider.Config{OllamaURL: deadURL(t)})

	res := gw.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello", Preference: provider.PreferAuto})

	assert.Equal(t, provider.BackendNone, res.Provider)
	assert.Equal(t, provider.FailureUnconfigured, res.FailureReason)
	assert.Contains(t, res.Text, "No LLM provider is available")
	assert.Contains(t, res.Text, "OpenAI API key")
}

func TestComplete_LocalFailureIsNotRetriedRemotely(t *testing.T) {
	ollama := newFakeOllama(t, true)
	openai := newFakeOpenAI(t, 0)
	gw := newGateway(provider.Config{OllamaURL: ollama.URL, OpenAIURL: openai.URL, OpenAIKey: "sk-test"})

	res := gw.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello", Preference: provider.PreferAuto})

	assert.Equal(t, provider.FailureBackendUnavailable, res.FailureReason)
	assert.Contains(t, res.Text, "Ollama error")
	assert.Contains(t, res.Text, "model 'nope' not found")
	assert.Equal(t, int32(1), ollama.generateCalls.Load())
	assert.Zero(t, openai.calls.Load())
}

func TestComplete_ExplicitLocalSkipsProbe(t *testing.T) {
	gw := newGateway(provider.Config{OllamaURL: deadURL(t), OpenAIKey: "sk-test"})

	res := gw.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello", Preference: provider.PreferLocal})

	assert.Equal(t, provider.FailureBackendUnavailable, res.FailureReason)
	assert.Contains(t, res.Text, "Is Ollama running at")
}

func TestComplete_ExplicitRemoteWithoutKey(t *testing.T) {
	openai := newFakeOpenAI(t, 0)
	gw := newGateway(provider.Config{OpenAIURL: openai.URL})

	res := gw.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello", Preference: provider.PreferRemote})

	assert.Equal(t, provider.FailureUnconfigured, res.FailureReason)
	assert.Contains(t, res.Text, "no API key")
	assert.Zero(t, openai.calls.Load())
}

func TestComplete_RemoteRejectsBadKey(t *testing.T) {
	openai := newFakeOpenAI(t, 0)
	gw := newGateway(provider.Config{OpenAIURL: openai.URL})

	res := gw.Complete(context.Background(), provider.CompletionRequest{
		Prompt:     "hello",
		Preference: provider.PreferRemote,
		Remote:     provider.RemoteConfig{APIKey: "sk-wrong"},
	})

	assert.Equal(t, provider.FailureBackendUnavailable, res.FailureReason)
	assert.Contains(t, res.Text, "Incorrect API key provided")
	assert.Equal(t, "Bearer sk-wrong", openai.lastAuth.Load())
}

func TestComplete_RemoteTimeout(t *testing.T) {
	openai := newFakeOpenAI(t, 2*time.Second)
	gw := newGateway(provider.Config{OpenAIURL: openai.URL, OpenAIKey: "sk-test", RemoteTimeout: 100 * time.Millisecond})

	start := time.Now()
	res := gw.Complete(context.Background(), provider.CompletionRequest{Prompt: "hello", Preference: provider.PreferRemote})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, provider.FailureBackendUnavailable, res.FailureReason)
	assert.Equal(t, "OpenAI error: request timed out", res.Text)
}

func TestComplete_AgentModeWrapsPrompt(t *testing.T) {
	ollama := newFakeOllama(t, false)
	gw := newGateway(provider.Config{OllamaURL: ollama.URL})

	gw.Complete(context.Background(), provider.CompletionRequest{
		Mode: provider.ModeAgent, Prompt: "sort a list", Preference: provider.PreferLocal,
	})
	agentPrompt := ollama.lastPrompt.Load().(string)
	assert.NotEqual(t, "sort a list", agentPrompt)
	assert.Contains(t, agentPrompt, "Task:\nsort a list")

	gw.Complete(context.Background(), provider.CompletionRequest{
		Mode: provider.ModeCompletion, Prompt: "sort a list", Preference: provider.PreferLocal,
	})
	assert.Equal(t, "sort a list", ollama.lastPrompt.Load())
}

func TestComplete_RequestOverridesDefaults(t *testing.T) {
	ollama := newFakeOllama(t, false)
	gw := newGateway(provider.Config{OllamaURL: deadURL(t), OllamaModel: "llama2"})

	res := gw.Complete(context.Background(), provider.CompletionRequest{
		Prompt:     "hi",
		Preference: provider.PreferAuto,
		Local:      provider.LocalConfig{BaseURL: ollama.URL + "/", Model: "mistral"},
	})

	assert.Equal(t, provider.BackendLocal, res.Provider)
	assert.Equal(t, "mistral", ollama.lastModel.Load())
}

func TestComplete_Temperature(t *testing.T) {
	openai := newFakeOpenAI(t, 0)
	req := provider.CompletionRequest{Prompt: "hi", Preference: provider.PreferRemote}

	gw := newGateway(provider.Config{OpenAIURL: openai.URL, OpenAIKey: "sk-test"})
	gw.Complete(context.Background(), req)
	assert.Equal(t, 0.7, openai.lastTemp.Load())

	zero := 0.0
	gw = newGateway(provider.Config{OpenAIURL: openai.URL, OpenAIKey: "sk-test", Temperature: &zero})
	res := gw.Complete(context.Background(), req)
	assert.Equal(t, provider.BackendRemote, res.Provider)
	assert.Equal(t, 0.0, openai.lastTemp.Load())
}

func TestResolve(t *testing.T) {
	ollama := newFakeOllama(t, false)
	dead := deadURL(t)

	tests := []struct {
		name   string
		cfg    provider.Config
		pref   provider.Preference
		want   provider.Backend
		reason provider.Reason
	}{
		{"auto local up", provider.Config{OllamaURL: ollama.URL}, provider.PreferAuto, provider.BackendLocal, provider.ReasonLocalAvailable},
		{"auto local down with key", provider.Config{OllamaURL: dead, OpenAIKey: "k"}, provider.PreferAuto, provider.BackendRemote, provider.ReasonRemoteConfigured},
		{"auto nothing", provider.Config{OllamaURL: dead}, provider.PreferAuto, provider.BackendNone, provider.ReasonUnconfigured},
		{"explicit remote", provider.Config{OllamaURL: ollama.URL}, provider.PreferRemote, provider.BackendRemote, provider.ReasonRequested},
		{"explicit local", provider.Config{OllamaURL: dead}, provider.PreferLocal, provider.BackendLocal, provider.ReasonRequested},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := newGateway(tt.cfg).Resolve(context.Background(), provider.CompletionRequest{Preference: tt.pref})
			assert.Equal(t, tt.want, sel.Backend)
			assert.Equal(t, tt.reason, sel.Reason)
		})
	}
}

func TestStatus(t *testing.T) {
	ollama := newFakeOllama(t, false)

	st := newGateway(provider.Config{OllamaURL: ollama.URL, OpenAIKey: "sk-test"}).Status(context.Background())
	assert.True(t, st.LocalAvailable)
	assert.True(t, st.RemoteConfigured)

	st = newGateway(provider.Config{OllamaURL: deadURL(t)}).Status(context.Background())
	assert.False(t, st.LocalAvailable)
	assert.False(t, st.RemoteConfigured)
}

func TestCompletionRequest_UnmarshalJSON(t *testing.T) {
	var req provider.CompletionRequest
	err := json.Unmarshal([]byte(`{
		"mode": "llm",
		"prompt": "explain",
		"provider": "ollama",
		"ollama_url": "http://gpu-box:11434",
		"ollama_model": "codellama",
		"openai_api_key": "sk-x"
	}`), &req)
	require.NoError(t, err)

	assert.Equal(t, provider.ModeCompletion, req.Mode)
	assert.Equal(t, provider.PreferLocal, req.Preference)
	assert.Equal(t, "explain", req.Prompt)
	assert.Equal(t, "http://gpu-box:11434", req.Local.BaseURL)
	assert.Equal(t, "codellama", req.Local.Model)
	assert.Equal(t, "sk-x", req.Remote.APIKey)
}

func TestCompletionRequest_UnmarshalJSONDefaults(t *testing.T) {
	var req provider.CompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"x"}`), &req))
	assert.Equal(t, provider.ModeCompletion, req.Mode)
	assert.Equal(t, provider.PreferAuto, req.Preference)

	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"x","mode":"agent","provider":"openai"}`), &req))
	assert.Equal(t, provider.ModeAgent, req.Mode)
	assert.Equal(t, provider.PreferRemote, req.Preference)
}

func TestCompletionRequest_UnmarshalJSONRejectsUnknownValues(t *testing.T) {
	var req provider.CompletionRequest

	err := json.Unmarshal([]byte(`{"prompt":"x","provider":"bard"}`), &req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	err = json.Unmarshal([]byte(`{"prompt":"x","mode":"chat"}`), &req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
