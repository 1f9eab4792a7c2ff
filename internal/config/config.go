// Package config loads server settings from environment variables.
//
// WHY caarlos0/env?
// The first version of main.go read every variable by hand with os.Getenv and
// strconv. With a dozen settings that gets noisy and every default lives far from
// the field it belongs to. env.ParseAs fills a struct from its tags instead, so
// the variable name, the default and the Go type sit on one line.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for the runner.
type Config struct {
	// Port is the HTTP listen port. The editor plugin defaults to http://localhost:8000/run.
	Port int `env:"PORT" envDefault:"8000"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"RUNNER_LOG_LEVEL" envDefault:"info"`
	// LogFormat is text or json.
	LogFormat string `env:"RUNNER_LOG_FORMAT" envDefault:"text"`

	// TempDir holds one-shot script files. Empty means os.TempDir().
	TempDir string `env:"RUNNER_TEMP_DIR"`
	// RunTimeout bounds a one-shot run.
	RunTimeout time.Duration `env:"RUNNER_RUN_TIMEOUT" envDefault:"10s"`
	// PythonBin and NodeBin are the interpreters looked up on PATH.
	PythonBin string `env:"RUNNER_PYTHON_BIN" envDefault:"python3"`
	NodeBin   string `env:"RUNNER_NODE_BIN" envDefault:"node"`

	// Sandbox selects the one-shot runner: "local" or "docker".
	Sandbox string `env:"RUNNER_SANDBOX" envDefault:"local"`

	// SessionMode selects the persistent session realization: "driver" or "repl".
	SessionMode string `env:"RUNNER_SESSION_MODE" envDefault:"driver"`
	// SessionTimeout bounds a single session call.
	SessionTimeout time.Duration `env:"RUNNER_SESSION_TIMEOUT" envDefault:"30s"`
	// DrainQuiet and DrainMax shape the time-boxed drain of the repl session.
	DrainQuiet time.Duration `env:"RUNNER_DRAIN_QUIET" envDefault:"50ms"`
	DrainMax   time.Duration `env:"RUNNER_DRAIN_MAX" envDefault:"5s"`

	// Provider defaults. Each completion request may override them.
	OllamaURL   string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"llama2"`
	OpenAIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIURL   string `env:"OPENAI_URL" envDefault:"https://api.openai.com/v1/chat/completions"`
	// OpenAITemperature is unset unless OPENAI_TEMPERATURE is given; 0 is a valid value.
	OpenAITemperature *float64 `env:"OPENAI_TEMPERATURE"`

	// HistoryDB enables run history when set (":memory:" is allowed).
	HistoryDB string `env:"RUNNER_HISTORY_DB"`
	// JWTSecret enables bearer-token auth on the API when set.
	JWTSecret string `env:"RUNNER_JWT_SECRET"`
	// RateLimit is requests per second across run and llm endpoints; 0 disables it.
	RateLimit float64 `env:"RUNNER_RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"RUNNER_RATE_BURST" envDefault:"10"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"RUNNER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses environment variables into Config and checks enum-like fields.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot act on.
func (c Config) Validate() error {
	switch c.Sandbox {
	case "local", "docker":
	default:
		return fmt.Errorf("config: RUNNER_SANDBOX must be local or docker, got %q", c.Sandbox)
	}
	switch c.SessionMode {
	case "driver", "repl":
	default:
		return fmt.Errorf("config: RUNNER_SESSION_MODE must be driver or repl, got %q", c.SessionMode)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("config: RUNNER_RUN_TIMEOUT must be positive")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("config: RUNNER_SESSION_TIMEOUT must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT out of range: %d", c.Port)
	}
	return nil
}
