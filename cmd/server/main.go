// Package main is the entry point for the code runner server.
//
// The main package stays minimal. It:
// 1. Reads configuration from the environment (internal/config)
// 2. Creates dependencies (logger, runner, session engine, gateway, history)
// 3. Starts the HTTP server
//
// All actual logic lives in the internal packages.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/code-runner/internal/config"
	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/executor/docker"
	"github.com/sakif/code-runner/internal/executor/local"
	"github.com/sakif/code-runner/internal/executor/session"
	"github.com/sakif/code-runner/internal/provider"
	"github.com/sakif/code-runner/internal/repository"
	sqliteRepo "github.com/sakif/code-runner/internal/repository/sqlite"
	"github.com/sakif/code-runner/internal/server"
	"github.com/sakif/code-runner/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	// === ONE-SHOT RUNNER ===
	var runner executor.Runner
	switch cfg.Sandbox {
	case "docker":
		dcfg := docker.DefaultConfig()
		dcfg.Timeout = cfg.RunTimeout
		sandbox, err := docker.New(context.Background(), dcfg, logger)
		if err != nil {
			return err
		}
		closers = append(closers, sandbox)
		runner = sandbox
	default:
		runner = local.New(local.Config{
			TempDir: cfg.TempDir,
			Timeout: cfg.RunTimeout,
			Interpreters: map[string]string{
				executor.Python.Name:     cfg.PythonBin,
				executor.JavaScript.Name: cfg.NodeBin,
			},
		}, logger)
	}

	// === PERSISTENT SESSION ===
	// The engine starts the interpreter on the first session call.
	engine := executor.NewEngine(runner, session.Factory(cfg.SessionMode, session.Options{
		Python:     cfg.PythonBin,
		Timeout:    cfg.SessionTimeout,
		DrainQuiet: cfg.DrainQuiet,
		DrainMax:   cfg.DrainMax,
	}, logger), logger)
	// The session goes first so no interpreter outlives the server.
	closers = append([]io.Closer{engine}, closers...)

	// === PROVIDER GATEWAY ===
	pcfg := provider.DefaultConfig()
	pcfg.OllamaURL = cfg.OllamaURL
	pcfg.OllamaModel = cfg.OllamaModel
	pcfg.OpenAIKey = cfg.OpenAIKey
	pcfg.OpenAIModel = cfg.OpenAIModel
	pcfg.OpenAIURL = cfg.OpenAIURL
	if cfg.OpenAITemperature != nil {
		pcfg.Temperature = cfg.OpenAITemperature
	}
	gateway := provider.NewGateway(pcfg, logger)

	// === HISTORY (optional) ===
	var runs repository.RunRepository
	if cfg.HistoryDB != "" {
		if cfg.HistoryDB != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o755); err != nil {
				cleanup()
				return err
			}
		}
		db, err := sqliteRepo.New(cfg.HistoryDB)
		if err != nil {
			cleanup()
			return err
		}
		closers = append(closers, db)
		runs = db
		logger.Info("run history enabled", slog.String("database", cfg.HistoryDB))
	}

	srv, err := server.New(server.Config{
		Port:            cfg.Port,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		JWTSecret:       cfg.JWTSecret,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, server.Deps{
		Executor:  service.NewExecutionService(engine, runs, logger),
		Completer: service.NewCompletionService(gateway, runs, logger),
		History:   service.NewHistoryService(runs),
		Backends:  gateway,
		Session:   engine,
		Closers:   closers,
	}, logger)
	if err != nil {
		cleanup()
		return err
	}

	return srv.Start()
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
