// Package local runs one-shot scripts as host subprocesses.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/executor/proc"
	"github.com/sakif/code-runner/internal/executor/stream"
)

// Config holds the configuration for local execution.
type Config struct {
	// TempDir is where script files are written. Empty means os.TempDir().
	TempDir string
	// Timeout is the wall-clock limit for one run.
	Timeout time.Duration
	// Interpreters maps a canonical language name to the binary to invoke.
	// Missing entries fall back to the language's default interpreter.
	Interpreters map[string]string
}

// DefaultConfig mirrors the limits the editor plugin was built against.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
	}
}

// Runner implements executor.Runner with host interpreters.
type Runner struct {
	config Config
	logger *slog.Logger
}

var _ executor.Runner = (*Runner)(nil)

// New creates a local Runner.
func New(cfg Config, logger *slog.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Runner{config: cfg, logger: logger}
}

// Run writes code to a fresh script file and executes it with the language's
// interpreter. The script file is removed on every path.
func (r *Runner) Run(ctx context.Context, language, code string) (*executor.ExecutionResult, error) {
	start := time.Now()

	lang, ok := executor.LookupLanguage(language)
	if !ok {
		r.logger.Info("rejected unsupported language", slog.String("language", language))
		return executor.UnsupportedLanguage(language), nil
	}

	path, err := r.writeScript(lang, code)
	if err != nil {
		return nil, fmt.Errorf("local: writing script: %w", err)
	}
	defer r.removeScript(path)

	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	bin := r.interpreter(lang)
	cmd := exec.CommandContext(runCtx, bin, path)
	proc.Isolate(cmd)
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("local: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("local: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		r.logger.Error("failed to start interpreter",
			slog.String("interpreter", bin),
			slog.String("error", err.Error()),
		)
		return &executor.ExecutionResult{
			Stderr:   fmt.Sprintf("Failed to start %s: %v", bin, err),
			ExitCode: 1,
			Duration: time.Since(start),
		}, nil
	}

	out, errOut := stream.NewCollector(stdout, stderr).Drain(runCtx)
	waitErr := cmd.Wait()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logger.Info("one-shot run timed out",
			slog.String("language", lang.Name),
			slog.Duration("timeout", r.config.Timeout),
		)
		res := executor.TimedOut()
		res.Duration = time.Since(start)
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
			errOut += waitErr.Error()
		}
	}

	return &executor.ExecutionResult{
		Stdout:   out,
		Stderr:   errOut,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}

func (r *Runner) interpreter(lang executor.Language) string {
	if bin := r.config.Interpreters[lang.Name]; bin != "" {
		return bin
	}
	return lang.Interpreter
}

// writeScript creates a uniquely named file. O_EXCL makes a name collision an
// error instead of a silent overwrite of another run's script.
func (r *Runner) writeScript(lang executor.Language, code string) (string, error) {
	dir := r.config.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "run-"+xid.New().String()+lang.Extension)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (r *Runner) removeScript(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Error("failed to remove script file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
