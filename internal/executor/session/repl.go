package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/sakif/code-runner/internal/executor"
)

// REPL feeds code to `python -q -i -u` over stdin and collects output with
// time-boxed drains.
//
// After each submission the REPL writes an end marker to stderr. Run drains
// until the marker shows up, the interpreter exits, or Options.Timeout passes;
// on timeout the interpreter is killed. Stdout and stderr travel on separate
// pipes, so stdout that arrives after the marker's drain window is still
// reported with the next call. Code that reads input() consumes the following
// lines of stdin, including the marker, and ends in a timeout. Prefer Driver
// unless interactive-interpreter behaviour is required.
type REPL struct {
	opts   Options
	logger *slog.Logger
	proc   *process
	calls  int
}

var _ executor.Session = (*REPL)(nil)

var errInterpreterExited = errors.New("session: interpreter exited")

// NewREPL starts an interactive interpreter.
func NewREPL(_ context.Context, opts Options, logger *slog.Logger) (*REPL, error) {
	opts = opts.withDefaults()

	p, err := startProcess(exec.Command(opts.Python, "-q", "-i", "-u"))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	r := &REPL{opts: opts, logger: logger, proc: p}
	// Discard the first prompt so it is not reported as output of call one.
	p.collector.DrainFor(opts.DrainQuiet, opts.DrainMax)
	return r, nil
}

// Run writes code to the interpreter, followed by a blank line that closes
// any open indented block and the end-marker statement.
func (r *REPL) Run(ctx context.Context, code string) (executor.SessionOutput, error) {
	if err := ctx.Err(); err != nil {
		return executor.SessionOutput{}, err
	}

	r.calls++
	marker := fmt.Sprintf("\x1e%d\x1e", r.calls)

	code = expandTabs(code)
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	// "and None" keeps the interpreter from echoing write's return value.
	code += fmt.Sprintf("\n__import__('sys').stderr.write(%q) and None\n", marker+"\n")

	if _, err := r.proc.stdin.Write([]byte(code)); err != nil {
		return executor.SessionOutput{}, fmt.Errorf("session: writing to interpreter: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var stdout, stderr strings.Builder
	for {
		out, errOut := r.proc.collector.DrainFor(r.opts.DrainQuiet, r.opts.DrainMax)
		stdout.WriteString(out)
		stderr.WriteString(errOut)

		if before, _, found := strings.Cut(stderr.String(), marker); found {
			return r.output(stdout.String(), before), nil
		}
		if !r.proc.alive() {
			return r.output(stdout.String(), stderr.String()), errInterpreterExited
		}
		if runCtx.Err() != nil {
			r.proc.kill()
			r.logger.Warn("repl session call timed out", slog.Duration("timeout", r.opts.Timeout))
			return r.output(stdout.String(), stderr.String()),
				fmt.Errorf("session: no end marker within deadline: %w", executor.ErrSessionTimeout)
		}
	}
}

func (r *REPL) output(stdout, stderr string) executor.SessionOutput {
	stderr = stripPrompts(stderr)
	return executor.SessionOutput{
		Stdout:  stdout,
		Stderr:  stderr,
		Faulted: strings.Contains(stderr, "Traceback (most recent call last)") || strings.Contains(stderr, "SyntaxError"),
	}
}

// Alive reports whether the interpreter is still running.
func (r *REPL) Alive() bool {
	return r.proc.alive()
}

// Close kills the interpreter.
func (r *REPL) Close() error {
	return r.proc.close()
}

// stripPrompts removes the ">>> " and "... " prompts the interactive
// interpreter writes to stderr.
func stripPrompts(stderr string) string {
	lines := strings.SplitAfter(stderr, "\n")
	var b strings.Builder
	for _, line := range lines {
		for {
			trimmed := strings.TrimPrefix(strings.TrimPrefix(line, ">>> "), "... ")
			if trimmed == line {
				break
			}
			line = trimmed
		}
		if line == ">>>" || line == "..." {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// Factory returns an executor.SessionFactory for the given realization,
// "driver" or "repl".
func Factory(mode string, opts Options, logger *slog.Logger) executor.SessionFactory {
	if mode == "repl" {
		return func(ctx context.Context) (executor.Session, error) {
			r, err := NewREPL(ctx, opts, logger)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	return func(ctx context.Context) (executor.Session, error) {
		d, err := NewDriver(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
