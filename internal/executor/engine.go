package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SessionState is the lifecycle state of the engine's persistent session.
type SessionState int32

const (
	// SessionDead means no usable session exists; the next call starts one.
	SessionDead SessionState = iota
	// SessionReinitializing means a fresh session is being started.
	SessionReinitializing
	// SessionLive means a session is running and holds its namespace.
	SessionLive
)

func (s SessionState) String() string {
	switch s {
	case SessionLive:
		return "live"
	case SessionReinitializing:
		return "reinitializing"
	default:
		return "dead"
	}
}

// Engine dispatches execution requests to the one-shot runner or the
// persistent session.
//
// The engine is the only owner of the session. All session calls go through
// mu, so concurrent requests never interleave evaluation or output capture.
// One-shot runs do not take the lock.
type Engine struct {
	runner     Runner
	newSession SessionFactory
	logger     *slog.Logger

	mu      sync.Mutex
	session Session
	state   atomic.Int32
}

// NewEngine creates an Engine. The session is started lazily on first use.
func NewEngine(runner Runner, newSession SessionFactory, logger *slog.Logger) *Engine {
	return &Engine{
		runner:     runner,
		newSession: newSession,
		logger:     logger,
	}
}

var _ Executor = (*Engine)(nil)

// Execute routes python session requests to the persistent session and
// everything else to the one-shot runner.
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if lang, ok := LookupLanguage(req.Language); ok && lang.Name == Python.Name && req.UseSession {
		return e.runSession(ctx, req.Code), nil
	}
	return e.runner.Run(ctx, req.Language, req.Code)
}

// SessionState reports the session lifecycle state without waiting for an
// in-flight call.
func (e *Engine) SessionState() SessionState {
	return SessionState(e.state.Load())
}

// Restart discards the current session. The next call starts a fresh one.
func (e *Engine) Restart() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.discardLocked()
}

// Close stops the session, if any.
func (e *Engine) Close() error {
	return e.Restart()
}

// runSession evaluates code in the persistent session. The caller's
// cancellation is dropped: a client that hangs up must not cost every other
// call its namespace. Session calls end only on the session's own timeout.
func (e *Engine) runSession(ctx context.Context, code string) *ExecutionResult {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureSessionLocked(ctx); err != nil {
		e.logger.Error("failed to start session", slog.String("error", err.Error()))
		return &ExecutionResult{
			Stderr:   fmt.Sprintf("Failed to start session: %v", err),
			ExitCode: 1,
			Duration: time.Since(start),
		}
	}

	out, err := e.session.Run(ctx, code)
	if err != nil {
		// Timed out or the process died mid-call. The namespace is gone either
		// way; report what was captured and let the next call start over.
		e.logger.Warn("session call failed, session discarded", slog.String("error", err.Error()))
		_ = e.discardLocked()
		out.Stderr = joinDiagnostic(out.Stderr, sessionDiagnostic(err))
	}

	return &ExecutionResult{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: 0,
		Duration: time.Since(start),
		Faulted:  out.Faulted || err != nil,
	}
}

// ensureSessionLocked implements the Dead -> Reinitializing -> Live
// transition. Callers hold mu.
func (e *Engine) ensureSessionLocked(ctx context.Context) error {
	if e.session != nil && e.session.Alive() {
		return nil
	}
	if e.session != nil {
		e.logger.Info("session process is gone, starting a fresh one")
		_ = e.discardLocked()
	}

	e.state.Store(int32(SessionReinitializing))
	s, err := e.newSession(ctx)
	if err != nil {
		e.state.Store(int32(SessionDead))
		return err
	}
	e.session = s
	e.state.Store(int32(SessionLive))
	e.logger.Debug("session started")
	return nil
}

func (e *Engine) discardLocked() error {
	e.state.Store(int32(SessionDead))
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}

func sessionDiagnostic(err error) string {
	if errors.Is(err, ErrSessionTimeout) {
		return TimeoutMessage + " The session was restarted."
	}
	return fmt.Sprintf("Session terminated: %v", err)
}

func joinDiagnostic(stderr, msg string) string {
	if stderr == "" {
		return msg
	}
	if stderr[len(stderr)-1] != '\n' {
		stderr += "\n"
	}
	return stderr + msg
}
