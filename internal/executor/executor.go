package executor

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrSessionTimeout is returned by a Session whose call exceeded its deadline.
// The session process has been killed by then.
var ErrSessionTimeout = errors.New("session call timed out")

// TimeoutMessage is the stderr diagnostic for runs killed on timeout.
const TimeoutMessage = "Execution timed out."

// ExecutionRequest represents a request to execute source code.
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	// UseSession routes python code to the persistent session. The editor
	// plugin sends it as "kernel".
	UseSession bool `json:"kernel"`
}

// UnmarshalJSON accepts "useSession" as an alias for "kernel".
func (r *ExecutionRequest) UnmarshalJSON(data []byte) error {
	type plain ExecutionRequest
	aux := struct {
		*plain
		UseSession *bool `json:"useSession"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.UseSession != nil {
		r.UseSession = r.UseSession || *aux.UseSession
	}
	return nil
}

// ExecutionResult represents the output and status of the code execution.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	// Faulted marks a session call whose evaluation raised. Session runs keep
	// ExitCode 0 regardless, so this is the only way to tell them apart.
	Faulted bool `json:"faulted,omitempty"`
}

// SessionOutput is what one persistent-session call produced.
type SessionOutput struct {
	Stdout  string
	Stderr  string
	Faulted bool
}

// Executor represents the core interface for running code.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// Runner executes code once in a fresh process.
type Runner interface {
	Run(ctx context.Context, language, code string) (*ExecutionResult, error)
}

// Session evaluates successive fragments against one long-lived namespace.
//
// Run may return partial output together with an error; after an error the
// session is considered dead and must be replaced.
type Session interface {
	Run(ctx context.Context, code string) (SessionOutput, error)
	Alive() bool
	Close() error
}

// SessionFactory starts a brand-new session.
type SessionFactory func(ctx context.Context) (Session, error)
