// Package model defines the records the server keeps about past requests.
package model

import "time"

// RunKind says which endpoint produced a Run.
type RunKind string

const (
	KindExecute  RunKind = "execute"
	KindComplete RunKind = "complete"
)

// Run is one history entry. It records the shape and outcome of a request,
// never the submitted code, prompt or output.
type Run struct {
	ID   string  `json:"id"`
	Kind RunKind `json:"kind"`

	// Execution fields.
	Language string `json:"language,omitempty"`
	Session  bool   `json:"session,omitempty"`
	ExitCode int    `json:"exitCode"`
	Faulted  bool   `json:"faulted,omitempty"`

	// Completion fields. Provider is empty when no backend answered.
	Mode     string `json:"mode,omitempty"`
	Provider string `json:"provider,omitempty"`
	Failure  string `json:"failure,omitempty"`

	CodeSize   int       `json:"codeSize"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}
