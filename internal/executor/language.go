package executor

import (
	"fmt"
	"strings"
)

// Language describes how one supported language is executed.
type Language struct {
	// Name is the canonical identifier used in requests.
	Name string
	// Extension is appended to one-shot script files.
	Extension string
	// Interpreter is the default binary invoked as `<interpreter> <script>`.
	Interpreter string
	// InlineFlag runs source passed as an argument (`python -c`, `node -e`).
	InlineFlag string
}

var (
	Python = Language{Name: "python", Extension: ".py", Interpreter: "python3", InlineFlag: "-c"}
	// JavaScript runs on Node.js.
	JavaScript = Language{Name: "javascript", Extension: ".js", Interpreter: "node", InlineFlag: "-e"}
)

var languages = map[string]Language{
	"python":     Python,
	"py":         Python,
	"javascript": JavaScript,
	"js":         JavaScript,
	"node":       JavaScript,
}

// LookupLanguage resolves a request language, including its aliases.
func LookupLanguage(name string) (Language, bool) {
	lang, ok := languages[strings.ToLower(strings.TrimSpace(name))]
	return lang, ok
}

// UnsupportedLanguage builds the synthetic result for a language outside the
// fixed set. No process is spawned for it.
func UnsupportedLanguage(name string) *ExecutionResult {
	return &ExecutionResult{
		Stderr:   fmt.Sprintf("Unsupported language: %s", name),
		ExitCode: 1,
	}
}

// TimedOut builds the synthetic result for a run killed on timeout.
func TimedOut() *ExecutionResult {
	return &ExecutionResult{
		Stderr:   TimeoutMessage,
		ExitCode: 1,
	}
}
