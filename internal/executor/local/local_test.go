package local_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/executor/local"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not on PATH", name)
	}
}

func newTestRunner(t *testing.T, timeout time.Duration) (*local.Runner, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	dir := t.TempDir()
	return local.New(local.Config{TempDir: dir, Timeout: timeout}, logger), dir
}

func assertNoScripts(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "script files left behind")
}

func TestRunner_Python(t *testing.T) {
	requireBinary(t, "python3")
	runner, dir := newTestRunner(t, 10*time.Second)
	ctx := context.Background()

	t.Run("successful execution", func(t *testing.T) {
		res, err := runner.Run(ctx, "python", `print("Hello from Python!")`)
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "Hello from Python!\n", res.Stdout)
		assert.Empty(t, res.Stderr)
		assert.Greater(t, res.Duration, time.Duration(0))
	})

	t.Run("exit code is reported verbatim", func(t *testing.T) {
		res, err := runner.Run(ctx, "python", "import sys\nsys.exit(3)")
		require.NoError(t, err)
		assert.Equal(t, 3, res.ExitCode)
	})

	t.Run("runtime error goes to stderr", func(t *testing.T) {
		res, err := runner.Run(ctx, "python", `raise ValueError("boom")`)
		require.NoError(t, err)
		assert.Equal(t, 1, res.ExitCode)
		assert.Contains(t, res.Stderr, "ValueError: boom")
	})

	t.Run("multiline logic", func(t *testing.T) {
		res, err := runner.Run(ctx, "python", strings.Join([]string{
			"def fib(n):",
			"    if n <= 1: return n",
			"    return fib(n-1) + fib(n-2)",
			"print(fib(10))",
		}, "\n"))
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "55\n", res.Stdout)
	})

	assertNoScripts(t, dir)
}

func TestRunner_JavaScript(t *testing.T) {
	requireBinary(t, "node")
	runner, dir := newTestRunner(t, 10*time.Second)

	res, err := runner.Run(context.Background(), "javascript", "console.log('Hello from JS!');\nconsole.log(10 * 2);")
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "Hello from JS!\n20\n", res.Stdout)
	assertNoScripts(t, dir)
}

func TestRunner_UnsupportedLanguage(t *testing.T) {
	runner, dir := newTestRunner(t, time.Second)

	res, err := runner.Run(context.Background(), "cobol", "DISPLAY 'HI'.")
	require.NoError(t, err)

	assert.Equal(t, 1, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Equal(t, "Unsupported language: cobol", res.Stderr)
	assertNoScripts(t, dir)
}

func TestRunner_Timeout(t *testing.T) {
	requireBinary(t, "python3")
	runner, dir := newTestRunner(t, 500*time.Millisecond)

	start := time.Now()
	res, err := runner.Run(context.Background(), "python", "import time\nprint('before', flush=True)\ntime.sleep(30)")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, res.ExitCode)
	assert.Empty(t, res.Stdout)
	assert.Equal(t, executor.TimeoutMessage, res.Stderr)
	assertNoScripts(t, dir)
}

func TestRunner_MissingInterpreter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	dir := t.TempDir()
	runner := local.New(local.Config{
		TempDir:      dir,
		Timeout:      time.Second,
		Interpreters: map[string]string{"python": "no-such-interpreter-for-tests"},
	}, logger)

	res, err := runner.Run(context.Background(), "python", "print(1)")
	require.NoError(t, err)

	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "no-such-interpreter-for-tests")
	assertNoScripts(t, dir)
}

func TestRunner_ConcurrentRunsAreIndependent(t *testing.T) {
	requireBinary(t, "python3")
	runner, dir := newTestRunner(t, 10*time.Second)

	var wg sync.WaitGroup
	results := make([]*executor.ExecutionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := runner.Run(context.Background(), "python", fmt.Sprintf("print(%d)", i))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, fmt.Sprintf("%d\n", i), res.Stdout)
	}
	assertNoScripts(t, dir)
}
