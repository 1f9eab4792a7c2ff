// Package docker runs one-shot code inside pre-warmed, network-less
// containers.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/code-runner/internal/executor"
)

// Runner implements executor.Runner using Docker containers.
type Runner struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pools  map[string]*Pool
}

var _ executor.Runner = (*Runner)(nil)

// New connects to the Docker daemon, pulls every configured image and starts
// one container pool per language.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Runner, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultConfig().AcquireTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = DefaultConfig().PullTimeout
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, cfg.PullTimeout)
	defer cancel()

	r := &Runner{cli: cli, config: cfg, logger: logger, pools: make(map[string]*Pool)}
	for language, ref := range cfg.Images {
		lang, ok := executor.LookupLanguage(language)
		if !ok {
			r.Close()
			return nil, fmt.Errorf("docker: no language %q for image %s", language, ref)
		}
		if err := pullImage(pullCtx, cli, ref, logger); err != nil {
			r.Close()
			return nil, err
		}
		pool := NewPool(cli, ref, cfg, logger)
		pool.Start()
		r.pools[lang.Name] = pool
	}
	return r, nil
}

func pullImage(ctx context.Context, cli *client.Client, ref string, logger *slog.Logger) error {
	logger.Info("ensuring docker image is available", slog.String("image", ref))
	reader, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	// The pull finishes only once the progress stream is consumed.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	logger.Info("docker image is ready", slog.String("image", ref))
	return nil
}

// Close stops all pools and the docker client.
func (r *Runner) Close() error {
	for _, pool := range r.pools {
		pool.Stop()
	}
	return r.cli.Close()
}

// Run executes code with the language's interpreter inside a fresh container.
// The source is passed inline (`python -c`, `node -e`) because container root
// filesystems are read-only.
func (r *Runner) Run(ctx context.Context, language, code string) (*executor.ExecutionResult, error) {
	start := time.Now()

	lang, ok := executor.LookupLanguage(language)
	pool := r.pools[lang.Name]
	if !ok || pool == nil {
		r.logger.Info("rejected unsupported language", slog.String("language", language))
		return executor.UnsupportedLanguage(language), nil
	}

	// Waiting for a warm container has its own bound; the run timeout starts
	// once the code has somewhere to run.
	acquireCtx, acquireCancel := context.WithTimeout(ctx, r.config.AcquireTimeout)
	containerID, err := pool.Acquire(acquireCtx)
	acquireCancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("no warm container became available",
			slog.String("language", lang.Name),
			slog.Duration("waited", r.config.AcquireTimeout),
		)
		res := executor.TimedOut()
		res.Duration = time.Since(start)
		return res, nil
	}
	// Killing the container is also how a timed-out exec is stopped.
	defer pool.Release(containerID)

	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	execResp, err := r.cli.ContainerExecCreate(runCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{lang.Interpreter, lang.InlineFlag, code},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := r.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("sandboxed run timed out",
			slog.String("language", lang.Name),
			slog.Duration("timeout", r.config.Timeout),
		)
		res := executor.TimedOut()
		res.Duration = time.Since(start)
		return res, nil
	}

	inspectCtx, inspectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer inspectCancel()
	inspectResp, err := r.cli.ContainerExecInspect(inspectCtx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	r.logger.Debug("sandboxed run finished",
		slog.String("language", lang.Name),
		slog.Int("exitCode", inspectResp.ExitCode),
		slog.Int("idleContainers", pool.Idle()),
	)
	return &executor.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspectResp.ExitCode,
		Duration: time.Since(start),
	}, nil
}
