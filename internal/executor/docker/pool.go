package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

var errPoolStopped = errors.New("docker: pool stopped")

// Pool keeps pre-warmed containers of one image. Each container serves a
// single run and is removed afterwards.
type Pool struct {
	cli        *client.Client
	image      string
	config     Config
	logger     *slog.Logger
	containers chan string
	refill     chan struct{} // one token per container the pool is short of
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewPool creates a pool for image. Call Start to begin warming containers.
func NewPool(cli *client.Client, image string, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cli:        cli,
		image:      image,
		config:     cfg,
		logger:     logger.With(slog.String("image", image)),
		containers: make(chan string, cfg.PoolSize),
		refill:     make(chan struct{}, cfg.PoolSize),
		done:       make(chan struct{}),
	}
}

// Start begins filling the pool in the background.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting container pool", slog.Int("poolSize", p.config.PoolSize))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop shuts down the manager and removes every idle container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		for {
			select {
			case id := <-p.containers:
				p.remove(id)
			default:
				p.logger.Info("container pool stopped")
				return
			}
		}
	})
}

// Acquire returns a ready container ID, blocking until one is available or
// ctx ends. The caller owns the container and must Release it.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Release removes a used container and asks the manager for a replacement.
func (p *Pool) Release(id string) {
	p.remove(id)
	select {
	case p.refill <- struct{}{}:
	default:
	}
}

// Idle reports how many warm containers are waiting.
func (p *Pool) Idle() int {
	return len(p.containers)
}

// manager creates one container per refill token. The pool starts empty and
// owes PoolSize containers.
func (p *Pool) manager() {
	defer p.wg.Done()

	for range cap(p.refill) {
		p.refill <- struct{}{}
	}

	for {
		select {
		case <-p.done:
			return
		case <-p.refill:
		}

		id, err := p.createWithRetry()
		if err != nil {
			return
		}

		select {
		case p.containers <- id:
		case <-p.done:
			p.remove(id)
			return
		}
	}
}

// createWithRetry keeps trying until a container starts or the pool stops.
// The delay doubles after each failure, up to maxBackoff.
func (p *Pool) createWithRetry() (string, error) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		id, err := p.create()
		if err == nil {
			return id, nil
		}
		p.logger.Error("failed to create pre-warmed container",
			slog.String("error", err.Error()),
			slog.Duration("retryIn", backoff),
		)

		select {
		case <-p.done:
			return "", errPoolStopped
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// create starts an idle container with no network, a read-only root
// filesystem and an unprivileged user. Code arrives later through exec.
func (p *Pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: p.image,
		Cmd:   []string{"sleep", "infinity"},
		User:  "nobody",
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}
	return resp.ID, nil
}

func (p *Pool) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
