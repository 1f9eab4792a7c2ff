package docker

import (
	"time"
)

// Config holds the configuration for sandboxed execution.
type Config struct {
	// Images maps a canonical language name to the image its code runs in.
	// Languages without an image are reported as unsupported.
	Images map[string]string
	// MemoryLimit is the maximum amount of memory a container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs a container can use.
	CPULimit float64
	// Timeout is the wall-clock limit for one run.
	Timeout time.Duration
	// AcquireTimeout bounds the wait for a warm container. It is not part of
	// Timeout; an exhausted pool reports the same result as a timed-out run.
	AcquireTimeout time.Duration
	// PoolSize is the number of pre-warmed containers kept per image.
	PoolSize int
	// PullTimeout bounds pulling all images at startup.
	PullTimeout time.Duration
}

// DefaultConfig returns small alpine images with the same run limit as the
// host runner.
func DefaultConfig() Config {
	return Config{
		Images: map[string]string{
			"python":     "python:3.12-alpine",
			"javascript": "node:22-alpine",
		},
		// 128 MB
		MemoryLimit:    128 * 1024 * 1024,
		CPULimit:       0.5,
		Timeout:        10 * time.Second,
		AcquireTimeout: 30 * time.Second,
		PoolSize:       2,
		PullTimeout:    5 * time.Minute,
	}
}
