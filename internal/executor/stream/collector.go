// Package stream drains the stdout and stderr pipes of a running subprocess.
package stream

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// Origin tags which stream a chunk was read from.
type Origin int

const (
	Stdout Origin = iota
	Stderr
)

func (o Origin) String() string {
	if o == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Chunk is one read from a subprocess stream.
type Chunk struct {
	Origin Origin
	Data   []byte
}

// Collector moves bytes from two readers into a shared ordered queue.
//
// Two listener goroutines read continuously, so the subprocess never blocks on
// a full pipe no matter how rarely the consumer drains. The queue is unbounded.
type Collector struct {
	mu     sync.Mutex
	queue  []Chunk
	open   int
	notify chan struct{}
	done   chan struct{}
}

// NewCollector starts listening on stdout and stderr. A nil reader counts as
// already closed.
func NewCollector(stdout, stderr io.Reader) *Collector {
	c := &Collector{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	readers := []struct {
		origin Origin
		r      io.Reader
	}{
		{Stdout, stdout},
		{Stderr, stderr},
	}
	for _, rd := range readers {
		if rd.r != nil {
			c.open++
		}
	}
	if c.open == 0 {
		close(c.done)
		return c
	}
	for _, rd := range readers {
		if rd.r != nil {
			go c.listen(rd.origin, rd.r)
		}
	}
	return c
}

func (c *Collector) listen(origin Origin, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.push(Chunk{Origin: origin, Data: data})
		}
		if err != nil {
			break
		}
	}

	c.mu.Lock()
	c.open--
	if c.open == 0 {
		close(c.done)
	}
	c.mu.Unlock()
	c.signal()
}

func (c *Collector) push(chunk Chunk) {
	c.mu.Lock()
	c.queue = append(c.queue, chunk)
	c.mu.Unlock()
	c.signal()
}

func (c *Collector) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Collector) take() []Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunks := c.queue
	c.queue = nil
	return chunks
}

// Closed reports whether both streams reached EOF.
func (c *Collector) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Drain blocks until both streams reach EOF or ctx is done, and returns
// everything read so far. On ctx expiry the result holds whatever arrived
// before the deadline.
func (c *Collector) Drain(ctx context.Context) (stdout, stderr string) {
	var out, errOut strings.Builder
	for {
		appendChunks(&out, &errOut, c.take())
		select {
		case <-c.done:
			appendChunks(&out, &errOut, c.take())
			return out.String(), errOut.String()
		case <-ctx.Done():
			return out.String(), errOut.String()
		case <-c.notify:
		}
	}
}

// DrainFor is the best-effort drain used by interactive sessions. It returns
// once no new chunk has arrived for quiet, once max has elapsed, or once both
// streams are closed.
//
// The result is not deterministic: output the process produces after the
// window closes stays queued and is returned by the next drain, so one
// submission's output can be split across two calls.
func (c *Collector) DrainFor(quiet, max time.Duration) (stdout, stderr string) {
	var out, errOut strings.Builder

	idle := time.NewTimer(quiet)
	defer idle.Stop()
	deadline := time.NewTimer(max)
	defer deadline.Stop()

	for {
		if chunks := c.take(); len(chunks) > 0 {
			appendChunks(&out, &errOut, chunks)
			idle.Reset(quiet)
		}
		select {
		case <-c.notify:
		case <-idle.C:
			appendChunks(&out, &errOut, c.take())
			return out.String(), errOut.String()
		case <-deadline.C:
			appendChunks(&out, &errOut, c.take())
			return out.String(), errOut.String()
		case <-c.done:
			appendChunks(&out, &errOut, c.take())
			return out.String(), errOut.String()
		}
	}
}

func appendChunks(out, errOut *strings.Builder, chunks []Chunk) {
	for _, ch := range chunks {
		if ch.Origin == Stderr {
			errOut.Write(ch.Data)
		} else {
			out.Write(ch.Data)
		}
	}
}
