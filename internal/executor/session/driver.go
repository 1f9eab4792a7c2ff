package session

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/sakif/code-runner/internal/executor"
)

//go:embed driver.py
var driverSource string

// Options configures session processes.
type Options struct {
	// Python is the interpreter binary.
	Python string
	// Timeout bounds one call. On expiry the process is killed.
	Timeout time.Duration
	// StartTimeout bounds interpreter startup.
	StartTimeout time.Duration
	// DrainQuiet and DrainMax shape the repl session's time-boxed drain.
	DrainQuiet time.Duration
	DrainMax   time.Duration
	// StrayQuiet is how long a driver call waits for bytes written straight to
	// the process's stdout or stderr (subprocesses, os.write) after its reply.
	StrayQuiet time.Duration
}

// DefaultOptions returns the settings used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Python:       "python3",
		Timeout:      30 * time.Second,
		StartTimeout: 10 * time.Second,
		DrainQuiet:   50 * time.Millisecond,
		DrainMax:     5 * time.Second,
		StrayQuiet:   10 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Python == "" {
		o.Python = d.Python
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = d.StartTimeout
	}
	if o.DrainQuiet <= 0 {
		o.DrainQuiet = d.DrainQuiet
	}
	if o.DrainMax <= 0 {
		o.DrainMax = d.DrainMax
	}
	if o.StrayQuiet <= 0 {
		o.StrayQuiet = d.StrayQuiet
	}
	return o
}

type driverRequest struct {
	Code string `json:"code"`
}

type driverReply struct {
	Ready  bool   `json:"ready"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Fault  bool   `json:"fault"`
}

type replyOrErr struct {
	reply driverReply
	err   error
}

// Driver evaluates code in a Python process running an embedded driver.
//
// Each call is one JSON request line on stdin and one JSON reply line on a
// dedicated pipe (fd 3 in the child). The driver redirects stdout and stderr
// for the duration of the call, so a reply holds exactly that call's output.
type Driver struct {
	opts    Options
	logger  *slog.Logger
	proc    *process
	replies *bufio.Reader
	respR   *os.File
}

var _ executor.Session = (*Driver)(nil)

// NewDriver starts the interpreter and waits for the driver's ready frame.
func NewDriver(ctx context.Context, opts Options, logger *slog.Logger) (*Driver, error) {
	opts = opts.withDefaults()

	respR, respW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("session: reply pipe: %w", err)
	}

	cmd := exec.Command(opts.Python, "-u", "-c", driverSource)
	cmd.ExtraFiles = []*os.File{respW}

	p, err := startProcess(cmd)
	respW.Close()
	if err != nil {
		respR.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	d := &Driver{
		opts:    opts,
		logger:  logger,
		proc:    p,
		replies: bufio.NewReader(respR),
		respR:   respR,
	}

	startCtx, cancel := context.WithTimeout(ctx, opts.StartTimeout)
	defer cancel()

	ready, err := d.await(startCtx, nil)
	if err == nil && !ready.Ready {
		err = errors.New("unexpected first frame")
	}
	if err != nil {
		_, stderr := p.collector.DrainFor(opts.StrayQuiet, opts.StrayQuiet*5)
		d.Close()
		if stderr != "" {
			return nil, fmt.Errorf("session: driver did not start: %w: %s", err, stderr)
		}
		return nil, fmt.Errorf("session: driver did not start: %w", err)
	}

	logger.Debug("session driver started", slog.Int("pid", cmd.Process.Pid))
	return d, nil
}

// Run evaluates code against the persistent namespace. Runtime faults are part
// of the returned output, not errors; an error means the process is no longer
// usable (timeout, crash, exit).
func (d *Driver) Run(ctx context.Context, code string) (executor.SessionOutput, error) {
	frame, err := json.Marshal(driverRequest{Code: expandTabs(code)})
	if err != nil {
		return executor.SessionOutput{}, fmt.Errorf("session: encoding request: %w", err)
	}
	frame = append(frame, '\n')

	runCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	reply, err := d.await(runCtx, frame)
	strayOut, strayErr := d.proc.collector.DrainFor(d.opts.StrayQuiet, d.opts.StrayQuiet*5)
	if err != nil {
		return executor.SessionOutput{Stdout: strayOut, Stderr: strayErr}, err
	}

	return executor.SessionOutput{
		Stdout:  reply.Stdout + strayOut,
		Stderr:  reply.Stderr + strayErr,
		Faulted: reply.Fault,
	}, nil
}

// await optionally writes a request frame and reads one reply, killing the
// process if ctx ends first.
func (d *Driver) await(ctx context.Context, frame []byte) (driverReply, error) {
	ch := make(chan replyOrErr, 1)
	go func() {
		if frame != nil {
			if _, err := d.proc.stdin.Write(frame); err != nil {
				ch <- replyOrErr{err: fmt.Errorf("writing request: %w", err)}
				return
			}
		}
		line, err := d.replies.ReadBytes('\n')
		if err != nil {
			ch <- replyOrErr{err: fmt.Errorf("reading reply: %w", err)}
			return
		}
		var reply driverReply
		if err := json.Unmarshal(line, &reply); err != nil {
			ch <- replyOrErr{err: fmt.Errorf("decoding reply: %w", err)}
			return
		}
		ch <- replyOrErr{reply: reply}
	}()

	select {
	case r := <-ch:
		return r.reply, r.err
	case <-ctx.Done():
		d.proc.kill()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return driverReply{}, fmt.Errorf("session: no reply within deadline: %w", executor.ErrSessionTimeout)
		}
		return driverReply{}, ctx.Err()
	}
}

// Alive reports whether the interpreter is still running.
func (d *Driver) Alive() bool {
	return d.proc.alive()
}

// Close kills the interpreter and releases its pipes.
func (d *Driver) Close() error {
	err := d.proc.close()
	d.respR.Close()
	return err
}
