// Package session keeps a long-lived Python interpreter whose namespace
// survives across calls.
package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sakif/code-runner/internal/executor/proc"
	"github.com/sakif/code-runner/internal/executor/stream"
)

// process is the interpreter subprocess shared by both session realizations.
type process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	outR      *os.File
	errR      *os.File
	collector *stream.Collector
	exited    chan struct{}
}

// startProcess starts cmd with stdout and stderr on pipes owned by a
// Collector. The pipes are created here rather than with StdoutPipe so that
// Wait never closes them under the collector.
func startProcess(cmd *exec.Cmd) (*process, error) {
	proc.NewGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err = cmd.Start()
	// The child holds its own copies now.
	outW.Close()
	errW.Close()
	if err != nil {
		outR.Close()
		errR.Close()
		return nil, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}

	p := &process{
		cmd:       cmd,
		stdin:     stdin,
		outR:      outR,
		errR:      errR,
		collector: stream.NewCollector(outR, errR),
		exited:    make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// kill terminates the interpreter and everything it spawned, then waits
// briefly for the exit to be observed.
func (p *process) kill() {
	_ = proc.Kill(p.cmd)
	select {
	case <-p.exited:
	case <-time.After(2 * time.Second):
	}
}

func (p *process) close() error {
	p.stdin.Close()
	p.kill()
	p.outR.Close()
	p.errR.Close()
	return nil
}

// expandTabs normalises indentation so code written with tab-indenting
// editors evaluates the same as space-indented code.
func expandTabs(code string) string {
	return strings.ReplaceAll(code, "\t", "    ")
}
