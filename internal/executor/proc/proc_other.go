//go:build !unix

package proc

import "os/exec"

// NewGroup leaves cmd unchanged; Kill only reaches the direct child.
func NewGroup(cmd *exec.Cmd) {}

// Isolate leaves cmd unchanged; context cancellation kills the direct child.
func Isolate(cmd *exec.Cmd) {}

// Kill force-terminates the started cmd.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
