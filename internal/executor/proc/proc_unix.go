//go:build unix

// Package proc configures subprocesses so a timeout kills everything they spawned.
package proc

import (
	"os/exec"
	"syscall"
)

// NewGroup starts cmd in its own process group so Kill reaches its children.
// It works for commands built with exec.Command.
func NewGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Isolate is NewGroup plus a Cancel hook that kills the whole group when the
// command's context ends. cmd must come from exec.CommandContext; Start
// rejects a Cancel hook on any other command.
func Isolate(cmd *exec.Cmd) {
	NewGroup(cmd)
	cmd.Cancel = func() error {
		return Kill(cmd)
	}
}

// Kill force-terminates the process group of a started cmd.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
