// SPDX-License-Identifier: MIT

// Package procgroup manages subprocess lifecycles as whole process groups so
// that engine children cannot outlive their parent.
package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

// Terminate attempts to gracefully stop a process group: SIGTERM, wait up to
// grace via waitCh, then SIGKILL and drain. The process MUST have been
// spawned with procgroup.Set(cmd). Safe to call on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Kill on an already-finished process is a harmless ESRCH.
	_ = Kill(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
		_ = Kill(cmd, syscall.SIGKILL)
		// Always drain waitCh; SIGKILL frees a blocked process.
		return <-waitCh
	}
}
