//go:build linux || darwin

package tunnel

import (
	"os"
	"os/exec"
	"syscall"
)

// detach starts the child in a new session, without a controlling
// terminal.
func detach(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return nil
}

func interrupt(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
