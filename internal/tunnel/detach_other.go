//go:build !linux && !darwin

package tunnel

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) error {
	return ErrUnsupported
}

func interrupt(proc *os.Process) error {
	return proc.Kill()
}
