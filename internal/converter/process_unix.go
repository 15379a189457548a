//go:build !windows

package converter

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the command in its own process group and
// makes context cancellation kill the whole group (negative PID).
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
