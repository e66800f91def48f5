//go:build !windows

package jobs

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup configures the command to run in its own process group.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	// the group id equals the leader pid with Setpgid
	return syscall.Kill(-cmd.Process.Pid, sig)
}

func stopGroup(cmd *exec.Cmd) error      { return signalGroup(cmd, syscall.SIGSTOP) }
func continueGroup(cmd *exec.Cmd) error  { return signalGroup(cmd, syscall.SIGCONT) }
func terminateGroup(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGTERM) }
func killGroup(cmd *exec.Cmd) error      { return signalGroup(cmd, syscall.SIGKILL) }
