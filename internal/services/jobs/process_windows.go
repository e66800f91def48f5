//go:build windows

package jobs

import (
	"os/exec"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

func setupProcessGroup(cmd *exec.Cmd) {}

func stopGroup(cmd *exec.Cmd) error {
	return interfaces.NewConfigurationError("pausing processes is not supported on windows")
}

func continueGroup(cmd *exec.Cmd) error {
	return interfaces.NewConfigurationError("resuming processes is not supported on windows")
}

func terminateGroup(cmd *exec.Cmd) error { return killGroup(cmd) }

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
