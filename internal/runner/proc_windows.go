//go:build windows

package runner

import (
	"os"
	"os/exec"
)

func setProcessGroup(c *exec.Cmd) {}

func killProcessGroup(c *exec.Cmd) error {
	if c.Process == nil {
		return os.ErrProcessDone
	}
	return c.Process.Kill()
}

// peakMemoryMB has no rusage source on Windows.
func peakMemoryMB(state *os.ProcessState) int64 {
	return 0
}

// readRSSMB has no /proc source on Windows, so memory ceilings are not
// enforced.
func readRSSMB(pid int) int64 {
	return 0
}
