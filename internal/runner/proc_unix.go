//go:build !windows

package runner

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// setProcessGroup gives the child its own process group so a timeout or
// ceiling kill also reaps anything it spawned.
func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		err := killProcessGroup(c)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
}

// killProcessGroup force-terminates the child and its process group.
func killProcessGroup(c *exec.Cmd) error {
	if c.Process == nil {
		return os.ErrProcessDone
	}
	return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
}

// peakMemoryMB reports the child's max resident set from rusage.
func peakMemoryMB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	ru, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || ru == nil {
		return 0
	}
	// Maxrss is KiB on Linux, bytes on macOS.
	if runtime.GOOS == "darwin" {
		return int64(ru.Maxrss) / (1024 * 1024)
	}
	return int64(ru.Maxrss) / 1024
}

// readRSSMB samples pid's current resident set via /proc. Returns 0 where
// /proc is unavailable.
func readRSSMB(pid int) int64 {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}
