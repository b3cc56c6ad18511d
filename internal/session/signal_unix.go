//go:build !windows

package session

import (
	"errors"
	"os/exec"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	// Own process group so signals reach the tool's children too.
	return &syscall.SysProcAttr{Setpgid: true}
}

// interruptProcess asks the recorder to finish the trace and exit (^C semantics).
func interruptProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGINT)
}

// killProcess terminates the recorder's process group immediately.
func killProcess(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// exitInfo extracts the exit code and terminating signal (if any) from a
// cmd.Wait error.
func exitInfo(err error) (code int, signal string) {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return -1, ""
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ee.ExitCode(), ws.Signal().String()
	}
	return ee.ExitCode(), ""
}
