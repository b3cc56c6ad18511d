//go:build windows

package session

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

// Windows has no interrupt delivery to another process; both paths kill.
func interruptProcess(pid int) error {
	return signalPID(pid)
}

func killProcess(pid int) error {
	return signalPID(pid)
}

func signalPID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func exitInfo(err error) (code int, signal string) {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return -1, ""
	}
	return ee.ExitCode(), ""
}
