package session

import (
	"fmt"
	"time"
)

// ToolNotFoundError reports that the recording tool binary is not
// resolvable on this host. Fatal to Start; there is no point retrying.
type ToolNotFoundError struct {
	Tool string
	Err  error
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("recording tool %q is not available on this host: %v", e.Tool, e.Err)
}

func (e *ToolNotFoundError) Unwrap() error { return e.Err }

// StartupTimeoutError reports that the recorder produced no trace output
// within the startup deadline, or died before producing any.
type StartupTimeoutError struct {
	Profile string
	Device  string
	Timeout time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("no trace output for profile %q on device %q within %s; "+
		"verify the profile is supported on the device (list the available templates to check)",
		e.Profile, e.Device, e.Timeout)
}

// GracefulStopTimeoutError reports that the recorder did not exit within
// the stop deadline after the graceful signal. The process is left in
// whatever state the signal produced; callers may escalate with Stop(true).
type GracefulStopTimeoutError struct {
	Profile string
	Wait    time.Duration
}

func (e *GracefulStopTimeoutError) Error() string {
	return fmt.Sprintf("recorder for profile %q did not exit within %s after interrupt", e.Profile, e.Wait)
}
