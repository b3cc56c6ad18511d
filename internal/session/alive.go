package session

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// pidAlive reports whether pid names a live, non-zombie process. A child
// that exited but has not been reaped yet must not count as running.
func pidAlive(pid int) bool {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		ok, _ := gopsproc.PidExists(int32(pid))
		return ok
	}
	for _, st := range statuses {
		if st == gopsproc.Zombie {
			return false
		}
	}
	return true
}
