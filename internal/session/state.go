package session

// State tracks the session lifecycle. Completed is reachable via natural
// zero exit or graceful stop; ForceTerminated from Starting or Running at
// any time; FailedStartup is terminal and implies full artifact cleanup.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateCompleted
	StateFailedStartup
	StateForceTerminated
)

// Terminal reports whether the lifecycle has ended. Idle counts as
// non-terminal: a session in that state has a start pending.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailedStartup, StateForceTerminated:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailedStartup:
		return "failed_startup"
	case StateForceTerminated:
		return "force_terminated"
	default:
		return "unknown"
	}
}
