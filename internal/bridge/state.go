package bridge

// State is the authoritative session state machine.
//
// Interactive path:
//
//	Idle → Connecting → Authenticating → ShellRequested →
//	Interactive ⇄ TransferActive → Closing → Terminated
//
// Non-interactive path:
//
//	Idle → Connecting → Authenticating → Executing → Terminated
//
// Failed is terminal and reachable from any non-terminal state. The
// terminal guard release is unconditional on every path, Failed included.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateShellRequested
	StateInteractive
	StateTransferActive
	StateExecuting
	StateClosing
	StateTerminated
	StateFailed
)

// String returns the state name for logs and traces.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateShellRequested:
		return "shell-requested"
	case StateInteractive:
		return "interactive"
	case StateTransferActive:
		return "transfer-active"
	case StateExecuting:
		return "executing"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}
