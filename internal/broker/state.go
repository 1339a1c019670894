package broker

// State is the connection health of the broker client. It is written only
// by the client's own goroutine and read by anyone via Client.State.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDegraded // connected but recent operations are failing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDegraded:
		return "DEGRADED"
	default:
		return "UNKNOWN"
	}
}

// PushResult is the outcome of a single push attempt, consumed by the
// dispatcher's routing policy.
type PushResult int

const (
	// Delivered means the event is on the broker queue.
	Delivered PushResult = iota
	// Rejected means the broker refused or was not connected; no partial write.
	Rejected
	// TimedOut means the operation deadline expired before an acknowledgement.
	TimedOut
)
