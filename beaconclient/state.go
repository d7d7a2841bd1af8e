package beaconclient

import "go.uber.org/atomic"

// State of the event stream connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Stats are cumulative counters since the client was created.
type Stats struct {
	Received       uint64 `json:"received"`
	Dispatched     uint64 `json:"dispatched"`
	DecodeFailures uint64 `json:"decode_failures"`
	ListenerFaults uint64 `json:"listener_faults"`
	Dropped        uint64 `json:"dropped"`
	Reconnects     uint64 `json:"reconnects"`
}

type stats struct {
	received       atomic.Uint64
	dispatched     atomic.Uint64
	decodeFailures atomic.Uint64
	listenerFaults atomic.Uint64
	dropped        atomic.Uint64
	reconnects     atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Received:       s.received.Load(),
		Dispatched:     s.dispatched.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		ListenerFaults: s.listenerFaults.Load(),
		Dropped:        s.dropped.Load(),
		Reconnects:     s.reconnects.Load(),
	}
}
