// Package call implements the per-endpoint call session state machine. It
// owns the local media capture and the underlying peer session for one call
// at a time; the server side stays a dumb signaling pipe and keeps no call
// state at all.
package call

// State is the single tagged call state. It replaces the accepted/ended/
// stream flag combination an endpoint would otherwise juggle, so invalid
// mixes (an active call without a stream, an ended call still capturing)
// cannot be represented.
type State int

const (
	Idle State = iota
	Dialing
	Ringing
	Connecting
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dialing:
		return "dialing"
	case Ringing:
		return "ringing"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return "unknown"
}
