package call

import (
	"context"
	"encoding/json"

	"github.com/mkoval/parley/internal/domain"
)

// Peer is the narrow capability surface the machine needs from a peer
// session implementation. Signal blobs are opaque SDP/ICE payloads; the
// machine forwards them between the wire and the peer without inspection.
// Callbacks may fire from the implementation's own goroutines at any time;
// the machine validates each against its current state. Start must not
// invoke callbacks synchronously: implementations emit their first signals
// from their own goroutines.
type Peer interface {
	Start(ctx context.Context) error
	Signal(data json.RawMessage) error
	OnSignal(func(json.RawMessage))
	OnStream(func())
	OnClose(func())
	Destroy()
}

// PeerFactory builds a peer session. initiator is true on the dialing side.
type PeerFactory func(initiator bool) (Peer, error)

// Capture is the local media capture handle. Exactly one call owns it at a
// time; the machine stops it exactly once per call lifecycle.
type Capture interface {
	Start() error
	Stop()
	SetAudio(enabled bool)
	SetVideo(enabled bool)
}

// Signaler sends call-control events to the other endpoint through the
// relay. Implemented by the client connection.
type Signaler interface {
	SendInvite(to domain.UserID, offer json.RawMessage) error
	SendAnswer(to domain.UserID, answer json.RawMessage) error
	SendTerminate(to domain.UserID) error
}
