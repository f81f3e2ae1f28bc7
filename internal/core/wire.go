package core

import (
	"encoding/json"

	"github.com/mkoval/parley/internal/domain"
)

// Wire event names. These are part of the transport contract with clients.
const (
	EvtNewMessage   = "newMessage"    // server -> client
	EvtCallUser     = "call-user"     // client -> server
	EvtCallIncoming = "call-incoming" // server -> client
	EvtAnswerCall   = "answer-call"   // client -> server
	EvtCallAccepted = "call-accepted" // server -> client
	EvtCallEnded    = "call-ended"    // both directions
	EvtPing         = "ping"
	EvtPong         = "pong"
)

// Envelope carries only the event type; concrete events embed the rest.
type Envelope struct {
	Type string `json:"type"`
}

// PeerRef identifies a call participant to the other side.
type PeerRef struct {
	ID   domain.UserID `json:"id"`
	Name string        `json:"name"`
}

// NewMessageEvent pushes a freshly persisted message to its recipient.
type NewMessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

// CallUserEvent is the client->server invite. SignalData is opaque: the
// relay forwards it without looking inside.
type CallUserEvent struct {
	Type       string          `json:"type"`
	To         domain.UserID   `json:"to"`
	From       PeerRef         `json:"from"`
	SignalData json.RawMessage `json:"signalData"`
}

// CallIncomingEvent surfaces an invite to the callee.
type CallIncomingEvent struct {
	Type   string          `json:"type"`
	From   PeerRef         `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

// AnswerCallEvent is the client->server accept.
type AnswerCallEvent struct {
	Type   string          `json:"type"`
	To     domain.UserID   `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// CallAcceptedEvent carries the answer back to the caller.
type CallAcceptedEvent struct {
	Type   string          `json:"type"`
	Signal json.RawMessage `json:"signal"`
}

// CallEndedEvent terminates a call. To is set client->server only; the
// server->client form has no payload beyond the type.
type CallEndedEvent struct {
	Type string        `json:"type"`
	To   domain.UserID `json:"to,omitempty"`
}
