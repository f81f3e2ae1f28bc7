package hub

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
)

// CallRelay forwards call-control payloads between two sessions, keyed by
// target identity. It is a dumb pipe: payloads are never inspected or
// mutated, no call state is kept server-side, and a missing target drops the
// signal silently. Absence of a response is the only signal a caller gets;
// any ring timeout lives in the caller's own state machine.
//
// Trickle ICE candidates ride the same two paths as the initial offer and
// answer: both sides keep emitting call-user / answer-call events per signal
// blob, and the relay forwards each hop unchanged.
type CallRelay struct {
	reg *Registry
}

func NewCallRelay(reg *Registry) *CallRelay {
	return &CallRelay{reg: reg}
}

// Invite forwards an offer blob to the callee as a call-incoming event.
func (cr *CallRelay) Invite(from domain.UserID, fromName string, to domain.UserID, offer json.RawMessage) {
	cr.send(to, core.CallIncomingEvent{
		Type:   core.EvtCallIncoming,
		From:   core.PeerRef{ID: from, Name: fromName},
		Signal: offer,
	})
}

// Accept forwards an answer blob back to the caller as call-accepted.
func (cr *CallRelay) Accept(from, to domain.UserID, answer json.RawMessage) {
	cr.send(to, core.CallAcceptedEvent{
		Type:   core.EvtCallAccepted,
		Signal: answer,
	})
}

// Terminate tells the other side the call is over. The server->client form
// carries no payload.
func (cr *CallRelay) Terminate(from, to domain.UserID) {
	cr.send(to, core.CallEndedEvent{Type: core.EvtCallEnded})
}

func (cr *CallRelay) send(to domain.UserID, v any) {
	sess, ok := cr.reg.Lookup(to)
	if !ok {
		log.Debug().Str("module", "hub.relay").Str("to", string(to)).Msg("target offline, dropping signal")
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "hub.relay").Msg("marshal signal")
		return
	}
	if err := sess.Signal().TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "hub.relay").Str("to", string(to)).Msg("signal dropped")
	}
}
