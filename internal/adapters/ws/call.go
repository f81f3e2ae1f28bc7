package ws

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/core"
)

// Call events parse just enough to route and then hand the payload to the
// relay untouched. Signal semantics live entirely in the endpoints.

func (ctl *Controller) handleCallUser(s *session, data []byte) {
	var p core.CallUserEvent
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("bad call-user payload")
		return
	}
	if p.To == "" {
		log.Warn().Str("module", "ws").Str("user", string(s.id)).Msg("call-user without target")
		return
	}
	ctl.Relay.Invite(p.From.ID, p.From.Name, p.To, p.SignalData)
}

func (ctl *Controller) handleAnswerCall(s *session, data []byte) {
	var p core.AnswerCallEvent
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("bad answer-call payload")
		return
	}
	if p.To == "" {
		log.Warn().Str("module", "ws").Str("user", string(s.id)).Msg("answer-call without target")
		return
	}
	ctl.Relay.Accept(s.id, p.To, p.Signal)
}

func (ctl *Controller) handleCallEnded(s *session, data []byte) {
	var p core.CallEndedEvent
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("bad call-ended payload")
		return
	}
	if p.To == "" {
		log.Warn().Str("module", "ws").Str("user", string(s.id)).Msg("call-ended without target")
		return
	}
	ctl.Relay.Terminate(s.id, p.To)
}
