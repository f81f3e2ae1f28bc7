package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, s *session) {
	defer log.Info().Str("module", "ws").Str("user", string(s.id)).Msg("readPump closing")
	if ctl.ReadLimit > 0 {
		s.conn.SetReadLimit(ctl.ReadLimit)
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "ws").Str("user", string(s.id)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(s, data)
		}
	}
}

// handleFrame dispatches on the envelope type. A bad frame is logged and
// dropped; nothing a client sends can take the relay down.
func (ctl *Controller) handleFrame(s *session, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("user", string(s.id)).Msg("bad json frame")
		return
	}
	switch env.Type {
	case core.EvtCallUser:
		ctl.handleCallUser(s, data)
	case core.EvtAnswerCall:
		ctl.handleAnswerCall(s, data)
	case core.EvtCallEnded:
		ctl.handleCallEnded(s, data)
	case core.EvtPing:
		ctl.sendJSON(s, core.Envelope{Type: core.EvtPong})
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) sendJSON(s *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	_ = s.TrySend(b)
}
