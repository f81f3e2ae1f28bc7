package hub

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
)

// Fanout pushes freshly persisted messages to the recipient's live session.
// At-most-once, best-effort: it never retries and never queues. Deliver must
// be called only after the store write succeeded, so a miss loses a live
// notification, never data.
type Fanout struct {
	reg *Registry
}

func NewFanout(reg *Registry) *Fanout {
	return &Fanout{reg: reg}
}

// Deliver pushes msg to the recipient if a session is registered. A routing
// miss or a full send buffer is a silent no-op; the recipient will see the
// message on the next fetch.
func (f *Fanout) Deliver(msg *domain.Message, to domain.UserID) {
	sess, ok := f.reg.Lookup(to)
	if !ok {
		log.Debug().Str("module", "hub.fanout").Str("to", string(to)).Str("msg", string(msg.ID)).Msg("recipient offline, skipping push")
		return
	}
	b, err := json.Marshal(core.NewMessageEvent{Type: core.EvtNewMessage, Message: *msg})
	if err != nil {
		log.Error().Err(err).Str("module", "hub.fanout").Msg("marshal newMessage")
		return
	}
	if err := sess.Signal().TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "hub.fanout").Str("to", string(to)).Str("msg", string(msg.ID)).Msg("push dropped")
	}
}
