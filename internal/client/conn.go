// Package client is the connection lifecycle manager for a parley endpoint:
// it opens one transport session tagged with the user's identity, dispatches
// server events to the message and call handlers, and re-registers the same
// identity on reconnect.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
)

var ErrClosed = errors.New("connection closed")

// CallHandler receives relayed call-control events. Implemented by
// call.Machine.
type CallHandler interface {
	HandleInvite(from domain.UserID, name string, offer json.RawMessage)
	HandleAccepted(answer json.RawMessage)
	HandleTerminate()
}

// Conn is one live session against the server. It implements call.Signaler
// for the outbound direction.
type Conn struct {
	baseURL string
	self    core.PeerRef

	onMessage func(domain.Message)
	calls     CallHandler

	mu     sync.Mutex
	ws     *websocket.Conn
	send   chan core.Frame
	closed bool
	done   chan struct{}
}

// New prepares a connection for the given identity. No I/O happens until
// Connect.
func New(baseURL string, self core.PeerRef) *Conn {
	return &Conn{baseURL: baseURL, self: self}
}

// OnMessage registers the newMessage observer. Must be set before Connect.
func (c *Conn) OnMessage(fn func(domain.Message)) { c.onMessage = fn }

// BindCalls attaches the call state machine. Must be set before Connect.
func (c *Conn) BindCalls(h CallHandler) { c.calls = h }

// Connect opens the websocket with the identity query parameter, so the
// server binds the session before any other event is processed.
func (c *Conn) Connect(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/ws"
	u.RawQuery = url.Values{"userId": {string(c.self.ID)}}.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c.mu.Lock()
	c.ws = ws
	c.send = make(chan core.Frame, 32)
	c.closed = false
	c.done = make(chan struct{})
	send, done := c.send, c.done
	c.mu.Unlock()

	log.Info().Str("module", "client").Str("user", string(c.self.ID)).Msg("connected")
	go c.writePump(ws, send, done)
	go c.readPump(ws)
	return nil
}

// Reconnect re-dials and re-registers the same identity. There is no backoff
// policy here; callers decide when to retry.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.Close()
	return c.Connect(ctx)
}

// Close tears the session down. On logout this runs before the server's own
// close handler fires; server-side unregistration is idempotent, so the
// double path is safe.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed || c.ws == nil {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (c *Conn) writePump(ws *websocket.Conn, send chan core.Frame, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case data := <-send:
			if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "client").Msg("writePump set deadline")
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "client").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Conn) readPump(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.mu.Unlock()
			if !wasClosed {
				log.Warn().Err(err).Str("module", "client").Msg("connection lost")
			}
			// A transport disconnect mid-call is indistinguishable from the
			// peer vanishing: treat it as a terminate.
			if c.calls != nil {
				c.calls.HandleTerminate()
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Conn) handleFrame(data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame")
		return
	}
	switch env.Type {
	case core.EvtNewMessage:
		var p core.NewMessageEvent
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad newMessage payload")
			return
		}
		if c.onMessage != nil {
			c.onMessage(p.Message)
		}
	case core.EvtCallIncoming:
		var p core.CallIncomingEvent
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad call-incoming payload")
			return
		}
		if c.calls != nil {
			c.calls.HandleInvite(p.From.ID, p.From.Name, p.Signal)
		}
	case core.EvtCallAccepted:
		var p core.CallAcceptedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad call-accepted payload")
			return
		}
		if c.calls != nil {
			c.calls.HandleAccepted(p.Signal)
		}
	case core.EvtCallEnded:
		if c.calls != nil {
			c.calls.HandleTerminate()
		}
	case core.EvtPong:
	default:
		log.Debug().Str("module", "client").Str("type", env.Type).Msg("unknown event")
	}
}

func (c *Conn) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ws == nil {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// SendInvite implements call.Signaler.
func (c *Conn) SendInvite(to domain.UserID, offer json.RawMessage) error {
	return c.sendJSON(core.CallUserEvent{
		Type:       core.EvtCallUser,
		To:         to,
		From:       c.self,
		SignalData: offer,
	})
}

// SendAnswer implements call.Signaler.
func (c *Conn) SendAnswer(to domain.UserID, answer json.RawMessage) error {
	return c.sendJSON(core.AnswerCallEvent{
		Type:   core.EvtAnswerCall,
		To:     to,
		Signal: answer,
	})
}

// SendTerminate implements call.Signaler.
func (c *Conn) SendTerminate(to domain.UserID) error {
	return c.sendJSON(core.CallEndedEvent{Type: core.EvtCallEnded, To: to})
}

// Ping sends a keepalive probe.
func (c *Conn) Ping() error {
	return c.sendJSON(core.Envelope{Type: core.EvtPing})
}
