// Package ws is the server-side websocket adapter: it turns an upgraded
// connection into a registered ClientSession and dispatches client events to
// the hub. The identity arrives as a query parameter at open time and is
// bound to the session before any other event is processed.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
	"github.com/mkoval/parley/internal/hub"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Registry  *hub.Registry
	Relay     *hub.CallRelay
	ReadLimit int64
}

func NewController(reg *hub.Registry, relay *hub.CallRelay, readLimit int64) *Controller {
	return &Controller{Registry: reg, Relay: relay, ReadLimit: readLimit}
}

// session implements core.ClientSession and core.SignalConnection over one
// websocket. Sends go through a buffered channel; a full buffer fails the
// send instead of blocking the caller.
type session struct {
	id      domain.UserID
	conn    *websocket.Conn
	send    chan core.Frame
	created time.Time

	mu     sync.RWMutex
	closed bool
}

func newSession(id domain.UserID, conn *websocket.Conn) *session {
	return &session{
		id:      id,
		conn:    conn,
		send:    make(chan core.Frame, 32),
		created: time.Now(),
	}
}

func (s *session) Identity() domain.UserID       { return s.id }
func (s *session) Signal() core.SignalConnection { return s }
func (s *session) CreatedAt() time.Time          { return s.created }

func (s *session) TrySend(f core.Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("connection closed")
	}
	select {
	case s.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (s *session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	_ = s.conn.Close()
	s.mu.Unlock()
}

// HandleWS upgrades the request and runs the session until disconnect. A
// second connection for the same identity evicts the first; unregistration
// on disconnect goes by handle, so a stale close cannot knock out the
// replacement.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.Query("userId"))
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId query parameter required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade")
		return
	}
	log.Info().Str("module", "ws").Str("user", string(uid)).Msg("connection open")

	sess := newSession(uid, conn)
	if old := ctl.Registry.Register(uid, sess); old != nil {
		old.Signal().Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, sess)
	go func() {
		ctl.readPump(ctx, sess)
		cancel()
		// Synchronous with disconnect: no lookup may return this session
		// after the read loop exits.
		ctl.Registry.UnregisterSession(sess)
		sess.Close()
	}()
}
