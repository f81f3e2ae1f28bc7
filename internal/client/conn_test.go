package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
)

type recordedCall struct {
	kind   string
	from   domain.UserID
	name   string
	signal json.RawMessage
}

type fakeCalls struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeCalls) HandleInvite(from domain.UserID, name string, offer json.RawMessage) {
	f.record(recordedCall{kind: "invite", from: from, name: name, signal: offer})
}

func (f *fakeCalls) HandleAccepted(answer json.RawMessage) {
	f.record(recordedCall{kind: "accepted", signal: answer})
}

func (f *fakeCalls) HandleTerminate() {
	f.record(recordedCall{kind: "terminate"})
}

func (f *fakeCalls) record(c recordedCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeCalls) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func TestHandleFrameDispatch(t *testing.T) {
	calls := &fakeCalls{}
	var got []domain.Message
	c := New("http://example", core.PeerRef{ID: "u1", Name: "Alice"})
	c.OnMessage(func(m domain.Message) { got = append(got, m) })
	c.BindCalls(calls)

	c.handleFrame([]byte(`{"type":"newMessage","message":{"id":"m1","conversationId":"c1","text":"hi","senderId":"u2"}}`))
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Text)
	assert.Equal(t, domain.ConversationID("c1"), got[0].ConversationID)

	c.handleFrame([]byte(`{"type":"call-incoming","from":{"id":"u2","name":"Bob"},"signal":{"sdp":"offer"}}`))
	c.handleFrame([]byte(`{"type":"call-accepted","signal":{"sdp":"answer"}}`))
	c.handleFrame([]byte(`{"type":"call-ended"}`))

	rec := calls.recorded()
	require.Len(t, rec, 3)
	assert.Equal(t, "invite", rec[0].kind)
	assert.Equal(t, domain.UserID("u2"), rec[0].from)
	assert.Equal(t, "Bob", rec[0].name)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(rec[0].signal))
	assert.Equal(t, "accepted", rec[1].kind)
	assert.JSONEq(t, `{"sdp":"answer"}`, string(rec[1].signal))
	assert.Equal(t, "terminate", rec[2].kind)
}

func TestHandleFrameIgnoresGarbage(t *testing.T) {
	calls := &fakeCalls{}
	c := New("http://example", core.PeerRef{ID: "u1"})
	c.BindCalls(calls)

	c.handleFrame([]byte(`not json`))
	c.handleFrame([]byte(`{"type":"no-such-event"}`))
	c.handleFrame([]byte(`{"type":"pong"}`))

	assert.Empty(t, calls.recorded())
}

func TestSendBeforeConnect(t *testing.T) {
	c := New("http://example", core.PeerRef{ID: "u1"})
	assert.ErrorIs(t, c.SendTerminate("u2"), ErrClosed)
}

// wsProbe accepts one websocket and hands back the identity it connected
// with plus the frames it writes.
type wsProbe struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	userID string
	frames []string
	conn   *websocket.Conn
}

func (p *wsProbe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.userID = r.URL.Query().Get("userId")
	p.conn = ws
	p.mu.Unlock()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.frames = append(p.frames, string(data))
		p.mu.Unlock()
	}
}

func (p *wsProbe) lastUser() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

func (p *wsProbe) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.frames...)
}

func (p *wsProbe) dropClient() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestConnectSendsIdentityAndSignals(t *testing.T) {
	probe := &wsProbe{}
	srv := httptest.NewServer(probe)
	defer srv.Close()

	c := New(srv.URL, core.PeerRef{ID: "u1", Name: "Alice"})
	c.BindCalls(&fakeCalls{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	waitFor(t, func() bool { return probe.lastUser() == "u1" })

	require.NoError(t, c.SendInvite("u2", json.RawMessage(`{"sdp":"offer"}`)))
	require.NoError(t, c.SendAnswer("u2", json.RawMessage(`{"sdp":"answer"}`)))
	require.NoError(t, c.SendTerminate("u2"))

	waitFor(t, func() bool { return len(probe.received()) == 3 })
	frames := probe.received()
	assert.JSONEq(t, `{"type":"call-user","to":"u2","from":{"id":"u1","name":"Alice"},"signalData":{"sdp":"offer"}}`, frames[0])
	assert.JSONEq(t, `{"type":"answer-call","to":"u2","signal":{"sdp":"answer"}}`, frames[1])
	assert.JSONEq(t, `{"type":"call-ended","to":"u2"}`, frames[2])
}

func TestServerDropTreatedAsTerminate(t *testing.T) {
	probe := &wsProbe{}
	srv := httptest.NewServer(probe)
	defer srv.Close()

	calls := &fakeCalls{}
	c := New(srv.URL, core.PeerRef{ID: "u1"})
	c.BindCalls(calls)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	waitFor(t, func() bool { return probe.lastUser() == "u1" })
	probe.dropClient()

	waitFor(t, func() bool {
		rec := calls.recorded()
		return len(rec) == 1 && rec[0].kind == "terminate"
	})
}
