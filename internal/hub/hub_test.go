package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
)

// fakeSession records every frame pushed at it. It doubles as its own
// SignalConnection, like the real websocket session does.
type fakeSession struct {
	id      domain.UserID
	created time.Time

	mu       sync.Mutex
	frames   []core.Frame
	closed   bool
	failSend bool
}

func newFakeSession(id domain.UserID) *fakeSession {
	return &fakeSession{id: id, created: time.Now()}
}

func (f *fakeSession) Identity() domain.UserID       { return f.id }
func (f *fakeSession) Signal() core.SignalConnection { return f }
func (f *fakeSession) CreatedAt() time.Time          { return f.created }

func (f *fakeSession) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("send refused")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) sent() []core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Frame, len(f.frames))
	copy(out, f.frames)
	return out
}
