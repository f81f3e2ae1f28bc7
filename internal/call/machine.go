package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/domain"
)

const DefaultRingTimeout = 30 * time.Second

var (
	ErrBusy       = errors.New("call already in progress")
	ErrNotRinging = errors.New("no ringing call to answer")
)

// Machine tracks one call's lifecycle for this endpoint:
//
//	Idle -> Dialing (caller) | Ringing (callee) -> Connecting -> Active -> Ended
//
// Any non-Ended state moves to Ended on hang-up, decline, remote terminate or
// transport disconnect. Entering Ended always releases local media and
// destroys the peer session, exactly once, whichever path led there.
type Machine struct {
	mu           sync.Mutex
	state        State
	peerID       domain.UserID
	peerName     string
	pendingOffer json.RawMessage
	peer         Peer
	captureOn    bool
	released     bool

	newPeer     PeerFactory
	capture     Capture
	sig         Signaler
	ringTimeout time.Duration
	ringTimer   *time.Timer

	onState func(State)
}

func NewMachine(newPeer PeerFactory, capture Capture, sig Signaler, ringTimeout time.Duration) *Machine {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	return &Machine{
		newPeer:     newPeer,
		capture:     capture,
		sig:         sig,
		ringTimeout: ringTimeout,
	}
}

// OnStateChange registers an observer invoked after each transition, outside
// the machine's lock. Must be set before the first operation.
func (m *Machine) OnStateChange(fn func(State)) { m.onState = fn }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remote returns the other endpoint of the current call.
func (m *Machine) Remote() (domain.UserID, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peerID, m.peerName
}

// Dial places a call. Valid only in Idle. Media capture is acquired first:
// if that fails, no signal has been sent and the machine stays Idle. The
// relay gives no feedback for an offline callee, so a local ring timer is
// armed; on expiry the call ends silently.
func (m *Machine) Dial(ctx context.Context, to domain.UserID, toName string) error {
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return ErrBusy
	}
	if err := m.capture.Start(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("media capture: %w", err)
	}
	m.captureOn = true

	p, err := m.newPeer(true)
	if err == nil {
		m.wirePeerLocked(p, to, func(data json.RawMessage) error {
			return m.sig.SendInvite(to, data)
		})
		err = p.Start(ctx)
	}
	if err != nil {
		// Abort before any signal leaves this process.
		m.capture.Stop()
		m.captureOn = false
		if p != nil {
			p.Destroy()
		}
		m.peer = nil
		m.peerID = ""
		m.peerName = ""
		m.mu.Unlock()
		return fmt.Errorf("peer session: %w", err)
	}

	m.peerName = toName
	m.state = Dialing
	m.ringTimer = time.AfterFunc(m.ringTimeout, m.onRingTimeout)
	m.mu.Unlock()

	log.Info().Str("module", "call").Str("to", string(to)).Msg("dialing")
	m.notify(Dialing)
	return nil
}

// HandleInvite reacts to a relayed invite. In Idle, or in Ended where the
// previous call is already torn down, the machine starts ringing and surfaces
// the caller. Repeated blobs from the current caller (trickle ICE) are
// appended to the pending signal set fed to the peer on Answer. Any other
// case means this endpoint is busy: the new caller gets an immediate
// terminate and the current call is untouched.
func (m *Machine) HandleInvite(from domain.UserID, name string, offer json.RawMessage) {
	m.mu.Lock()
	switch {
	case m.state == Idle || m.state == Ended:
		m.resetLocked()
		m.peerID = from
		m.peerName = name
		m.pendingOffer = offer
		m.state = Ringing
		m.mu.Unlock()
		log.Info().Str("module", "call").Str("from", string(from)).Str("name", name).Msg("incoming call")
		m.notify(Ringing)
	case m.state == Ringing && from == m.peerID:
		// Trickle signal for the pending invite; hand it to the peer once
		// answered. Until then only the latest full offer matters.
		m.pendingOffer = offer
		m.mu.Unlock()
	case (m.state == Connecting || m.state == Active) && from == m.peerID && m.peer != nil:
		p := m.peer
		m.mu.Unlock()
		if err := p.Signal(offer); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("late caller signal rejected by peer")
		}
	default:
		m.mu.Unlock()
		log.Info().Str("module", "call").Str("from", string(from)).Msg("busy, auto-declining invite")
		if err := m.sig.SendTerminate(from); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("busy terminate not sent")
		}
	}
}

// Answer accepts a ringing call. Capture is acquired before any signal is
// sent; on failure the machine returns to Idle and reports the error to the
// user, who is the only one who can act on it.
func (m *Machine) Answer(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Ringing {
		m.mu.Unlock()
		return ErrNotRinging
	}
	if err := m.capture.Start(); err != nil {
		m.resetLocked()
		m.mu.Unlock()
		m.notify(Idle)
		return fmt.Errorf("media capture: %w", err)
	}
	m.captureOn = true

	from := m.peerID
	p, err := m.newPeer(false)
	if err == nil {
		m.wirePeerLocked(p, from, func(data json.RawMessage) error {
			return m.sig.SendAnswer(from, data)
		})
		err = p.Start(ctx)
	}
	if err != nil {
		m.capture.Stop()
		m.captureOn = false
		if p != nil {
			p.Destroy()
		}
		m.resetLocked()
		m.mu.Unlock()
		m.notify(Idle)
		return fmt.Errorf("peer session: %w", err)
	}

	offer := m.pendingOffer
	m.pendingOffer = nil
	m.state = Connecting
	m.mu.Unlock()

	log.Info().Str("module", "call").Str("from", string(from)).Msg("answering")
	m.notify(Connecting)
	if err := p.Signal(offer); err != nil {
		log.Error().Err(err).Str("module", "call").Msg("applying offer failed")
		m.end(false)
	}
	return nil
}

// HandleAccepted reacts to the relayed answer. Only meaningful while
// Dialing's answer is outstanding or while the handshake is completing
// (trickle ICE keeps arriving on the same event); anything else is a stale
// or duplicate signal and is dropped.
func (m *Machine) HandleAccepted(answer json.RawMessage) {
	m.mu.Lock()
	notify := false
	switch m.state {
	case Dialing:
		m.stopRingTimerLocked()
		m.state = Connecting
		notify = true
	case Connecting, Active:
		// trickle candidate for the established handshake
	default:
		m.mu.Unlock()
		log.Debug().Str("module", "call").Str("state", m.state.String()).Msg("ignoring stale call-accepted")
		return
	}
	p := m.peer
	m.mu.Unlock()

	if notify {
		m.notify(Connecting)
	}
	if p == nil {
		return
	}
	if err := p.Signal(answer); err != nil {
		log.Error().Err(err).Str("module", "call").Msg("applying answer failed")
		m.end(false)
	}
}

// Decline rejects a ringing call. Media was never acquired, so there is
// nothing to release; the caller is notified so it does not ring into its
// timeout.
func (m *Machine) Decline() {
	m.mu.Lock()
	if m.state != Ringing {
		m.mu.Unlock()
		return
	}
	from := m.peerID
	m.endLocked()
	m.mu.Unlock()

	log.Info().Str("module", "call").Str("from", string(from)).Msg("declined")
	if err := m.sig.SendTerminate(from); err != nil {
		log.Warn().Err(err).Str("module", "call").Msg("decline terminate not sent")
	}
	m.notify(Ended)
}

// HangUp ends the current call from this side and signals the peer.
func (m *Machine) HangUp() {
	m.end(true)
}

// HandleTerminate reacts to a remote terminate, or to a transport disconnect
// mid-call, which is treated identically. It never echoes a terminate back,
// so two endpoints ending simultaneously cannot loop.
func (m *Machine) HandleTerminate() {
	m.end(false)
}

func (m *Machine) end(sendSignal bool) {
	m.mu.Lock()
	if m.state == Idle || m.state == Ended {
		m.mu.Unlock()
		return
	}
	to := m.peerID
	m.endLocked()
	m.mu.Unlock()

	log.Info().Str("module", "call").Str("peer", string(to)).Bool("signaled", sendSignal).Msg("call ended")
	if sendSignal {
		if err := m.sig.SendTerminate(to); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("terminate not sent")
		}
	}
	m.notify(Ended)
}

// endLocked moves to Ended and releases resources exactly once. Caller holds
// the lock.
func (m *Machine) endLocked() {
	m.state = Ended
	m.stopRingTimerLocked()
	if m.released {
		return
	}
	m.released = true
	if m.captureOn {
		m.capture.Stop()
		m.captureOn = false
	}
	if m.peer != nil {
		m.peer.Destroy()
		m.peer = nil
	}
}

// Reset prepares the machine for the next call. Ended is terminal for a
// call, not for the endpoint.
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.state != Ended {
		m.mu.Unlock()
		return
	}
	m.resetLocked()
	m.mu.Unlock()
	m.notify(Idle)
}

func (m *Machine) resetLocked() {
	m.stopRingTimerLocked()
	m.state = Idle
	m.peerID = ""
	m.peerName = ""
	m.pendingOffer = nil
	m.peer = nil
	m.released = false
}

// SetAudio mutes or unmutes the local microphone. Valid only while capture
// is active; no renegotiation happens.
func (m *Machine) SetAudio(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.captureOn {
		return
	}
	m.capture.SetAudio(enabled)
}

// SetVideo enables or disables the local camera track, same rules as SetAudio.
func (m *Machine) SetVideo(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.captureOn {
		return
	}
	m.capture.SetVideo(enabled)
}

// wirePeerLocked attaches callbacks to a fresh peer. Peer events arrive on
// the peer's goroutines and are re-validated against the state they find.
func (m *Machine) wirePeerLocked(p Peer, remote domain.UserID, send func(json.RawMessage) error) {
	m.peer = p
	m.peerID = remote
	p.OnSignal(func(data json.RawMessage) {
		if m.State() == Ended {
			return
		}
		if err := send(data); err != nil {
			log.Warn().Err(err).Str("module", "call").Msg("signal not sent")
		}
	})
	p.OnStream(m.handleStream)
	p.OnClose(m.HandleTerminate)
}

// handleStream marks the handshake complete. A stream arriving in any other
// state (stale event after Ended, media racing the accept) is ignored.
func (m *Machine) handleStream() {
	m.mu.Lock()
	if m.state != Connecting {
		m.mu.Unlock()
		log.Debug().Str("module", "call").Str("state", m.state.String()).Msg("ignoring stream event")
		return
	}
	m.state = Active
	m.mu.Unlock()
	log.Info().Str("module", "call").Msg("call active")
	m.notify(Active)
}

func (m *Machine) onRingTimeout() {
	m.mu.Lock()
	if m.state != Dialing {
		m.mu.Unlock()
		return
	}
	m.endLocked()
	m.mu.Unlock()
	log.Info().Str("module", "call").Msg("ring timeout, giving up")
	m.notify(Ended)
}

func (m *Machine) stopRingTimerLocked() {
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
}

func (m *Machine) notify(s State) {
	if m.onState != nil {
		m.onState(s)
	}
}
