// Package rtc implements the call.Peer capability interface over pion.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// signalBlob is the wire shape of one signaling payload: an SDP description
// or a trickled ICE candidate. The relay never sees this structure; it is a
// contract between the two peer endpoints only.
type signalBlob struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func DefaultConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

// Peer wraps a pion PeerConnection behind call.Peer. The initiator side
// creates and trickles the offer on Start; the answering side waits for the
// remote offer through Signal.
type Peer struct {
	pc        *webrtc.PeerConnection
	initiator bool

	mu       sync.Mutex
	onSignal func(json.RawMessage)
	onStream func()
	onClose  func()
	// candidates that arrived before the remote description was set
	pending []webrtc.ICECandidateInit
	haveRem bool

	cancel context.CancelFunc
}

// NewPeer builds a peer session and attaches the given local tracks.
func NewPeer(cfg webrtc.Configuration, initiator bool, tracks ...webrtc.TrackLocal) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	for _, t := range tracks {
		if _, err := pc.AddTrack(t); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add track: %w", err)
		}
	}
	return &Peer{pc: pc, initiator: initiator}, nil
}

func (p *Peer) OnSignal(fn func(json.RawMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSignal = fn
}

func (p *Peer) OnStream(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStream = fn
}

func (p *Peer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = fn
}

// Start wires pion callbacks and, on the initiator side, creates and emits
// the offer. The first signal is emitted from a goroutine, never from inside
// Start itself.
func (p *Peer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		p.emit(signalBlob{Type: "candidate", Candidate: &ci})
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
			p.fire(func() func() { return p.onClose })
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
		p.fire(func() func() { return p.onStream })
	})

	if !p.initiator {
		return nil
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	go p.emit(signalBlob{Type: "offer", SDP: offer.SDP})
	return nil
}

// Signal feeds one remote signaling payload into the session.
func (p *Peer) Signal(data json.RawMessage) error {
	var blob signalBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("parse signal: %w", err)
	}

	switch blob.Type {
	case "offer":
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer, SDP: blob.SDP,
		}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		p.flushPending()
		go p.emit(signalBlob{Type: "answer", SDP: answer.SDP})
		return nil
	case "answer":
		if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer, SDP: blob.SDP,
		}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		p.flushPending()
		return nil
	case "candidate":
		if blob.Candidate == nil {
			return nil
		}
		p.mu.Lock()
		if !p.haveRem {
			p.pending = append(p.pending, *blob.Candidate)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		return p.pc.AddICECandidate(*blob.Candidate)
	default:
		log.Warn().Str("module", "rtc").Str("type", blob.Type).Msg("unknown signal blob")
		return nil
	}
}

// flushPending applies candidates queued before the remote description.
func (p *Peer) flushPending() {
	p.mu.Lock()
	p.haveRem = true
	queued := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range queued {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("queued candidate rejected")
		}
	}
}

func (p *Peer) Destroy() {
	if p.cancel != nil {
		p.cancel()
	}
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("peer closed")
	}
}

func (p *Peer) emit(blob signalBlob) {
	b, err := json.Marshal(blob)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("marshal signal blob")
		return
	}
	p.mu.Lock()
	fn := p.onSignal
	p.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

func (p *Peer) fire(get func() func()) {
	p.mu.Lock()
	fn := get()
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
