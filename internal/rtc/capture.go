package rtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// SampleCapture implements call.Capture with static sample tracks. There is
// no real microphone or camera here: whatever feeds the tracks happens
// outside this process boundary. Toggling mutes a track by flag; senders
// consult Enabled before pushing samples.
type SampleCapture struct {
	mu      sync.Mutex
	started bool
	audio   *webrtc.TrackLocalStaticSample
	video   *webrtc.TrackLocalStaticSample
	audioOn bool
	videoOn bool
}

func NewSampleCapture() *SampleCapture {
	return &SampleCapture{}
}

func (c *SampleCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "parley")
	if err != nil {
		return fmt.Errorf("audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "parley")
	if err != nil {
		return fmt.Errorf("video track: %w", err)
	}
	c.audio = audio
	c.video = video
	c.audioOn = true
	c.videoOn = true
	c.started = true
	log.Info().Str("module", "rtc").Msg("capture started")
	return nil
}

func (c *SampleCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.audio = nil
	c.video = nil
	c.started = false
	log.Info().Str("module", "rtc").Msg("capture stopped")
}

func (c *SampleCapture) SetAudio(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioOn = enabled
}

func (c *SampleCapture) SetVideo(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoOn = enabled
}

// Enabled reports the current mute flags.
func (c *SampleCapture) Enabled() (audio, video bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioOn, c.videoOn
}

// Tracks returns the local tracks to attach to a peer session. Valid only
// between Start and Stop.
func (c *SampleCapture) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	return []webrtc.TrackLocal{c.audio, c.video}
}
