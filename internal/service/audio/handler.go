// Package audio forwards captured audio to a realtime stream, muting it while
// the session is paused and enforcing per-session limits.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/observability/metrics"
	"speech-transcribe-service/internal/service/stt"
)

// ErrLimitExceeded is wrapped by Send when a session limit is breached.
var ErrLimitExceeded = errors.New("session limit exceeded")

// SessionLimits bounds how much audio one realtime session may push upstream.
type SessionLimits struct {
	MaxAudioBytes int64         // total audio forwarded
	MaxDuration   time.Duration // wall time since the pump started
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() SessionLimits {
	return SessionLimits{
		MaxAudioBytes: 64 * 1024 * 1024, // ~35 minutes of 16 kHz PCM16 mono
		MaxDuration:   2 * time.Hour,
	}
}

// Pump is the capture uplink of one session.
type Pump struct {
	stream    stt.Stream
	sessionID string
	limits    SessionLimits
	metrics   *metrics.Metrics

	mu          sync.Mutex
	startTime   time.Time
	audioBytes  int64
	framesSent  int
	framesMuted int
	muted       bool
	exceeded    bool
}

// NewPump creates a pump with default limits.
func NewPump(stream stt.Stream, sessionID string) *Pump {
	return NewPumpWithLimits(stream, sessionID, DefaultLimits())
}

// NewPumpWithLimits creates a pump with custom limits.
func NewPumpWithLimits(stream stt.Stream, sessionID string, limits SessionLimits) *Pump {
	return &Pump{
		stream:    stream,
		sessionID: sessionID,
		limits:    limits,
		metrics:   metrics.DefaultMetrics,
		startTime: time.Now(),
	}
}

// SetMuted mutes or unmutes the uplink. Muted frames are dropped, not buffered.
func (p *Pump) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// Muted reports whether the uplink is muted.
func (p *Pump) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Send forwards one PCM frame. Once a limit is exceeded every later call fails.
func (p *Pump) Send(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	if p.exceeded {
		p.mu.Unlock()
		return ErrLimitExceeded
	}
	if p.muted {
		p.framesMuted++
		p.mu.Unlock()
		p.metrics.RecordAudioMuted()
		return nil
	}

	if p.limits.MaxAudioBytes > 0 && p.audioBytes+int64(len(pcm)) > p.limits.MaxAudioBytes {
		p.exceeded = true
		total := p.audioBytes + int64(len(pcm))
		p.mu.Unlock()
		return p.limitExceeded("audio_bytes", fmt.Sprintf("max audio bytes exceeded: %d > %d", total, p.limits.MaxAudioBytes))
	}
	if elapsed := time.Since(p.startTime); p.limits.MaxDuration > 0 && elapsed > p.limits.MaxDuration {
		p.exceeded = true
		p.mu.Unlock()
		return p.limitExceeded("duration", fmt.Sprintf("max duration exceeded: %v > %v", elapsed.Round(time.Millisecond), p.limits.MaxDuration))
	}

	p.audioBytes += int64(len(pcm))
	p.framesSent++
	p.mu.Unlock()

	if err := p.stream.SendAudio(ctx, pcm); err != nil {
		return err
	}
	p.metrics.RecordAudioSent(len(pcm))
	return nil
}

func (p *Pump) limitExceeded(limitType, reason string) error {
	p.metrics.RecordLimitExceeded(limitType)
	log.Warn().
		Str("sessionId", p.sessionID).
		Str("limit", limitType).
		Msg(reason)
	return fmt.Errorf("%w: %s", ErrLimitExceeded, reason)
}

// Stats holds uplink usage for observability.
type Stats struct {
	AudioBytes  int64
	FramesSent  int
	FramesMuted int
	Duration    time.Duration
}

// Stats returns current uplink usage.
func (p *Pump) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		AudioBytes:  p.audioBytes,
		FramesSent:  p.framesSent,
		FramesMuted: p.framesMuted,
		Duration:    time.Since(p.startTime),
	}
}
