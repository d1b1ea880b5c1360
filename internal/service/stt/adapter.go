// Package stt defines the contracts for speech-to-text backends and their error taxonomy.
package stt

import (
	"context"
	"fmt"
)

// SubSegment is one backend-provided timed slice of a segment transcript.
type SubSegment struct {
	Text  string
	Start float64
	End   float64
}

// Result is what a backend returns for one audio file.
type Result struct {
	Text     string
	Segments []SubSegment
}

// Transcriber sends one audio file to a transcription backend.
type Transcriber interface {
	// Transcribe returns the top-level text plus the sub-segment list when the
	// backend provides verbose timing.
	Transcribe(ctx context.Context, path string) (*Result, error)
}

// Stream is one open realtime transcription channel.
//
// Events yields raw JSON events shaped like the OpenAI realtime transcription
// events (a "type" discriminator plus "delta" or "transcript"). The channel is
// closed when the upstream connection ends.
type Stream interface {
	Events() <-chan []byte
	SendAudio(ctx context.Context, pcm []byte) error
	Close() error
}

// Bridge opens realtime transcription streams.
type Bridge interface {
	Connect(ctx context.Context) (Stream, error)
}

// Signaler exchanges a local session description offer for the backend's answer.
type Signaler interface {
	Exchange(ctx context.Context, offer []byte) ([]byte, error)
}

// BackendError is a failed transcription call, carrying the backend status and message.
type BackendError struct {
	Provider string
	Status   int
	Message  string
	Segment  int // -1 when the call was not for a specific segment
}

func (e *BackendError) Error() string {
	if e.Segment >= 0 {
		return fmt.Sprintf("%s backend error (segment %d, status %d): %s", e.Provider, e.Segment, e.Status, e.Message)
	}
	return fmt.Sprintf("%s backend error (status %d): %s", e.Provider, e.Status, e.Message)
}

// NewBackendError builds a BackendError not tied to a segment.
func NewBackendError(provider string, status int, message string) *BackendError {
	return &BackendError{Provider: provider, Status: status, Message: message, Segment: -1}
}

// SignalingError means a realtime session could not be established.
type SignalingError struct {
	Status  int
	Message string
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling failed (status %d): %s", e.Status, e.Message)
}

// Realtime event types carried on Stream.Events.
const (
	EventDelta     = "conversation.item.input_audio_transcription.delta"
	EventCompleted = "conversation.item.input_audio_transcription.completed"
)
