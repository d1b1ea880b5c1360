// Package mock provides scripted STT backends for development without cloud credentials.
// The realtime stream behaves like a live recognizer: progressive "full text so far"
// deltas as audio arrives, exactly one completed event per utterance.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"speech-transcribe-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string // each one is the full text so far
	Final    string
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"Hola", "Hola mun", "Hola mundo"},
		Final:    "Hola mundo",
	},
	{
		Partials: []string{"Buenos", "Buenos días", "Buenos días a todos"},
		Final:    "Buenos días a todos",
	},
	{
		Partials: []string{"Empezamos", "Empezamos la reunión"},
		Final:    "Empezamos la reunión",
	},
	{
		Partials: []string{"El primer", "El primer punto", "El primer punto es el presupuesto"},
		Final:    "El primer punto es el presupuesto.",
	},
	{
		Partials: []string{"Gracias"},
		Final:    "Gracias a todos.",
	},
}

const eventBuffer = 64

// Bridge implements stt.Bridge by handing out scripted streams,
// cycling through the utterances.
type Bridge struct {
	utterances []SimulatedUtterance
	delay      time.Duration

	mu   sync.Mutex
	next int
}

// NewBridge creates a mock bridge. Nil utterances means DefaultUtterances.
// A zero delay emits events synchronously from SendAudio.
func NewBridge(utterances []SimulatedUtterance, delay time.Duration) *Bridge {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Bridge{utterances: utterances, delay: delay}
}

// Connect opens a new scripted stream.
func (b *Bridge) Connect(ctx context.Context) (stt.Stream, error) {
	b.mu.Lock()
	utt := b.utterances[b.next%len(b.utterances)]
	b.next++
	b.mu.Unlock()

	return &Stream{
		utterance: utt,
		delay:     b.delay,
		events:    make(chan []byte, eventBuffer),
		itemID:    fmt.Sprintf("item_mock_%d", b.next),
	}, nil
}

// Stream is one scripted realtime stream.
type Stream struct {
	utterance SimulatedUtterance
	delay     time.Duration
	events    chan []byte
	itemID    string

	mu            sync.Mutex
	wg            sync.WaitGroup
	audioReceived int
	partialIndex  int
	finalSent     bool
	closed        bool
}

// Events returns the stream's event channel. It is closed by Close.
func (s *Stream) Events() <-chan []byte {
	return s.events
}

// SendAudio emits the next partial for each frame; once partials run out
// the utterance completes.
func (s *Stream) SendAudio(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.audioReceived++

	switch {
	case s.partialIndex < len(s.utterance.Partials):
		text := s.utterance.Partials[s.partialIndex]
		s.partialIndex++
		s.emitLocked(deltaEvent(s.itemID, text))
	case !s.finalSent:
		s.finalSent = true
		s.emitLocked(completedEvent(s.itemID, s.utterance.Final))
	}
	return nil
}

// emitLocked sends ev now or after the configured delay. Caller holds s.mu.
func (s *Stream) emitLocked(ev []byte) {
	if s.delay <= 0 {
		s.push(ev)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(s.delay)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			s.push(ev)
		}
	}()
}

func (s *Stream) push(ev []byte) {
	select {
	case s.events <- ev:
	default:
		// reader is not keeping up; drop like a lossy data channel
	}
}

// Close ends the stream. A pending utterance is completed first.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if !s.finalSent && s.partialIndex > 0 {
		s.finalSent = true
		s.push(completedEvent(s.itemID, s.utterance.Final))
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

func deltaEvent(itemID, text string) []byte {
	b, _ := json.Marshal(map[string]string{
		"type":    stt.EventDelta,
		"item_id": itemID,
		"delta":   text,
	})
	return b
}

func completedEvent(itemID, text string) []byte {
	b, _ := json.Marshal(map[string]string{
		"type":       stt.EventCompleted,
		"item_id":    itemID,
		"transcript": text,
	})
	return b
}
