// Package turn tracks spoken turns within a realtime session.
package turn

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Generator hands out turn IDs of the form "<session>-turn-N".
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next(sessionID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-turn-%d", sessionID, n)
}

// State is the lifecycle state of one turn.
type State int

const (
	// StateWaiting - no text received for this turn yet.
	StateWaiting State = iota
	// StateSpeaking - deltas are arriving.
	StateSpeaking
	// StateFinalized - the turn's text went into the log. Terminal.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateSpeaking:
		return "SPEAKING"
	case StateFinalized:
		return "FINALIZED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrTurnFinalized is returned for any update to a finalized turn.
var ErrTurnFinalized = errors.New("turn already finalized")

// Lifecycle tracks the current turn of a session.
//
//	WAITING -> SPEAKING -> FINALIZED
//	   └────────────────────┘ (completed without deltas)
//
// It is owned by a single goroutine and does no locking.
type Lifecycle struct {
	sessionID string
	gen       *Generator
	id        string
	state     State
	deltas    int
}

// NewLifecycle starts the first turn of a session.
func NewLifecycle(sessionID string, gen *Generator) *Lifecycle {
	if gen == nil {
		gen = NewGenerator()
	}
	return &Lifecycle{
		sessionID: sessionID,
		gen:       gen,
		id:        gen.Next(sessionID),
		state:     StateWaiting,
	}
}

func (l *Lifecycle) ID() string   { return l.id }
func (l *Lifecycle) State() State { return l.state }
func (l *Lifecycle) Deltas() int  { return l.deltas }

// Delta records incoming text for the turn.
func (l *Lifecycle) Delta() error {
	if l.state == StateFinalized {
		return ErrTurnFinalized
	}
	l.state = StateSpeaking
	l.deltas++
	return nil
}

// Finalize closes the turn and returns its ID.
func (l *Lifecycle) Finalize() (string, error) {
	if l.state == StateFinalized {
		return l.id, ErrTurnFinalized
	}
	l.state = StateFinalized
	return l.id, nil
}

// Advance starts a new turn. Calling it on a turn that never received text
// keeps the current ID.
func (l *Lifecycle) Advance() string {
	if l.state == StateWaiting {
		return l.id
	}
	l.id = l.gen.Next(l.sessionID)
	l.state = StateWaiting
	l.deltas = 0
	return l.id
}
