// Package realtime reconciles live transcription events into visible live
// text and a finalized block log, and runs realtime sessions around it.
package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"speech-transcribe-service/internal/models"
	"speech-transcribe-service/internal/service/turn"
)

// Connection states.
const (
	StateIdle       = "idle"
	StateConnecting = "connecting"
	StateLive       = "live"
	StateStopped    = "stopped"
)

const (
	evStart = "start"
	evOpen  = "open"
	evStop  = "stop"
	evReset = "reset"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	// ErrNotStarted is returned by Stop on a session that never started.
	ErrNotStarted = errors.New("session not started")
)

// StateDelta describes what one operation changed. The zero value means nothing changed.
type StateDelta struct {
	Connection   string         `json:"connection,omitempty"`
	Paused       *bool          `json:"paused,omitempty"`
	LiveText     *string        `json:"liveText,omitempty"`
	Appended     []models.Block `json:"appended,omitempty"`
	Cleared      bool           `json:"cleared,omitempty"`
	FlushPending bool           `json:"-"`
	// Release asks the owner to close the upstream session and capture resources.
	Release bool   `json:"-"`
	TurnID  string `json:"turnId,omitempty"`
}

// Changed reports whether the delta carries anything a client would render.
func (d StateDelta) Changed() bool {
	return d.Connection != "" || d.Paused != nil || d.LiveText != nil || len(d.Appended) > 0 || d.Cleared
}

// Snapshot is a copy of the full reconciler state.
type Snapshot struct {
	Connection   string         `json:"connection"`
	Paused       bool           `json:"paused"`
	LiveText     string         `json:"liveText"`
	LiveBuffer   string         `json:"-"`
	LastTurnRaw  string         `json:"-"`
	FinalizedLog []models.Block `json:"finalizedLog"`
	TurnID       string         `json:"turnId"`
}

// Options configures a reconciler.
type Options struct {
	AutoClearLive bool
	Now           func() time.Time
	Turns         *turn.Generator
}

// Reconciler is the realtime transcript state machine. It holds no locks and
// starts no goroutines: the owner drives it from a single event loop.
type Reconciler struct {
	conn *fsm.FSM

	paused      bool
	liveBuffer  string
	liveText    string
	lastTurnRaw string
	log         []models.Block

	sessionID string
	autoClear bool
	now       func() time.Time
	turns     *turn.Generator
	turn      *turn.Lifecycle
}

// NewReconciler creates a reconciler in the idle state.
func NewReconciler(sessionID string, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Turns == nil {
		opts.Turns = turn.NewGenerator()
	}
	return &Reconciler{
		conn: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: evStart, Src: []string{StateIdle, StateStopped}, Dst: StateConnecting},
				{Name: evOpen, Src: []string{StateConnecting}, Dst: StateLive},
				{Name: evStop, Src: []string{StateConnecting, StateLive}, Dst: StateStopped},
				{Name: evReset, Src: []string{StateLive, StateStopped}, Dst: StateIdle},
			},
			fsm.Callbacks{},
		),
		sessionID: sessionID,
		autoClear: opts.AutoClearLive,
		now:       opts.Now,
		turns:     opts.Turns,
		turn:      turn.NewLifecycle(sessionID, opts.Turns),
	}
}

// Connection returns the current connection state.
func (r *Reconciler) Connection() string { return r.conn.Current() }

// Paused reports whether incoming events are being ignored.
func (r *Reconciler) Paused() bool { return r.paused }

// SetAutoClear toggles clearing live text when a turn completes.
func (r *Reconciler) SetAutoClear(on bool) { r.autoClear = on }

func (r *Reconciler) transition(event string) error {
	if !r.conn.Can(event) {
		return ErrInvalidTransition
	}
	return r.conn.Event(context.Background(), event)
}

// Start moves idle or stopped to connecting and clears all state.
func (r *Reconciler) Start() (StateDelta, error) {
	if err := r.transition(evStart); err != nil {
		return StateDelta{}, err
	}
	r.clear()
	return r.stateDelta(StateDelta{Cleared: true, LiveText: ptr("")}), nil
}

// Open marks the channel as open; events are processed from now on.
func (r *Reconciler) Open() (StateDelta, error) {
	if err := r.transition(evOpen); err != nil {
		return StateDelta{}, err
	}
	return r.stateDelta(StateDelta{}), nil
}

// HandleEvent applies one raw event. Events are ignored unless the session is
// live and not paused; malformed events are discarded.
func (r *Reconciler) HandleEvent(raw []byte) StateDelta {
	if !r.Accepting() {
		return StateDelta{}
	}
	ev, err := ParseEvent(raw)
	if err != nil {
		return StateDelta{}
	}
	return r.Apply(ev)
}

// Accepting reports whether events are processed: live and not paused.
func (r *Reconciler) Accepting() bool {
	return r.Connection() == StateLive && !r.paused
}

// Apply applies an already parsed event under the same rules as HandleEvent.
func (r *Reconciler) Apply(ev Event) StateDelta {
	if !r.Accepting() {
		return StateDelta{}
	}
	switch ev.Kind {
	case KindDelta:
		return r.applyDelta(ev.Text)
	case KindCompleted:
		return r.applyCompleted(ev.Text)
	default:
		return StateDelta{}
	}
}

func (r *Reconciler) applyDelta(incoming string) StateDelta {
	if incoming == "" {
		return StateDelta{}
	}

	var diff string
	switch {
	case r.lastTurnRaw == "":
		diff = incoming
	case strings.HasPrefix(incoming, r.lastTurnRaw):
		diff = incoming[len(r.lastTurnRaw):]
	default:
		// divergent resend: start a new line instead of duplicating
		diff = "\n" + incoming
	}
	r.lastTurnRaw = incoming
	r.liveBuffer += diff
	r.turn.Delta()

	return StateDelta{FlushPending: r.liveBuffer != "", TurnID: r.turn.ID()}
}

func (r *Reconciler) applyCompleted(transcript string) StateDelta {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return StateDelta{}
	}

	turnID, _ := r.turn.Finalize()
	r.turn.Advance()
	block := models.Block{Timestamp: r.now(), Text: text}
	r.log = append(r.log, block)
	r.liveBuffer = ""
	r.lastTurnRaw = ""

	d := StateDelta{Appended: []models.Block{block}, TurnID: turnID}
	if r.autoClear {
		r.liveText = ""
		d.LiveText = ptr("")
	}
	return d
}

// Flush moves buffered text into the live text.
func (r *Reconciler) Flush() StateDelta {
	if r.liveBuffer == "" {
		return StateDelta{}
	}
	r.liveText += r.liveBuffer
	r.liveBuffer = ""
	return StateDelta{LiveText: ptr(r.liveText), TurnID: r.turn.ID()}
}

// Pause stops processing events and finalizes pending live text with the
// "paused" label. Pausing twice is a no-op.
func (r *Reconciler) Pause() (StateDelta, error) {
	if r.Connection() != StateLive {
		return StateDelta{}, ErrInvalidTransition
	}
	if r.paused {
		return StateDelta{}, nil
	}
	r.paused = true
	d := r.finalizeLive(models.LabelPaused)
	d.Paused = ptr(true)
	return d, nil
}

// Resume processes events again. The next delta starts a fresh turn.
func (r *Reconciler) Resume() (StateDelta, error) {
	if !r.paused {
		return StateDelta{}, nil
	}
	r.paused = false
	return StateDelta{Paused: ptr(false)}, nil
}

// Stop moves to stopped, finalizing pending live text with the "stopped"
// label. It is idempotent once stopped and never waits on the backend: the
// returned delta asks the owner to release resources.
func (r *Reconciler) Stop() (StateDelta, error) {
	switch r.Connection() {
	case StateIdle:
		return StateDelta{}, ErrNotStarted
	case StateStopped:
		return StateDelta{}, nil
	}
	if err := r.transition(evStop); err != nil {
		return StateDelta{}, err
	}

	d := r.finalizeLive(models.LabelStopped)
	if r.paused {
		r.paused = false
		d.Paused = ptr(false)
	}
	d.Release = true
	return r.stateDelta(d), nil
}

// AddMarker appends a marker block. Allowed in every state but connecting,
// paused or not.
func (r *Reconciler) AddMarker(label string) (StateDelta, error) {
	if r.Connection() == StateConnecting {
		return StateDelta{}, ErrInvalidTransition
	}
	block := models.Block{Timestamp: r.now(), Label: label, Text: models.MarkerText}
	r.log = append(r.log, block)
	return StateDelta{Appended: []models.Block{block}}, nil
}

// HardReset clears every buffer and the finalized log and returns to idle.
// Not allowed while connecting. From live the session is released.
func (r *Reconciler) HardReset() (StateDelta, error) {
	from := r.Connection()
	if from == StateConnecting {
		return StateDelta{}, ErrInvalidTransition
	}
	if from != StateIdle {
		if err := r.transition(evReset); err != nil {
			return StateDelta{}, err
		}
	}
	r.clear()
	return r.stateDelta(StateDelta{
		Cleared:  true,
		LiveText: ptr(""),
		Paused:   ptr(false),
		Release:  from == StateLive,
	}), nil
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() Snapshot {
	return Snapshot{
		Connection:   r.Connection(),
		Paused:       r.paused,
		LiveText:     r.liveText,
		LiveBuffer:   r.liveBuffer,
		LastTurnRaw:  r.lastTurnRaw,
		FinalizedLog: append([]models.Block(nil), r.log...),
		TurnID:       r.turn.ID(),
	}
}

// finalizeLive writes live text plus the unflushed buffer into the log under
// label, then clears the live state.
func (r *Reconciler) finalizeLive(label string) StateDelta {
	pending := strings.TrimSpace(r.liveText + r.liveBuffer)
	hadLive := r.liveText != ""
	r.liveText = ""
	r.liveBuffer = ""
	r.lastTurnRaw = ""

	var d StateDelta
	if hadLive || pending != "" {
		d.LiveText = ptr("")
	}
	if pending == "" {
		return d
	}

	turnID, _ := r.turn.Finalize()
	r.turn.Advance()
	block := models.Block{Timestamp: r.now(), Label: label, Text: pending}
	r.log = append(r.log, block)
	d.Appended = []models.Block{block}
	d.TurnID = turnID
	return d
}

func (r *Reconciler) clear() {
	r.paused = false
	r.liveBuffer = ""
	r.liveText = ""
	r.lastTurnRaw = ""
	r.log = nil
	r.turn = turn.NewLifecycle(r.sessionID, r.turns)
}

func (r *Reconciler) stateDelta(d StateDelta) StateDelta {
	d.Connection = r.Connection()
	return d
}

func ptr[T any](v T) *T { return &v }
