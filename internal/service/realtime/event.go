package realtime

import (
	"encoding/json"
	"errors"

	"speech-transcribe-service/internal/service/stt"
)

// ErrMalformedEvent is returned for payloads that are not JSON objects or
// whose fields have unexpected types.
var ErrMalformedEvent = errors.New("malformed realtime event")

// EventKind discriminates the events the reconciler acts on.
type EventKind int

const (
	KindOther EventKind = iota
	KindDelta
	KindCompleted
)

func (k EventKind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindCompleted:
		return "completed"
	default:
		return "other"
	}
}

// Event is a parsed realtime transcription event.
type Event struct {
	Kind   EventKind
	ItemID string
	Text   string
}

type wireEvent struct {
	Type       string  `json:"type"`
	ItemID     string  `json:"item_id"`
	Delta      *string `json:"delta"`
	Transcript *string `json:"transcript"`
}

// ParseEvent decodes one raw event. A delta carries its text in "delta",
// falling back to "transcript".
func ParseEvent(raw []byte) (Event, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return Event{}, ErrMalformedEvent
	}
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, ErrMalformedEvent
	}

	ev := Event{ItemID: w.ItemID}
	switch w.Type {
	case stt.EventDelta:
		ev.Kind = KindDelta
		switch {
		case w.Delta != nil:
			ev.Text = *w.Delta
		case w.Transcript != nil:
			ev.Text = *w.Transcript
		}
	case stt.EventCompleted:
		ev.Kind = KindCompleted
		if w.Transcript != nil {
			ev.Text = *w.Transcript
		}
	default:
		ev.Kind = KindOther
	}
	return ev, nil
}
