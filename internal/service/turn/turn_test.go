package turn

import (
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	g := NewGenerator()

	if got := g.Next("sess-1"); got != "sess-1-turn-1" {
		t.Errorf("expected sess-1-turn-1, got %s", got)
	}
	if got := g.Next("sess-1"); got != "sess-1-turn-2" {
		t.Errorf("expected sess-1-turn-2, got %s", got)
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	g := NewGenerator()
	const n = 100

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Next("s")
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d unique ids, got %d", n, len(seen))
	}
}

func TestLifecycle_InitialState(t *testing.T) {
	l := NewLifecycle("s", nil)

	if l.State() != StateWaiting {
		t.Errorf("expected WAITING, got %s", l.State())
	}
	if l.ID() != "s-turn-1" {
		t.Errorf("expected s-turn-1, got %s", l.ID())
	}
}

func TestLifecycle_DeltaThenFinalize(t *testing.T) {
	l := NewLifecycle("s", nil)

	for i := 0; i < 3; i++ {
		if err := l.Delta(); err != nil {
			t.Fatalf("delta %d: %v", i, err)
		}
	}
	if l.State() != StateSpeaking || l.Deltas() != 3 {
		t.Errorf("expected SPEAKING with 3 deltas, got %s with %d", l.State(), l.Deltas())
	}

	id, err := l.Finalize()
	if err != nil || id != "s-turn-1" {
		t.Fatalf("Finalize() = %s, %v", id, err)
	}
	if err := l.Delta(); err != ErrTurnFinalized {
		t.Errorf("expected ErrTurnFinalized after finalize, got %v", err)
	}
	if _, err := l.Finalize(); err != ErrTurnFinalized {
		t.Errorf("expected ErrTurnFinalized on second finalize, got %v", err)
	}
}

func TestLifecycle_Advance(t *testing.T) {
	l := NewLifecycle("s", nil)

	if id := l.Advance(); id != "s-turn-1" {
		t.Errorf("advancing an empty turn should keep its id, got %s", id)
	}

	l.Delta()
	l.Finalize()
	if id := l.Advance(); id != "s-turn-2" {
		t.Errorf("expected s-turn-2, got %s", id)
	}
	if l.State() != StateWaiting || l.Deltas() != 0 {
		t.Errorf("expected fresh turn, got %s with %d deltas", l.State(), l.Deltas())
	}
}

func TestLifecycle_FinalizeWithoutDeltas(t *testing.T) {
	l := NewLifecycle("s", nil)

	if _, err := l.Finalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.State() != StateFinalized {
		t.Errorf("expected FINALIZED, got %s", l.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateWaiting, "WAITING"},
		{StateSpeaking, "SPEAKING"},
		{StateFinalized, "FINALIZED"},
		{State(42), "UNKNOWN(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
