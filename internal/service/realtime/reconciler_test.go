package realtime

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"speech-transcribe-service/internal/models"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newLive(t *testing.T, autoClear bool) *Reconciler {
	t.Helper()
	r := NewReconciler("sess", Options{AutoClearLive: autoClear, Now: func() time.Time { return fixedNow }})
	if _, err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	return r
}

func delta(text string) []byte {
	return []byte(fmt.Sprintf(`{"type":"conversation.item.input_audio_transcription.delta","item_id":"i1","delta":%q}`, text))
}

func completed(text string) []byte {
	return []byte(fmt.Sprintf(`{"type":"conversation.item.input_audio_transcription.completed","item_id":"i1","transcript":%q}`, text))
}

func TestReconciler_PrefixDiffDeltas(t *testing.T) {
	r := newLive(t, true)

	for _, d := range []string{"Hola", "Hola mun", "Hola mundo"} {
		r.HandleEvent(delta(d))
	}
	r.Flush()

	if got := r.Snapshot().LiveText; got != "Hola mundo" {
		t.Errorf("liveText = %q, want %q", got, "Hola mundo")
	}
}

func TestReconciler_PrefixDiffAcrossFlushes(t *testing.T) {
	r := newLive(t, true)

	r.HandleEvent(delta("Hola"))
	r.Flush()
	r.HandleEvent(delta("Hola mun"))
	r.Flush()
	r.HandleEvent(delta("Hola mundo"))
	d := r.Flush()

	if d.LiveText == nil || *d.LiveText != "Hola mundo" {
		t.Errorf("flush delta liveText = %v, want %q", d.LiveText, "Hola mundo")
	}
}

func TestReconciler_IncrementalDeltas(t *testing.T) {
	r := newLive(t, true)

	// true increments do not share a prefix with the previous fragment
	r.HandleEvent(delta("Hola"))
	r.HandleEvent(delta(" mundo"))
	r.Flush()

	if got := r.Snapshot().LiveText; got != "Hola\n mundo" {
		t.Errorf("liveText = %q", got)
	}
}

func TestReconciler_DivergentDeltaStartsNewLine(t *testing.T) {
	r := newLive(t, true)

	r.HandleEvent(delta("Hola mundo"))
	r.HandleEvent(delta("Adiós"))
	r.Flush()

	snap := r.Snapshot()
	if snap.LiveText != "Hola mundo\nAdiós" {
		t.Errorf("liveText = %q", snap.LiveText)
	}
	if snap.LastTurnRaw != "Adiós" {
		t.Errorf("lastTurnRaw = %q", snap.LastTurnRaw)
	}
}

func TestReconciler_DeltaSchedulesFlush(t *testing.T) {
	r := newLive(t, true)

	d := r.HandleEvent(delta("Hola"))
	if !d.FlushPending {
		t.Error("expected a flush to be scheduled")
	}
	if r.Snapshot().LiveText != "" {
		t.Error("expected live text unchanged before flush")
	}

	r.Flush()
	if d := r.HandleEvent(delta("Hola")); d.FlushPending {
		t.Error("expected no flush for an identical resend")
	}
}

func TestReconciler_FlushWithEmptyBuffer(t *testing.T) {
	r := newLive(t, true)

	if d := r.Flush(); d.Changed() {
		t.Errorf("expected no change, got %+v", d)
	}
}

func TestReconciler_CompletedAppendsBlock(t *testing.T) {
	r := newLive(t, true)

	r.HandleEvent(delta("Hola"))
	r.Flush()
	d := r.HandleEvent(completed("  Hola mundo.  "))

	snap := r.Snapshot()
	if len(snap.FinalizedLog) != 1 {
		t.Fatalf("expected 1 block, got %d", len(snap.FinalizedLog))
	}
	b := snap.FinalizedLog[0]
	if b.Text != "Hola mundo." || b.Label != "" || !b.Timestamp.Equal(fixedNow) {
		t.Errorf("unexpected block %+v", b)
	}
	if snap.LiveText != "" || snap.LiveBuffer != "" || snap.LastTurnRaw != "" {
		t.Errorf("expected live state cleared, got %+v", snap)
	}
	if len(d.Appended) != 1 || d.TurnID != "sess-turn-1" {
		t.Errorf("unexpected delta %+v", d)
	}
	if snap.TurnID != "sess-turn-2" {
		t.Errorf("expected next turn, got %s", snap.TurnID)
	}
}

func TestReconciler_CompletedWithoutAutoClearKeepsLiveText(t *testing.T) {
	r := newLive(t, false)

	r.HandleEvent(delta("Hola"))
	r.Flush()
	r.HandleEvent(completed("Hola"))

	snap := r.Snapshot()
	if snap.LiveText != "Hola" {
		t.Errorf("expected live text kept, got %q", snap.LiveText)
	}
	if snap.LastTurnRaw != "" {
		t.Error("expected lastTurnRaw cleared")
	}
}

func TestReconciler_EmptyCompletedIgnored(t *testing.T) {
	r := newLive(t, true)

	r.HandleEvent(delta("Hola"))
	d := r.HandleEvent(completed("   "))

	if d.Changed() {
		t.Errorf("expected no change, got %+v", d)
	}
	snap := r.Snapshot()
	if len(snap.FinalizedLog) != 0 || snap.LiveBuffer != "Hola" {
		t.Errorf("expected state untouched, got %+v", snap)
	}
}

func TestReconciler_MalformedEventsDiscarded(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(delta("Hola"))
	before := r.Snapshot()

	for _, raw := range [][]byte{
		nil,
		[]byte("not json"),
		[]byte(`["array"]`),
		[]byte(`{"type":`),
		[]byte(`{"type":"conversation.item.input_audio_transcription.delta","delta":42}`),
		[]byte(`{"type":"session.created"}`),
	} {
		if d := r.HandleEvent(raw); d.Changed() || d.FlushPending {
			t.Errorf("event %q changed state: %+v", raw, d)
		}
	}

	after := r.Snapshot()
	if after.LiveBuffer != before.LiveBuffer || after.LastTurnRaw != before.LastTurnRaw {
		t.Errorf("state changed by malformed events: %+v -> %+v", before, after)
	}
}

func TestReconciler_EventsIgnoredUnlessLive(t *testing.T) {
	r := NewReconciler("sess", Options{})
	r.HandleEvent(delta("idle"))
	r.Start()
	r.HandleEvent(delta("connecting"))

	if snap := r.Snapshot(); snap.LiveBuffer != "" {
		t.Errorf("expected events ignored before live, got buffer %q", snap.LiveBuffer)
	}
}

func TestReconciler_PauseFinalizesPendingText(t *testing.T) {
	r := newLive(t, true)

	r.HandleEvent(delta("buenos"))
	r.Flush()
	r.HandleEvent(delta("buenos días"))

	d, err := r.Pause()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := r.Snapshot()
	if len(snap.FinalizedLog) != 1 {
		t.Fatalf("expected exactly 1 block, got %d", len(snap.FinalizedLog))
	}
	if b := snap.FinalizedLog[0]; b.Text != "buenos días" || b.Label != models.LabelPaused {
		t.Errorf("unexpected block %+v", b)
	}
	if snap.LiveText != "" || snap.LiveBuffer != "" {
		t.Errorf("expected live state cleared, got %+v", snap)
	}
	if !snap.Paused || d.Paused == nil || !*d.Paused {
		t.Error("expected paused")
	}
}

func TestReconciler_PauseWithoutPendingText(t *testing.T) {
	r := newLive(t, true)

	if _, err := r.Pause(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Snapshot().FinalizedLog) != 0 {
		t.Error("expected no block for empty live text")
	}
}

func TestReconciler_PausedIgnoresEventsUntilResume(t *testing.T) {
	r := newLive(t, true)
	r.Pause()

	r.HandleEvent(delta("ignored"))
	r.HandleEvent(completed("ignored"))
	if snap := r.Snapshot(); snap.LiveBuffer != "" || len(snap.FinalizedLog) != 0 {
		t.Errorf("expected events ignored while paused, got %+v", snap)
	}

	r.Resume()
	r.HandleEvent(delta("nuevo"))
	r.Flush()
	if got := r.Snapshot().LiveText; got != "nuevo" {
		t.Errorf("expected fresh turn after resume, got %q", got)
	}
}

func TestReconciler_PauseRequiresLive(t *testing.T) {
	r := NewReconciler("sess", Options{})
	if _, err := r.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReconciler_MarkerWhilePaused(t *testing.T) {
	r := newLive(t, true)
	r.Pause()

	if _, err := r.AddMarker("M"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := r.Snapshot().FinalizedLog
	if len(log) != 1 || log[0].Label != "M" || log[0].Text != models.MarkerText {
		t.Errorf("unexpected log %+v", log)
	}
}

func TestReconciler_MarkerStates(t *testing.T) {
	r := NewReconciler("sess", Options{})

	if _, err := r.AddMarker("idle"); err != nil {
		t.Errorf("marker while idle: %v", err)
	}
	r.Start()
	if _, err := r.AddMarker("connecting"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected marker rejected while connecting, got %v", err)
	}
	r.Open()
	r.Stop()
	if _, err := r.AddMarker("stopped"); err != nil {
		t.Errorf("marker while stopped: %v", err)
	}
}

func TestReconciler_StopFinalizesAndReleases(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(delta("hasta luego"))

	d, err := r.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Release {
		t.Error("expected stop to request release")
	}
	if d.Connection != StateStopped {
		t.Errorf("expected stopped, got %s", d.Connection)
	}

	log := r.Snapshot().FinalizedLog
	if len(log) != 1 || log[0].Label != models.LabelStopped || log[0].Text != "hasta luego" {
		t.Errorf("unexpected log %+v", log)
	}
}

func TestReconciler_StopIdempotent(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(delta("uno"))
	r.Stop()

	d, err := r.Stop()
	if err != nil {
		t.Fatalf("unexpected error on second stop: %v", err)
	}
	if d.Changed() || d.Release {
		t.Errorf("expected second stop to be a no-op, got %+v", d)
	}
	if len(r.Snapshot().FinalizedLog) != 1 {
		t.Error("expected no extra block from second stop")
	}
}

func TestReconciler_StopWhileIdle(t *testing.T) {
	r := NewReconciler("sess", Options{})
	if _, err := r.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestReconciler_StopWhileConnecting(t *testing.T) {
	r := NewReconciler("sess", Options{})
	r.Start()

	d, err := r.Stop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Release || r.Connection() != StateStopped {
		t.Errorf("expected stopped with release, got %+v", d)
	}
}

func TestReconciler_StopClearsPause(t *testing.T) {
	r := newLive(t, true)
	r.Pause()
	r.Stop()

	if r.Paused() {
		t.Error("expected pause cleared on stop")
	}
}

func TestReconciler_FrozenAfterStop(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(completed("uno"))
	r.Stop()

	r.HandleEvent(completed("dos"))
	if len(r.Snapshot().FinalizedLog) != 1 {
		t.Error("expected no appends from events after stop")
	}
}

func TestReconciler_HardReset(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(completed("uno"))
	r.HandleEvent(delta("dos"))

	d, err := r.HardReset()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Release || !d.Cleared {
		t.Errorf("expected release and cleared from live, got %+v", d)
	}

	snap := r.Snapshot()
	if snap.Connection != StateIdle || len(snap.FinalizedLog) != 0 || snap.LiveBuffer != "" {
		t.Errorf("expected cleared idle state, got %+v", snap)
	}
}

func TestReconciler_HardResetStates(t *testing.T) {
	r := NewReconciler("sess", Options{})

	if _, err := r.HardReset(); err != nil {
		t.Errorf("reset while idle: %v", err)
	}
	r.Start()
	if _, err := r.HardReset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected reset rejected while connecting, got %v", err)
	}
	r.Open()
	r.Stop()
	d, err := r.HardReset()
	if err != nil {
		t.Fatalf("reset while stopped: %v", err)
	}
	if d.Release {
		t.Error("stopped session was already released")
	}
}

func TestReconciler_StartClearsState(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(completed("uno"))
	r.Stop()

	if _, err := r.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if snap := r.Snapshot(); len(snap.FinalizedLog) != 0 || snap.Connection != StateConnecting {
		t.Errorf("expected fresh connecting state, got %+v", snap)
	}
	if _, err := r.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected second start rejected, got %v", err)
	}
}

func TestReconciler_LogIsAppendOnly(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(completed("uno"))

	snap := r.Snapshot()
	snap.FinalizedLog[0].Text = "mutated"

	if r.Snapshot().FinalizedLog[0].Text != "uno" {
		t.Error("snapshot must not alias the finalized log")
	}
}

func TestReconciler_TranscriptRendering(t *testing.T) {
	r := newLive(t, true)
	r.HandleEvent(completed("Hola mundo."))
	r.AddMarker("M")

	want := "[10:00:00]\nHola mundo.\n\n[10:00:00] M\n" + models.MarkerText
	if got := models.RenderLog(r.Snapshot().FinalizedLog); got != want {
		t.Errorf("RenderLog = %q, want %q", got, want)
	}
}

func TestReconciler_Accepting(t *testing.T) {
	r := NewReconciler("s1", Options{})
	if r.Accepting() {
		t.Error("idle reconciler should not accept events")
	}
	r = newLive(t, true)
	if !r.Accepting() {
		t.Error("live reconciler should accept events")
	}
	r.Pause()
	if r.Accepting() {
		t.Error("paused reconciler should not accept events")
	}
	r.Resume()
	r.Stop()
	if r.Accepting() {
		t.Error("stopped reconciler should not accept events")
	}
}
