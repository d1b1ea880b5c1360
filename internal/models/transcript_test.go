package models

import (
	"testing"
	"time"
)

func TestBlock_String(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 5, 0, time.UTC)

	tests := []struct {
		block    Block
		expected string
	}{
		{Block{Timestamp: ts, Text: "hola"}, "[09:30:05]\nhola"},
		{Block{Timestamp: ts, Label: LabelPaused, Text: "buenos días"}, "[09:30:05] paused\nbuenos días"},
	}

	for _, tt := range tests {
		if got := tt.block.String(); got != tt.expected {
			t.Errorf("Block.String() = %q, want %q", got, tt.expected)
		}
	}
}

func TestRenderLog(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 5, 0, time.UTC)
	blocks := []Block{
		{Timestamp: ts, Text: "uno"},
		{Timestamp: ts, Label: "M", Text: MarkerText},
	}

	got := RenderLog(blocks)
	want := "[09:30:05]\nuno\n\n[09:30:05] M\n" + MarkerText
	if got != want {
		t.Errorf("RenderLog() = %q, want %q", got, want)
	}

	if RenderLog(nil) != "" {
		t.Error("expected empty render for empty log")
	}
}
