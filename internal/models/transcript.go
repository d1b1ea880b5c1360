// Package models defines the data structures shared by the batch and realtime paths.
package models

import (
	"io"
	"strings"
	"time"
)

// AudioSource is a caller-owned audio byte stream plus its metadata.
// The core only reads from Body.
type AudioSource struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// SegmentSpec describes one transcoded segment file.
type SegmentSpec struct {
	Index              int
	FilePath           string
	StartOffsetSeconds float64
}

// TranscriptChunk is the transcript of one segment with nominal offsets.
type TranscriptChunk struct {
	Index        int     `json:"index"`
	StartSeconds float64 `json:"start"`
	EndSeconds   float64 `json:"end"`
	Text         string  `json:"text"`
}

// FullTranscript is the merged result of a segmented transcription.
type FullTranscript struct {
	FullText string            `json:"fullText"`
	Chunks   []TranscriptChunk `json:"chunks"`
}

// SingleTranscript is the result of a single-call transcription.
type SingleTranscript struct {
	Text string `json:"text"`
}

// Block labels used when live text is finalized in place.
const (
	LabelPaused  = "paused"
	LabelStopped = "stopped"
)

// MarkerText is the literal stored in a marker block.
const MarkerText = "-- mark --"

// Block is one finalized entry of a realtime transcript log.
type Block struct {
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label,omitempty"`
	Text      string    `json:"text"`
}

// String renders the block as "[HH:MM:SS] label" followed by its text.
func (b Block) String() string {
	header := "[" + b.Timestamp.Format("15:04:05") + "]"
	if b.Label != "" {
		header += " " + b.Label
	}
	return header + "\n" + b.Text
}

// RenderLog joins blocks with a blank line, oldest first.
func RenderLog(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.String()
	}
	return strings.Join(parts, "\n\n")
}

// LiveTextEvent is published on every flush of a realtime session's live text.
type LiveTextEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	TurnID    string `json:"turnId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// BlockEvent is published when a block is appended to a session's finalized log.
type BlockEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	TurnID    string `json:"turnId,omitempty"`
	Label     string `json:"label,omitempty"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// BatchTranscriptEvent is published when a segmented transcription completes.
type BatchTranscriptEvent struct {
	EventType  string            `json:"eventType"`
	JobID      string            `json:"jobId"`
	SourceName string            `json:"sourceName"`
	FullText   string            `json:"fullText"`
	Chunks     []TranscriptChunk `json:"chunks"`
	Timestamp  int64             `json:"timestamp"`
}

// Event types carried in the payloads above.
const (
	EventTypeLive  = "transcript.live"
	EventTypeBlock = "transcript.block"
	EventTypeBatch = "transcript.batch"
)
