package mock

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"speech-transcribe-service/internal/service/stt"
)

// Transcriber implements stt.Transcriber with scripted results.
type Transcriber struct {
	// Results are returned in call order; once exhausted a text derived from
	// the file name is returned.
	Results []stt.Result
	// FailOn makes the call with this zero-based index fail. Negative disables it.
	FailOn int

	mu    sync.Mutex
	calls []string
}

// NewTranscriber creates a scripted transcriber.
func NewTranscriber(results ...stt.Result) *Transcriber {
	return &Transcriber{Results: results, FailOn: -1}
}

// Transcribe returns the next scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.calls)
	t.calls = append(t.calls, path)

	if n == t.FailOn {
		return nil, stt.NewBackendError("mock", 500, "scripted failure")
	}
	if n < len(t.Results) {
		r := t.Results[n]
		return &r, nil
	}
	return &stt.Result{Text: fmt.Sprintf("transcript of %s", filepath.Base(path))}, nil
}

// Calls returns the paths passed to Transcribe so far.
func (t *Transcriber) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}
