// Package schema validates result shapes before they leave the service.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/models"
)

// ErrInvalidTranscript is wrapped by every validation failure.
var ErrInvalidTranscript = errors.New("invalid transcript")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateTranscript checks the shape of a segmented result: chunks[i].Index == i,
// nominal offsets start = i*segmentSeconds and end = start+segmentSeconds, and a
// trimmed fullText.
func (v *Validator) ValidateTranscript(t *models.FullTranscript, segmentSeconds int) error {
	if t == nil {
		return fmt.Errorf("%w: nil transcript", ErrInvalidTranscript)
	}
	if segmentSeconds <= 0 {
		return fmt.Errorf("%w: segment duration %d", ErrInvalidTranscript, segmentSeconds)
	}
	if t.FullText != strings.TrimSpace(t.FullText) {
		return fmt.Errorf("%w: fullText has surrounding whitespace", ErrInvalidTranscript)
	}
	span := float64(segmentSeconds)
	for i, c := range t.Chunks {
		if c.Index != i {
			return fmt.Errorf("%w: chunk %d has index %d", ErrInvalidTranscript, i, c.Index)
		}
		if want := float64(i) * span; c.StartSeconds != want {
			return fmt.Errorf("%w: chunk %d starts at %.3f, want %.3f",
				ErrInvalidTranscript, i, c.StartSeconds, want)
		}
		if c.EndSeconds != c.StartSeconds+span {
			return fmt.Errorf("%w: chunk %d ends at %.3f, want %.3f",
				ErrInvalidTranscript, i, c.EndSeconds, c.StartSeconds+span)
		}
	}
	log.Debug().Int("chunks", len(t.Chunks)).Msg("transcript validated")
	return nil
}
