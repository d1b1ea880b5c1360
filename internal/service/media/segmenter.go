// Package media cuts audio files into fixed-duration segments with ffmpeg.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/models"
)

// ErrNoSegments means the transcoder ran but produced no segment files.
var ErrNoSegments = errors.New("transcoder produced no segments")

// SegmentationError is a fatal segmentation failure. It wraps ErrNoSegments
// or the error from running the transcoder.
type SegmentationError struct {
	Input string
	Err   error
}

func (e *SegmentationError) Error() string {
	return fmt.Sprintf("segmentation of %s failed: %v", filepath.Base(e.Input), e.Err)
}

func (e *SegmentationError) Unwrap() error { return e.Err }

// SampleRate is the rate every segment is resampled to.
const SampleRate = 16000

const segmentPrefix = "seg_"

type codec struct {
	encoder string
	ext     string
}

var codecs = map[string]codec{
	"mp3": {encoder: "libmp3lame", ext: "mp3"},
	"ogg": {encoder: "libopus", ext: "ogg"},
}

// FFmpeg is the Transcoder Adapter. Segments are mono, 16 kHz, bitrate
// capped, with timestamps reset to zero, and named so that lexicographic
// order is temporal order.
type FFmpeg struct {
	path    string
	bitrate string
	codec   codec
}

// NewFFmpeg creates a segmenter for the given output format (mp3 or ogg).
func NewFFmpeg(binary, bitrate, format string) (*FFmpeg, error) {
	c, ok := codecs[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported segment format %q", format)
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "64k"
	}
	return &FFmpeg{path: binary, bitrate: bitrate, codec: c}, nil
}

// Ext is the file extension of produced segments.
func (f *FFmpeg) Ext() string { return f.codec.ext }

// Args builds the ffmpeg command line for one segmentation run.
func (f *FFmpeg) Args(input, outDir string, segmentSeconds int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-b:a", f.bitrate,
		"-c:a", f.codec.encoder,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		filepath.Join(outDir, segmentPrefix+"%05d."+f.codec.ext),
	}
}

// Segment runs ffmpeg and returns the produced segments in order.
func (f *FFmpeg) Segment(ctx context.Context, input, outDir string, segmentSeconds int) ([]models.SegmentSpec, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, f.Args(input, outDir, segmentSeconds)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		log.Error().Err(err).Str("stderr", msg).Str("input", input).Msg("ffmpeg failed")
		return nil, &SegmentationError{Input: input, Err: fmt.Errorf("ffmpeg: %w: %s", err, msg)}
	}

	segs, err := ListSegments(outDir, f.codec.ext, segmentSeconds)
	if err != nil {
		return nil, &SegmentationError{Input: input, Err: err}
	}
	return segs, nil
}

// ListSegments reads the segment files in dir, sorted by name, with nominal
// offsets index*segmentSeconds.
func ListSegments(dir, ext string, segmentSeconds int) ([]models.SegmentSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), segmentPrefix) || filepath.Ext(e.Name()) != "."+ext {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, ErrNoSegments
	}
	sort.Strings(names)

	segs := make([]models.SegmentSpec, len(names))
	for i, name := range names {
		segs[i] = models.SegmentSpec{
			Index:              i,
			FilePath:           filepath.Join(dir, name),
			StartOffsetSeconds: float64(i * segmentSeconds),
		}
	}
	return segs, nil
}
