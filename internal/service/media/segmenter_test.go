package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFFmpeg(t *testing.T) {
	tests := []struct {
		format  string
		ext     string
		wantErr bool
	}{
		{"mp3", "mp3", false},
		{"OGG", "ogg", false},
		{"wav", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f, err := NewFFmpeg("", "", tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFFmpeg(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if err == nil && f.Ext() != tt.ext {
				t.Errorf("expected ext %s, got %s", tt.ext, f.Ext())
			}
		})
	}
}

func TestFFmpeg_Args(t *testing.T) {
	f, _ := NewFFmpeg("ffmpeg", "48k", "mp3")
	args := strings.Join(f.Args("/in/a.m4a", "/out", 900), " ")

	for _, want := range []string{
		"-i /in/a.m4a",
		"-ac 1",
		"-ar 16000",
		"-b:a 48k",
		"-c:a libmp3lame",
		"-f segment",
		"-segment_time 900",
		"-reset_timestamps 1",
		filepath.Join("/out", "seg_%05d.mp3"),
	} {
		if !strings.Contains(args, want) {
			t.Errorf("expected %q in args %q", want, args)
		}
	}
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestListSegments_SortedWithNominalOffsets(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "seg_00002.mp3", "seg_00000.mp3", "seg_00001.mp3", "input.mp3", "seg_00003.txt")

	segs, err := ListSegments(dir, "mp3", 900)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if s.Index != i {
			t.Errorf("segment %d has index %d", i, s.Index)
		}
		if s.StartOffsetSeconds != float64(i*900) {
			t.Errorf("segment %d start = %v, want %v", i, s.StartOffsetSeconds, i*900)
		}
		if filepath.Base(s.FilePath) != "seg_0000"+string(rune('0'+i))+".mp3" {
			t.Errorf("segment %d path = %s", i, s.FilePath)
		}
	}
}

func TestListSegments_Empty(t *testing.T) {
	_, err := ListSegments(t.TempDir(), "mp3", 900)
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}

func TestSegment_MissingBinary(t *testing.T) {
	f, _ := NewFFmpeg(filepath.Join(t.TempDir(), "no-ffmpeg"), "64k", "mp3")
	_, err := f.Segment(context.Background(), "in.mp3", t.TempDir(), 900)

	var se *SegmentationError
	if !errors.As(err, &se) {
		t.Fatalf("expected SegmentationError, got %v", err)
	}
}

func TestSegmentationError_Unwrap(t *testing.T) {
	err := &SegmentationError{Input: "/tmp/x.mp3", Err: ErrNoSegments}
	if !errors.Is(err, ErrNoSegments) {
		t.Error("expected SegmentationError to unwrap to ErrNoSegments")
	}
	if !strings.Contains(err.Error(), "x.mp3") {
		t.Errorf("expected file name in message, got %q", err.Error())
	}
}

func TestMP3Prober_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mp3")
	os.WriteFile(path, []byte("not an mp3"), 0o644)

	if _, err := (MP3Prober{}).Duration(path); err == nil {
		t.Error("expected error for invalid mp3")
	}
}

func TestMP3Prober_MissingFile(t *testing.T) {
	if _, err := (MP3Prober{}).Duration(filepath.Join(t.TempDir(), "none.mp3")); err == nil {
		t.Error("expected error for missing file")
	}
}
