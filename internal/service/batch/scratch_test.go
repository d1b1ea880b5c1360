package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScratch_Lifecycle(t *testing.T) {
	base := t.TempDir()
	s, err := NewScratch(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if filepath.Dir(s.Root()) != base {
		t.Errorf("expected scratch under %s, got %s", base, s.Root())
	}

	path, err := s.Persist(strings.NewReader("audio"), "Clip.MP3")
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if filepath.Ext(path) != ".mp3" {
		t.Errorf("expected lowercased extension, got %s", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "audio" {
		t.Errorf("unexpected persisted content %q", data)
	}

	dir, err := s.SegmentDir()
	if err != nil {
		t.Fatalf("segment dir: %v", err)
	}
	if again, _ := s.SegmentDir(); again != dir {
		t.Errorf("expected SegmentDir to be stable, got %s and %s", dir, again)
	}

	if err := s.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(s.Root()); !os.IsNotExist(err) {
		t.Errorf("expected scratch root removed, stat err = %v", err)
	}
}

func TestScratch_SeparateRootsPerCall(t *testing.T) {
	base := t.TempDir()
	a, _ := NewScratch(base)
	b, _ := NewScratch(base)
	defer a.Release()
	defer b.Release()

	if a.Root() == b.Root() {
		t.Error("expected distinct scratch roots")
	}
}

func TestNewScratch_MissingBase(t *testing.T) {
	if _, err := NewScratch(filepath.Join(t.TempDir(), "missing", "dir")); err == nil {
		t.Error("expected error for missing base directory")
	}
}
