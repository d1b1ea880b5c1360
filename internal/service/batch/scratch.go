package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Scratch is temporary storage owned by one orchestrator call. Everything
// it holds lives under a single root, so Release removes it all.
type Scratch struct {
	root string
}

// NewScratch creates a fresh scratch root under base (os temp dir when empty).
func NewScratch(base string) (*Scratch, error) {
	root, err := os.MkdirTemp(base, "transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch: %w", err)
	}
	return &Scratch{root: root}, nil
}

// Root is the scratch directory.
func (s *Scratch) Root() string { return s.root }

// Persist copies the source body into the scratch root, keeping the
// source extension so the transcoder can sniff the container.
func (s *Scratch) Persist(body io.Reader, name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	path := filepath.Join(s.root, "input-"+uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create scratch input: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("persist source: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("persist source: %w", err)
	}
	return path, nil
}

// SegmentDir creates the directory the transcoder writes into.
func (s *Scratch) SegmentDir() (string, error) {
	dir := filepath.Join(s.root, "segments")
	if err := os.Mkdir(dir, 0o700); err != nil && !os.IsExist(err) {
		return "", fmt.Errorf("create segment dir: %w", err)
	}
	return dir, nil
}

// Release removes the scratch root and everything in it.
func (s *Scratch) Release() error {
	return os.RemoveAll(s.root)
}
