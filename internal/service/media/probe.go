package media

import (
	"fmt"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Prober measures decoded MP3 durations. go-mp3 always decodes to
// 16-bit stereo, so one sample frame is 4 bytes.
type MP3Prober struct{}

// Duration returns the decoded length of an MP3 file in seconds.
func (MP3Prober) Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	if d.SampleRate() == 0 {
		return 0, fmt.Errorf("decode mp3: zero sample rate")
	}
	samples := d.Length() / 4
	return float64(samples) / float64(d.SampleRate()), nil
}
