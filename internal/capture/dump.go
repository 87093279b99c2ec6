package capture

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"parley/pkg/audioconv"
)

// Dumper writes finished recording sessions as 16-bit mono WAV files,
// one per session, named by wall-clock timestamp.
type Dumper struct {
	fs         afero.Fs
	dir        string
	sampleRate int
}

func NewDumper(fs afero.Fs, dir string, sampleRate int) (*Dumper, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &Dumper{fs: fs, dir: dir, sampleRate: sampleRate}, nil
}

func (d *Dumper) Write(pcm []float32) error {
	if len(pcm) == 0 {
		return nil
	}
	name := fmt.Sprintf("session-%d.wav", time.Now().UnixMilli())
	return audioconv.EncodeWAV(d.fs, filepath.Join(d.dir, name), pcm, d.sampleRate)
}
