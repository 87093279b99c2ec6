// Package audioconv decodes common audio containers into the mono 16 kHz
// float32 PCM the recognition engine consumes, and encodes captured PCM
// back out as WAV for inspection.
package audioconv

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// TargetRate is the sample rate every decoder normalizes to.
const TargetRate = 16000

// DecodeFile reads path from fs and returns mono float32 PCM at
// TargetRate. The format is picked by extension, falling back to sniffing
// the container magic.
func DecodeFile(fs afero.Fs, path string) ([]float32, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(f)
	case ".mp3":
		return decodeMP3(f)
	case ".ogg", ".oga":
		return decodeOgg(f)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch string(magic) {
	case "RIFF":
		return decodeWAV(f)
	case "OggS":
		return decodeOgg(f)
	}
	return nil, fmt.Errorf("unsupported audio format: %s", path)
}

// decodeOgg tries Vorbis first, then Opus; both live in Ogg containers
// and the page header does not say which.
func decodeOgg(f afero.File) ([]float32, error) {
	pcm, vorbErr := decodeOggVorbis(f)
	if vorbErr == nil {
		return pcm, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	pcm, opusErr := decodeOggOpus(f)
	if opusErr == nil {
		return pcm, nil
	}
	return nil, fmt.Errorf("ogg decode: vorbis: %v; opus: %v", vorbErr, opusErr)
}
