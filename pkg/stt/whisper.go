package stt

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// minDecodeSamples is how much fresh audio must accumulate before another
// decode pass is worth running (1 s @ 16 kHz). Whisper produces garbage on
// shorter windows.
const minDecodeSamples = 16000

type whisperEngine struct {
	model whisper.Model
	opts  Options
}

// NewWhisperEngine loads a ggml model from disk. Loading is the expensive
// part; failure here is an initialization failure and should be fatal to
// the caller.
func NewWhisperEngine(modelPath string, opts Options) (Engine, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if opts.Language == "" {
		opts.Language = "auto"
	}
	if opts.Threads <= 0 {
		opts.Threads = runtime.NumCPU()
	}
	return &whisperEngine{model: m, opts: opts}, nil
}

func (e *whisperEngine) NewStream() (Stream, error) {
	if e.model == nil {
		return nil, errors.New("engine closed")
	}
	return &whisperStream{engine: e}, nil
}

func (e *whisperEngine) Transcribe(pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("no audio samples provided")
	}
	return e.decode(pcm)
}

func (e *whisperEngine) Close() error {
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	return err
}

// decode runs a full pass over pcm and returns the joined segment text.
func (e *whisperEngine) decode(pcm []float32) (string, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}

	if err := wctx.SetLanguage(e.opts.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(e.opts.TranslateToEn)
	wctx.SetThreads(uint(e.opts.Threads))
	if e.opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(e.opts.InitialPrompt)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var b strings.Builder
	for {
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(s.Text))
	}
	return b.String(), nil
}

// whisperStream fakes incremental recognition on top of whisper's
// batch-only API: frames accumulate in a buffer and DecodeNext re-decodes
// the whole utterance once enough new audio has arrived since the last
// pass. CurrentText therefore converges on the full utterance text as the
// speaker keeps talking.
type whisperStream struct {
	engine *whisperEngine

	mu      sync.Mutex
	buf     []float32
	decoded int // samples covered by the last decode pass
	text    string
	closed  bool
}

func (s *whisperStream) AcceptFrame(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream closed")
	}
	s.buf = append(s.buf, samples...)
	return nil
}

func (s *whisperStream) HasResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && len(s.buf)-s.decoded >= minDecodeSamples
}

func (s *whisperStream) DecodeNext() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("stream closed")
	}
	pcm := make([]float32, len(s.buf))
	copy(pcm, s.buf)
	s.mu.Unlock()

	// Decode outside the lock; a pass over a long utterance is slow.
	text, err := s.engine.decode(pcm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.closed {
		s.text = text
		s.decoded = len(pcm)
	}
	s.mu.Unlock()
	return nil
}

func (s *whisperStream) CurrentText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func (s *whisperStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
	return nil
}
