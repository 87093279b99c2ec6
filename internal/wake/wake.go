// Package wake watches the microphone for one of the configured trigger
// phrases and emits an event when it hears one.
package wake

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	log "log/slog"

	"parley/pkg/stt"
)

// onsetRatio is the spectral-flux jump that counts as voice starting
// relative to the previous frame's flux.
const onsetRatio = 1.75

type Event struct {
	Word string
	At   time.Time
}

// Detector is the wake-word capability the orchestrator consumes.
type Detector interface {
	Start() error
	Stop()
	Pause()
	Resume()
	Events() <-chan Event
}

type Config struct {
	Engine stt.Engine
	// Phrases are the accepted trigger utterances, matched as normalized
	// substrings of the recognized text.
	Phrases []string
	// WindowSeconds bounds how much audio one detection stream holds
	// before it is recycled.
	WindowSeconds int
	SampleRate    int
	FrameSize     int
}

// Matcher recognizes wake phrases by running a whisper stream over a
// bounded rolling window of voice-gated audio.
type Matcher struct {
	engine     stt.Engine
	phrases    []string
	maxSamples int

	events chan Event

	mu       sync.Mutex
	running  bool
	paused   bool
	stream   stt.Stream
	gen      uint64 // bumped whenever the window is recycled
	gate     *fluxGate
	lastFlux float64
	heard    bool
	buffered int

	frameSize int
}

func New(cfg *Config) (*Matcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}
	if len(cfg.Phrases) == 0 {
		return nil, fmt.Errorf("no wake phrases configured")
	}
	window := cfg.WindowSeconds
	if window <= 0 {
		window = 5
	}
	phrases := make([]string, 0, len(cfg.Phrases))
	for _, p := range cfg.Phrases {
		if n := normalize(p); n != "" {
			phrases = append(phrases, n)
		}
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("wake phrases normalize to nothing")
	}
	return &Matcher{
		engine:     cfg.Engine,
		phrases:    phrases,
		maxSamples: window * cfg.SampleRate,
		frameSize:  cfg.FrameSize,
		events:     make(chan Event, 4),
	}, nil
}

func (m *Matcher) Events() <-chan Event { return m.events }

func (m *Matcher) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		log.Warn("wake detector already started")
		return nil
	}
	stream, err := m.engine.NewStream()
	if err != nil {
		return fmt.Errorf("wake stream: %w", err)
	}
	m.stream = stream
	m.gate = newFluxGate(m.frameSize)
	m.lastFlux = 0
	m.heard = false
	m.buffered = 0
	m.running = true
	log.Info("wake detector started", "phrases", m.phrases)
	return nil
}

func (m *Matcher) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			log.Warn("wake stream close", "err", err)
		}
		m.stream = nil
	}
	log.Info("wake detector stopped")
}

// Pause drops frames until Resume. The in-flight window is discarded so
// speech from before the pause cannot trigger afterwards.
func (m *Matcher) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return
	}
	m.paused = true
	m.recycleLocked()
}

func (m *Matcher) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// OnFrame runs on the audio source's delivery goroutine. Frames with no
// voice energy are gated out before they reach the recognizer, which is
// what keeps idle listening cheap.
//
// The matcher mutex is held for the gate bookkeeping only, never across
// the decode work: a full-window pass can take hundreds of milliseconds
// and Pause/Resume must not wait behind it. The generation counter
// detects a recycle that happened mid-decode so a stale result is
// discarded instead of matched.
func (m *Matcher) OnFrame(samples []float32) {
	m.mu.Lock()
	if !m.running || m.paused || m.stream == nil {
		m.mu.Unlock()
		return
	}

	flux := m.gate.Flux(samples)
	if m.lastFlux == 0 {
		m.lastFlux = flux
		m.mu.Unlock()
		return
	}
	if !m.heard {
		if flux < m.lastFlux*onsetRatio {
			m.lastFlux = flux
			m.mu.Unlock()
			return
		}
		m.heard = true
	}
	stream := m.stream
	gen := m.gen
	m.mu.Unlock()

	if err := stream.AcceptFrame(samples); err != nil {
		log.Warn("wake frame dropped", "err", err)
		return
	}
	for stream.HasResult() {
		if err := stream.DecodeNext(); err != nil {
			log.Warn("wake decode failed", "err", err)
			break
		}
	}
	text := stream.CurrentText()

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || !m.running || m.paused {
		// the window was recycled while we were decoding
		return
	}
	m.buffered += len(samples)

	if word, ok := m.match(text); ok {
		log.Info("wake phrase detected", "word", word)
		select {
		case m.events <- Event{Word: word, At: time.Now()}:
		default:
			log.Warn("wake event dropped, consumer not keeping up")
		}
		m.recycleLocked()
		return
	}

	if m.buffered >= m.maxSamples {
		m.recycleLocked()
	}
}

// match reports the first configured phrase found in the recognized text.
func (m *Matcher) match(text string) (string, bool) {
	n := normalize(text)
	if n == "" {
		return "", false
	}
	for _, p := range m.phrases {
		if strings.Contains(n, p) {
			return p, true
		}
	}
	return "", false
}

// recycleLocked swaps in a fresh recognition stream and resets the voice
// gate. Callers hold m.mu.
func (m *Matcher) recycleLocked() {
	if m.stream != nil {
		if err := m.stream.Close(); err != nil {
			log.Warn("wake stream close", "err", err)
		}
		m.stream = nil
	}
	stream, err := m.engine.NewStream()
	if err != nil {
		log.Error("wake stream recycle failed", "err", err)
	} else {
		m.stream = stream
	}
	m.gen++
	m.heard = false
	m.lastFlux = 0
	m.buffered = 0
}

// normalize lowercases and strips everything but letters, digits and
// spaces, so whisper's punctuation cannot defeat a substring match.
// Letters in any script count; wake phrases are not ASCII-only.
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
