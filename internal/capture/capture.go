// Package capture turns the live microphone stream into exactly one
// finalized transcript per recording session, using trailing-silence
// endpoint detection.
//
// Two independently-driven contexts touch a session: the audio delivery
// goroutine feeding frames, and the endpoint-polling goroutine watching
// for silence. The session mutex is held only to swap or read the stream
// handle, never across decode work.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "log/slog"

	"parley/pkg/stt"
)

const pollInterval = 100 * time.Millisecond

// Signal marks recording session lifecycle edges for observers (hub,
// daemon logs). Finalized transcripts travel on their own channel.
type Signal int

const (
	SignalStarted Signal = iota
	SignalStopped
)

func (s Signal) String() string {
	if s == SignalStarted {
		return "started"
	}
	return "stopped"
}

type Config struct {
	Engine         stt.Engine
	SilenceTimeout time.Duration
	// Dump, when non-nil, writes each finished session's audio to a WAV
	// file for debugging.
	Dump *Dumper
}

type Capture struct {
	engine         stt.Engine
	silenceTimeout time.Duration
	dump           *Dumper

	// session state, guarded by mu: at most one recording session alive.
	mu        sync.Mutex
	recording bool
	stream    stt.Stream
	cancel    context.CancelFunc

	// currentText is shared between the frame path (writer) and the
	// polling loop (reader); its own narrow lock keeps the two contexts
	// from serializing on the session mutex.
	textMu      sync.Mutex
	currentText string

	// sessionBuf accumulates raw samples for the optional dump. Only the
	// frame path appends; StopRecording swaps it out under bufMu.
	bufMu      sync.Mutex
	sessionBuf []float32

	finals  chan string
	signals chan Signal
}

func New(cfg *Config) (*Capture, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}
	if cfg.SilenceTimeout <= 0 {
		return nil, fmt.Errorf("silence timeout must be positive")
	}
	return &Capture{
		engine:         cfg.Engine,
		silenceTimeout: cfg.SilenceTimeout,
		dump:           cfg.Dump,
		finals:         make(chan string, 1),
		signals:        make(chan Signal, 8),
	}, nil
}

// Finalized delivers at most one transcript per recording session. An
// utterance that never produced text finalizes as the empty string.
func (c *Capture) Finalized() <-chan string { return c.finals }

// Signals delivers started/stopped edges. Best-effort: a slow consumer
// loses signals rather than stalling the session.
func (c *Capture) Signals() <-chan Signal { return c.signals }

// StartRecording opens a new recognition session. A call while a session
// is already active is logged and ignored.
func (c *Capture) StartRecording() error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		log.Warn("start recording ignored, session already active")
		return nil
	}

	stream, err := c.engine.NewStream()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("new recognition stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.recording = true
	c.stream = stream
	c.cancel = cancel
	c.mu.Unlock()

	c.textMu.Lock()
	c.currentText = ""
	c.textMu.Unlock()

	c.bufMu.Lock()
	c.sessionBuf = c.sessionBuf[:0]
	c.bufMu.Unlock()

	go c.pollEndpoint(ctx)

	c.emitSignal(SignalStarted)
	log.Info("recording started")
	return nil
}

// StopRecording tears the session down. Idempotent: a call with no active
// session is a no-op.
func (c *Capture) StopRecording() {
	stream, cancel, ok := c.claim()
	if !ok {
		return
	}
	c.teardown(stream, cancel)
}

// claim atomically takes ownership of the active session; exactly one of
// the endpoint loop and an external StopRecording wins it. The recording
// flag is cleared before the stream leaves the struct so the frame path,
// which re-checks the flag under the session mutex, can never touch a
// stream that is being disposed.
func (c *Capture) claim() (stt.Stream, context.CancelFunc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return nil, nil, false
	}
	c.recording = false
	stream, cancel := c.stream, c.cancel
	c.stream, c.cancel = nil, nil
	return stream, cancel, true
}

func (c *Capture) teardown(stream stt.Stream, cancel context.CancelFunc) {
	cancel()
	if err := stream.Close(); err != nil {
		log.Warn("recognition stream close", "err", err)
	}

	if c.dump != nil {
		c.bufMu.Lock()
		pcm := append([]float32(nil), c.sessionBuf...)
		c.sessionBuf = c.sessionBuf[:0]
		c.bufMu.Unlock()
		if err := c.dump.Write(pcm); err != nil {
			log.Warn("session dump", "err", err)
		}
	}

	c.emitSignal(SignalStopped)
	log.Info("recording stopped")
}

// OnFrame runs on the audio source's delivery goroutine. The session
// mutex is held just long enough to take a local stream reference; the
// decode work happens outside it.
func (c *Capture) OnFrame(samples []float32) {
	c.mu.Lock()
	if !c.recording || c.stream == nil {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.mu.Unlock()

	if c.dump != nil {
		c.bufMu.Lock()
		c.sessionBuf = append(c.sessionBuf, samples...)
		c.bufMu.Unlock()
	}

	if err := stream.AcceptFrame(samples); err != nil {
		log.Warn("frame dropped", "err", err)
		return
	}
	for stream.HasResult() {
		if err := stream.DecodeNext(); err != nil {
			log.Warn("decode failed, continuing session", "err", err)
			break
		}
	}

	text := stream.CurrentText()
	c.textMu.Lock()
	c.currentText = text
	c.textMu.Unlock()
}

// pollEndpoint watches the recognized text on a fixed cadence and
// finalizes the session at the first tick where the text has been stable
// for the configured silence timeout. Exactly one of this loop and an
// external StopRecording ends the session; only this loop ever emits the
// finalized transcript.
func (c *Capture) pollEndpoint(ctx context.Context) {
	ep := newEndpointer(c.silenceTimeout, time.Now())
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.textMu.Lock()
			text := c.currentText
			c.textMu.Unlock()

			if !ep.observe(text, now) {
				continue
			}
			// Claim the session before emitting: if an external
			// StopRecording won it between the tick firing and this
			// point, the stop owns the teardown and no transcript
			// leaves a stopped session.
			stream, cancel, ok := c.claim()
			if !ok {
				return
			}
			log.Info("utterance endpoint", "text", text)
			c.finals <- text
			c.teardown(stream, cancel)
			return
		}
	}
}

func (c *Capture) emitSignal(s Signal) {
	select {
	case c.signals <- s:
	default:
		log.Warn("session signal dropped", "signal", s)
	}
}
