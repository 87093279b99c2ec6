// Package voiceout renders speech and audio cues. Text goes through an
// espeak-ng subprocess; cue files are decoded (mp3/wav/ogg) and played
// through the beep speaker.
//
// Every request eventually produces exactly one completion event on
// Done(), including on failure, so a caller waiting for playback to end
// can never stall.
package voiceout

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "log/slog"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

type Config struct {
	Voice string // espeak-ng voice, e.g. "en" or "ru"
	Bin   string // espeak-ng binary, defaults to "espeak-ng"
}

type Speaker struct {
	voice string
	bin   string

	done chan uint64

	mu      sync.Mutex
	nextID  uint64
	current []*playback
}

// playback tracks one in-flight request; finish fires the completion
// event at most once no matter which path (natural end, error, stop)
// gets there first.
type playback struct {
	id     uint64
	once   sync.Once
	cancel context.CancelFunc
	sp     *Speaker
}

func (p *playback) finish() {
	p.once.Do(func() {
		p.sp.mu.Lock()
		for i, q := range p.sp.current {
			if q == p {
				p.sp.current = append(p.sp.current[:i], p.sp.current[i+1:]...)
				break
			}
		}
		p.sp.mu.Unlock()
		select {
		case p.sp.done <- p.id:
		default:
			log.Warn("playback completion dropped, consumer not keeping up")
		}
	})
}

func New(cfg *Config) *Speaker {
	bin := cfg.Bin
	if bin == "" {
		bin = "espeak-ng"
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "en"
	}
	return &Speaker{voice: voice, bin: bin, done: make(chan uint64, 4)}
}

// Done delivers one event per finished request, tagged with the id the
// request returned.
func (s *Speaker) Done() <-chan uint64 { return s.done }

func (s *Speaker) track(cancel context.CancelFunc) *playback {
	s.mu.Lock()
	s.nextID++
	p := &playback{id: s.nextID, cancel: cancel, sp: s}
	s.current = append(s.current, p)
	s.mu.Unlock()
	return p
}

// tryQueue runs play under the speaker mutex unless the request was
// already canceled. StopPlayback cancels and clears under the same
// mutex, so a stopped request can never queue audio afterwards.
func (s *Speaker) tryQueue(ctx context.Context, play func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	play()
	return true
}

// SpeakText synthesizes text asynchronously and returns the request id.
func (s *Speaker) SpeakText(text string) uint64 {
	if strings.TrimSpace(text) == "" {
		p := s.track(nil)
		go p.finish()
		return p.id
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := s.track(cancel)

	go func() {
		defer p.finish()
		defer cancel()
		cmd := exec.CommandContext(ctx, s.bin, "-v", s.voice, text)
		if err := cmd.Run(); err != nil && ctx.Err() == nil {
			log.Warn("speech synthesis failed", "err", err)
		}
	}()
	return p.id
}

// PlayAudioFile plays a cue file asynchronously and returns the request
// id. Unsupported or broken files just log and complete.
func (s *Speaker) PlayAudioFile(path string) uint64 {
	ctx, cancel := context.WithCancel(context.Background())
	p := s.track(cancel)

	go func() {
		defer p.finish()
		defer cancel()

		f, err := os.Open(path)
		if err != nil {
			log.Warn("cue open failed", "path", path, "err", err)
			return
		}

		var (
			streamer beep.StreamSeekCloser
			format   beep.Format
		)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".mp3":
			streamer, format, err = mp3.Decode(f)
		case ".wav":
			streamer, format, err = wav.Decode(f)
		case ".ogg", ".oga":
			streamer, format, err = vorbis.Decode(f)
		default:
			f.Close()
			log.Warn("unsupported cue format", "path", path)
			return
		}
		if err != nil {
			f.Close()
			log.Warn("cue decode failed", "path", path, "err", err)
			return
		}
		defer streamer.Close()

		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			log.Warn("speaker init failed", "err", err)
			return
		}

		finished := make(chan struct{})
		queued := s.tryQueue(ctx, func() {
			speaker.Play(beep.Seq(streamer, beep.Callback(func() {
				close(finished)
			})))
		})
		if !queued {
			return
		}
		// StopPlayback clears the speaker queue, in which case the beep
		// callback never runs; the context unblocks us instead.
		select {
		case <-finished:
		case <-ctx.Done():
		}
	}()
	return p.id
}

// StopPlayback cuts every in-flight request short. Idempotent. The
// cancel and the queue clear happen under the speaker mutex so they pair
// atomically against tryQueue: a request either queued before the clear
// (and is cleared) or observes its canceled context and never queues.
func (s *Speaker) StopPlayback() {
	s.mu.Lock()
	active := append([]*playback(nil), s.current...)
	for _, p := range active {
		if p.cancel != nil {
			p.cancel()
		}
	}
	if len(active) > 0 {
		speaker.Clear()
	}
	s.mu.Unlock()

	for _, p := range active {
		p.finish()
	}
}
