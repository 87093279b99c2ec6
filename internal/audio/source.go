package audio

import (
	"errors"
	"fmt"
	"sync"

	log "log/slog"

	"github.com/gordonklaus/portaudio"
)

// FrameHandler receives one frame of mono samples. Handlers run on the
// source's delivery goroutine and must not block; the frame slice is only
// valid for the duration of the call.
type FrameHandler func(samples []float32)

// Source abstracts the microphone for the pieces that consume frames.
type Source interface {
	AddHandler(h FrameHandler)
	Start() error
	Stop()
}

// MicSource pumps fixed-size frames from the default portaudio input
// device to every registered handler on a dedicated goroutine.
type MicSource struct {
	sampleRate int
	frameSize  int

	mu       sync.Mutex
	handlers []FrameHandler
	stream   *portaudio.Stream
	done     chan struct{}
	running  bool
}

func NewMicSource(sampleRate, frameSize int) (*MicSource, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("bad mic params: rate=%d frame=%d", sampleRate, frameSize)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &MicSource{sampleRate: sampleRate, frameSize: frameSize}, nil
}

// AddHandler registers a frame consumer. Must be called before Start.
func (s *MicSource) AddHandler(h FrameHandler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

func (s *MicSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("mic source already started")
	}

	buf := make([]float32, s.frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}

	s.stream = stream
	s.done = make(chan struct{})
	s.running = true
	handlers := append([]FrameHandler(nil), s.handlers...)

	go s.pump(stream, buf, handlers, s.done)

	log.Info("mic source started", "rate", s.sampleRate, "frame", s.frameSize)
	return nil
}

// pump is the delivery goroutine: blocking reads from portaudio, fan out
// to handlers. It owns buf; handlers get a copy per frame so a slow
// consumer cannot see the next read scribbling over its data.
func (s *MicSource) pump(stream *portaudio.Stream, buf []float32, handlers []FrameHandler, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-done:
			default:
				log.Warn("mic read failed, dropping frame", "err", err)
			}
			continue
		}

		frame := make([]float32, len(buf))
		copy(frame, buf)
		for _, h := range handlers {
			h(frame)
		}
	}
}

func (s *MicSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	if err := s.stream.Stop(); err != nil {
		log.Warn("mic stream stop", "err", err)
	}
	if err := s.stream.Close(); err != nil {
		log.Warn("mic stream close", "err", err)
	}
	s.stream = nil
	log.Info("mic source stopped")
}

// Terminate releases the portaudio runtime. Call once at shutdown, after
// Stop.
func (s *MicSource) Terminate() {
	if err := portaudio.Terminate(); err != nil {
		log.Warn("portaudio terminate", "err", err)
	}
}
