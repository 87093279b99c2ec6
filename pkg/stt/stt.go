package stt

// Engine owns a loaded recognition model and mints live streams from it.
// One engine serves many streams over its lifetime; streams are cheap,
// the engine is not.
type Engine interface {
	// NewStream opens an incremental recognition session.
	NewStream() (Stream, error)
	// Transcribe runs a one-shot pass over a complete utterance.
	Transcribe(pcm []float32) (string, error)
	Close() error
}

// Stream is one live recognition session. A stream accumulates audio via
// AcceptFrame and exposes incremental results: after feeding a frame the
// caller drains HasResult/DecodeNext until no more results are ready, then
// reads CurrentText.
//
// Streams are not safe for concurrent use; callers serialize access.
type Stream interface {
	AcceptFrame(samples []float32) error
	HasResult() bool
	DecodeNext() error
	CurrentText() string
	Close() error
}

// Options tune a recognition engine at construction time.
type Options struct {
	Language      string // "auto", "en", "ru", ...
	TranslateToEn bool
	Threads       int // <=0 => NumCPU()
	InitialPrompt string
}
