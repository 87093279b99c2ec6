package capture

import (
	"sync"
	"testing"
	"time"

	"parley/pkg/stt"
)

// fakeStream surfaces whatever text the test scripted; the frame path
// copies it into the capture's shared state.
type fakeStream struct {
	mu     sync.Mutex
	text   string
	closed bool
}

func (f *fakeStream) AcceptFrame(samples []float32) error { return nil }
func (f *fakeStream) HasResult() bool                     { return false }
func (f *fakeStream) DecodeNext() error                   { return nil }

func (f *fakeStream) CurrentText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) setText(s string) {
	f.mu.Lock()
	f.text = s
	f.mu.Unlock()
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeEngine struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (f *fakeEngine) NewStream() (stt.Stream, error) {
	s := &fakeStream{}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeEngine) Transcribe(pcm []float32) (string, error) { return "", nil }
func (f *fakeEngine) Close() error                             { return nil }

func (f *fakeEngine) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeEngine) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func newTestCapture(t *testing.T, silence time.Duration) (*Capture, *fakeEngine) {
	t.Helper()
	engine := &fakeEngine{}
	c, err := New(&Config{Engine: engine, SilenceTimeout: silence})
	if err != nil {
		t.Fatalf("new capture: %v", err)
	}
	return c, engine
}

func drainSignals(c *Capture) []Signal {
	var out []Signal
	for {
		select {
		case s := <-c.Signals():
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestStartRecording_SecondCallIgnored(t *testing.T) {
	c, engine := newTestCapture(t, time.Minute)
	defer c.StopRecording()

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.StartRecording(); err != nil {
		t.Fatalf("duplicate start returned error: %v", err)
	}
	if engine.streamCount() != 1 {
		t.Fatalf("duplicate start opened a second stream: %d", engine.streamCount())
	}
	if got := drainSignals(c); len(got) != 1 || got[0] != SignalStarted {
		t.Fatalf("signals: got %v want [started]", got)
	}
}

func TestStopRecording_NoSessionIsNoOp(t *testing.T) {
	c, _ := newTestCapture(t, time.Minute)

	c.StopRecording()
	c.StopRecording()

	if got := drainSignals(c); len(got) != 0 {
		t.Fatalf("no-op stop emitted signals: %v", got)
	}
	select {
	case text := <-c.Finalized():
		t.Fatalf("no-op stop emitted transcript %q", text)
	default:
	}
}

func TestStopRecording_ReleasesStreamAndSignalsOnce(t *testing.T) {
	c, engine := newTestCapture(t, time.Minute)

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.StopRecording()
	c.StopRecording() // idempotent

	if !engine.lastStream().isClosed() {
		t.Fatalf("recognition stream not released on stop")
	}
	got := drainSignals(c)
	want := []Signal{SignalStarted, SignalStopped}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("signals: got %v want %v", got, want)
	}
}

func TestSilenceEndpoint_FinalizesStableTextOnce(t *testing.T) {
	const silence = 300 * time.Millisecond
	c, engine := newTestCapture(t, silence)

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := engine.lastStream()
	frame := make([]float32, 160)

	// text appears shortly after start, then goes stable
	time.Sleep(30 * time.Millisecond)
	stream.setText("你好")
	changed := time.Now()
	c.OnFrame(frame)

	stop := time.Now().Add(2 * time.Second)
	var (
		text  string
		when  time.Time
		fired bool
	)
	for time.Now().Before(stop) && !fired {
		select {
		case text = <-c.Finalized():
			when = time.Now()
			fired = true
		case <-time.After(10 * time.Millisecond):
			c.OnFrame(frame)
		}
	}
	if !fired {
		t.Fatal("endpoint never fired")
	}
	if text != "你好" {
		t.Fatalf("finalized %q, want %q", text, "你好")
	}

	elapsed := when.Sub(changed)
	if elapsed < silence {
		t.Fatalf("finalized %v after last change, before the silence timeout", elapsed)
	}
	if elapsed > silence+500*time.Millisecond {
		t.Fatalf("finalized %v after last change, far too late", elapsed)
	}

	// the session stopped itself; no second transcript may ever appear
	select {
	case extra := <-c.Finalized():
		t.Fatalf("second transcript %q for one session", extra)
	case <-time.After(2 * silence):
	}
	if !stream.isClosed() {
		t.Fatalf("stream not released after endpoint")
	}
}

func TestSilentSession_FinalizesEmptyTranscript(t *testing.T) {
	c, _ := newTestCapture(t, 200*time.Millisecond)

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case text := <-c.Finalized():
		if text != "" {
			t.Fatalf("finalized %q, want empty", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("silent session never finalized")
	}
}

func TestExternalStop_SuppressesFinalization(t *testing.T) {
	c, _ := newTestCapture(t, 100*time.Millisecond)

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.StopRecording()

	select {
	case text := <-c.Finalized():
		t.Fatalf("stopped session emitted transcript %q", text)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestStopRacingEndpoint_NeverBothOutcomes(t *testing.T) {
	c, _ := newTestCapture(t, 20*time.Millisecond)

	// stop at varying offsets around the endpoint tick; whichever side
	// claims the session, it must finalize at most once and emit exactly
	// one started/stopped pair
	for i := 0; i < 14; i++ {
		if err := c.StartRecording(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		time.Sleep(time.Duration(i%7) * 20 * time.Millisecond)
		c.StopRecording()
		time.Sleep(50 * time.Millisecond)

		finals := 0
		for {
			select {
			case <-c.Finalized():
				finals++
				continue
			default:
			}
			break
		}
		if finals > 1 {
			t.Fatalf("session %d finalized %d times", i, finals)
		}

		got := drainSignals(c)
		want := []Signal{SignalStarted, SignalStopped}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("session %d signals: got %v want %v", i, got, want)
		}
	}
}

func TestSignal_String(t *testing.T) {
	if SignalStarted.String() != "started" || SignalStopped.String() != "stopped" {
		t.Fatalf("signal names: %v %v", SignalStarted, SignalStopped)
	}
}

func TestFrameAfterStop_DoesNotTouchStream(t *testing.T) {
	c, engine := newTestCapture(t, time.Minute)

	if err := c.StartRecording(); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := engine.lastStream()
	c.StopRecording()

	stream.setText("stale")
	c.OnFrame(make([]float32, 160))

	c.textMu.Lock()
	text := c.currentText
	c.textMu.Unlock()
	if text == "stale" {
		t.Fatal("frame delivered after stop updated session state")
	}
}
