package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"parley/internal/wake"
)

type fakeRecorder struct {
	mu     sync.Mutex
	starts int
	stops  int
	finals chan string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{finals: make(chan string, 4)}
}

func (f *fakeRecorder) StartRecording() error {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	return nil
}

func (f *fakeRecorder) StopRecording() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeRecorder) Finalized() <-chan string { return f.finals }

func (f *fakeRecorder) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeEngine struct {
	calls int32
	reply string
	err   error
	delay time.Duration
}

func (f *fakeEngine) GetResponse(ctx context.Context, prompt string, history []Turn) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

type fakeSpeaker struct {
	mu     sync.Mutex
	nextID uint64
	spoken []string
	played []string
	done   chan uint64
	auto   bool // emit a completion for every request
}

func newFakeSpeaker(auto bool) *fakeSpeaker {
	return &fakeSpeaker{done: make(chan uint64, 8), auto: auto}
}

func (f *fakeSpeaker) SpeakText(text string) uint64 {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	if f.auto {
		f.done <- id
	}
	return id
}

func (f *fakeSpeaker) PlayAudioFile(path string) uint64 {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.played = append(f.played, path)
	f.mu.Unlock()
	if f.auto {
		f.done <- id
	}
	return id
}

func (f *fakeSpeaker) StopPlayback() {}

func (f *fakeSpeaker) Done() <-chan uint64 { return f.done }

func (f *fakeSpeaker) spokenCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func (f *fakeSpeaker) lastID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID
}

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *fakeRecorder, *fakeEngine, *fakeSpeaker) {
	t.Helper()
	rec := newFakeRecorder()
	engine := &fakeEngine{reply: "hello there"}
	speaker := newFakeSpeaker(false)
	cfg.Recorder = rec
	cfg.Engine = engine
	cfg.Speaker = speaker
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 4
	}
	orc, err := New(&cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return orc, rec, engine, speaker
}

func TestWake_OnlyAcceptedWhileIdle(t *testing.T) {
	orc, rec, _, speaker := newTestOrchestrator(t, Config{WakeCuePath: "cue.mp3"})

	orc.HandleWake("hey parley")
	if got := orc.State(); got != StateListening {
		t.Fatalf("state after wake: got %v want %v", got, StateListening)
	}
	if rec.startCount() != 1 {
		t.Fatalf("expected 1 recording start, got %d", rec.startCount())
	}

	// a second wake in Listening is a no-op
	orc.HandleWake("hey parley")
	if rec.startCount() != 1 {
		t.Fatalf("wake outside Idle started a recording: %d starts", rec.startCount())
	}

	speaker.mu.Lock()
	played := len(speaker.played)
	speaker.mu.Unlock()
	if played != 1 {
		t.Fatalf("expected wake cue played once, got %d", played)
	}
}

func TestEmptyTranscript_ApologizesAndGoesIdle(t *testing.T) {
	orc, _, engine, speaker := newTestOrchestrator(t, Config{ApologyLine: "pardon?"})

	orc.HandleWake("hey parley")
	orc.HandleSpeechRecognized("   ")

	if got := orc.State(); got != StateIdle {
		t.Fatalf("state: got %v want %v", got, StateIdle)
	}
	if calls := atomic.LoadInt32(&engine.calls); calls != 0 {
		t.Fatalf("backend invoked %d times for empty transcript", calls)
	}
	spoken := speaker.spokenCopy()
	if len(spoken) != 1 || spoken[0] != "pardon?" {
		t.Fatalf("expected one apology, got %q", spoken)
	}
}

func TestTranscript_HappyPath(t *testing.T) {
	orc, rec, engine, speaker := newTestOrchestrator(t, Config{})

	orc.HandleWake("hey parley")
	orc.HandleSpeechRecognized("what time is it")

	if got := orc.State(); got != StateResponding {
		t.Fatalf("state: got %v want %v", got, StateResponding)
	}
	if calls := atomic.LoadInt32(&engine.calls); calls != 1 {
		t.Fatalf("backend calls: got %d want 1", calls)
	}
	spoken := speaker.spokenCopy()
	if len(spoken) != 1 || spoken[0] != "hello there" {
		t.Fatalf("spoken: got %q", spoken)
	}

	hist := orc.History()
	if len(hist) != 2 || hist[0].Role != RoleUser || hist[1].Role != RoleAssistant {
		t.Fatalf("history: got %+v", hist)
	}

	// recording stopped once the transcript was consumed
	rec.mu.Lock()
	stops := rec.stops
	rec.mu.Unlock()
	if stops == 0 {
		t.Fatalf("expected recording stopped")
	}
}

func TestPlaybackDone_ResumesListening(t *testing.T) {
	orc, rec, _, speaker := newTestOrchestrator(t, Config{})

	orc.HandleWake("hey parley")
	orc.HandleSpeechRecognized("hi")
	if got := orc.State(); got != StateResponding {
		t.Fatalf("state: got %v want %v", got, StateResponding)
	}

	replyID := speaker.lastID()
	orc.handlePlaybackDone(replyID)
	if got := orc.State(); got != StateListening {
		t.Fatalf("state: got %v want %v", got, StateListening)
	}
	if rec.startCount() != 2 {
		t.Fatalf("expected follow-up recording, got %d starts", rec.startCount())
	}

	// completions outside Responding (cue files, apologies) are ignored
	orc.handlePlaybackDone(replyID)
	if got := orc.State(); got != StateListening {
		t.Fatalf("stray completion changed state to %v", got)
	}
}

func TestCueCompletion_DoesNotCutReplyShort(t *testing.T) {
	orc, rec, _, speaker := newTestOrchestrator(t, Config{WakeCuePath: "cue.mp3"})

	orc.HandleWake("hey parley")
	cueID := speaker.lastID()
	orc.HandleSpeechRecognized("hi")
	if got := orc.State(); got != StateResponding {
		t.Fatalf("state: got %v want %v", got, StateResponding)
	}

	// the cue was still draining while the reply started speaking; its
	// completion must not reopen the microphone
	orc.handlePlaybackDone(cueID)
	if got := orc.State(); got != StateResponding {
		t.Fatalf("cue completion flipped state to %v", got)
	}
	if rec.startCount() != 1 {
		t.Fatalf("cue completion reopened recording: %d starts", rec.startCount())
	}

	orc.handlePlaybackDone(speaker.lastID())
	if got := orc.State(); got != StateListening {
		t.Fatalf("reply completion did not resume listening: %v", got)
	}
}

func TestNearSimultaneousTranscripts_BackendInvokedOnce(t *testing.T) {
	orc, _, engine, _ := newTestOrchestrator(t, Config{})
	engine.delay = 50 * time.Millisecond

	orc.HandleWake("hey parley")

	var wg sync.WaitGroup
	for _, text := range []string{"first", "second"} {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			orc.HandleSpeechRecognized(s)
		}(text)
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&engine.calls); calls != 1 {
		t.Fatalf("backend calls: got %d want 1", calls)
	}
}

func TestBackendError_ApologizesAndGoesIdle(t *testing.T) {
	orc, _, engine, speaker := newTestOrchestrator(t, Config{ApologyLine: "sorry"})
	engine.err = errors.New("backend down")

	orc.HandleWake("hey parley")
	orc.HandleSpeechRecognized("hi")

	if got := orc.State(); got != StateIdle {
		t.Fatalf("state: got %v want %v", got, StateIdle)
	}
	spoken := speaker.spokenCopy()
	if len(spoken) != 1 || spoken[0] != "sorry" {
		t.Fatalf("spoken: got %q", spoken)
	}
}

func TestEmptyReply_TreatedAsFailure(t *testing.T) {
	orc, _, engine, _ := newTestOrchestrator(t, Config{})
	engine.reply = "  "

	orc.HandleWake("hey parley")
	orc.HandleSpeechRecognized("hi")

	if got := orc.State(); got != StateIdle {
		t.Fatalf("state: got %v want %v", got, StateIdle)
	}
	if hist := orc.History(); len(hist) != 1 {
		t.Fatalf("assistant turn recorded for empty reply: %+v", hist)
	}
}

func TestInactivityTimeout_ForcesIdle(t *testing.T) {
	orc, rec, _, _ := newTestOrchestrator(t, Config{InactivityTimeout: 30 * time.Millisecond})

	orc.HandleWake("hey parley")
	if got := orc.State(); got != StateListening {
		t.Fatalf("state: got %v want %v", got, StateListening)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && orc.State() != StateIdle {
		time.Sleep(5 * time.Millisecond)
	}
	if got := orc.State(); got != StateIdle {
		t.Fatalf("dialogue never timed out, state %v", got)
	}
	rec.mu.Lock()
	stops := rec.stops
	rec.mu.Unlock()
	if stops == 0 {
		t.Fatalf("timeout did not stop the recording")
	}
}

func TestStop_CancelsInFlightRequest(t *testing.T) {
	orc, _, engine, _ := newTestOrchestrator(t, Config{})
	engine.delay = 200 * time.Millisecond

	orc.HandleWake("hey parley")
	go orc.HandleSpeechRecognized("hi")

	// let the handler reach the backend call, then pull the plug
	time.Sleep(20 * time.Millisecond)
	orc.Stop()

	if got := orc.State(); got != StateIdle {
		t.Fatalf("state: got %v want %v", got, StateIdle)
	}

	// the stale reply must not flip the machine out of Idle
	time.Sleep(250 * time.Millisecond)
	if got := orc.State(); got != StateIdle {
		t.Fatalf("stale reply changed state to %v", got)
	}
}

type fakeWakeControl struct {
	pauses  int32
	resumes int32
}

func (f *fakeWakeControl) Pause()  { atomic.AddInt32(&f.pauses, 1) }
func (f *fakeWakeControl) Resume() { atomic.AddInt32(&f.resumes, 1) }

func TestWakeDetector_PausedDuringDialogue(t *testing.T) {
	ctl := &fakeWakeControl{}
	orc, _, _, _ := newTestOrchestrator(t, Config{Wake: ctl})

	orc.HandleWake("hey parley")
	if atomic.LoadInt32(&ctl.pauses) != 1 {
		t.Fatalf("detector not paused on leaving Idle")
	}

	orc.HandleSpeechRecognized("")
	if atomic.LoadInt32(&ctl.resumes) != 1 {
		t.Fatalf("detector not resumed on returning to Idle")
	}
}

func TestRun_FullCycleOverChannels(t *testing.T) {
	rec := newFakeRecorder()
	engine := &fakeEngine{reply: "sure"}
	speaker := newFakeSpeaker(true)
	orc, err := New(&Config{
		Recorder: rec,
		Engine:   engine,
		Speaker:  speaker,
		MaxTurns: 4,
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	wakeEvents := make(chan wake.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orc.Run(ctx, wakeEvents)

	wakeEvents <- wake.Event{Word: "hey parley", At: time.Now()}
	waitForState(t, orc, StateListening)

	rec.finals <- "turn on the lights"

	// reply spoken, auto completion, back to Listening for a follow-up
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && rec.startCount() < 2 {
		time.Sleep(2 * time.Millisecond)
	}
	if rec.startCount() < 2 {
		t.Fatalf("expected follow-up recording, got %d starts", rec.startCount())
	}
	if got := orc.State(); got != StateListening {
		t.Fatalf("state after cycle: got %v want %v", got, StateListening)
	}
	if calls := atomic.LoadInt32(&engine.calls); calls != 1 {
		t.Fatalf("backend calls: got %d want 1", calls)
	}
}

func waitForState(t *testing.T, orc *Orchestrator, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if orc.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %v, stuck at %v", want, orc.State())
}
