// Package orchestrator is the interaction state machine of the
// appliance: wake phrase -> capture an utterance -> ask the conversation
// backend -> speak the reply -> listen for a follow-up.
//
// Events arrive from independently-scheduled contexts (wake detector,
// endpoint poller, playback); every handler takes the orchestrator mutex
// and re-checks the state it depends on, so correctness never rests on
// handlers being serialized by a common goroutine.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "log/slog"

	"parley/internal/wake"
)

// Recorder is the speech-capture capability (see internal/capture).
type Recorder interface {
	StartRecording() error
	StopRecording()
	Finalized() <-chan string
}

// Engine produces one reply for a prompt given the prior dialogue.
// Failures are recoverable and treated like an empty reply.
type Engine interface {
	GetResponse(ctx context.Context, prompt string, history []Turn) (string, error)
}

// Speaker renders speech and cues. Requests only queue work and return a
// request id; every request eventually yields exactly one event carrying
// that id on Done, so completions of overlapping requests (a wake cue
// still playing under a reply) stay distinguishable.
type Speaker interface {
	SpeakText(text string) uint64
	PlayAudioFile(path string) uint64
	StopPlayback()
	Done() <-chan uint64
}

// WakeControl gates the wake detector while a dialogue is running.
type WakeControl interface {
	Pause()
	Resume()
}

type Config struct {
	Recorder Recorder
	Engine   Engine
	Speaker  Speaker
	Wake     WakeControl // optional

	WakeCuePath string
	ApologyLine string
	// InactivityTimeout force-ends a dialogue that has gone quiet,
	// returning to Idle. Zero disables the timeout.
	InactivityTimeout time.Duration
	MaxTurns          int

	// OnTransition observes state changes (hub publishing, audio
	// ducking). Invoked from a dedicated goroutine, in order.
	OnTransition func(State)
}

type Orchestrator struct {
	rec     Recorder
	engine  Engine
	speaker Speaker
	wakeCtl WakeControl

	wakeCue    string
	apology    string
	inactivity time.Duration

	onTransition func(State)
	transitions  chan State

	mu         sync.Mutex
	state      State
	history    *History
	processing bool   // a spoken command is being handled
	aiInFlight bool   // a backend request is pending
	replyID    uint64 // speaker request the Responding state is waiting on
	idleTimer  *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("recorder is nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}
	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}
	apology := cfg.ApologyLine
	if apology == "" {
		apology = "Sorry, I did not catch that."
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		rec:          cfg.Recorder,
		engine:       cfg.Engine,
		speaker:      cfg.Speaker,
		wakeCtl:      cfg.Wake,
		wakeCue:      cfg.WakeCuePath,
		apology:      apology,
		inactivity:   cfg.InactivityTimeout,
		onTransition: cfg.OnTransition,
		transitions:  make(chan State, 16),
		state:        StateIdle,
		history:      NewHistory(cfg.MaxTurns),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// State reports the current interaction state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns a snapshot of the dialogue so far.
func (o *Orchestrator) History() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Turns()
}

// Run pumps events into the state machine until ctx is canceled. Speech
// handling is spawned per event so a slow backend request never blocks
// wake or playback events; overlapping transcripts are shed by the
// processing guard inside HandleSpeechRecognized.
func (o *Orchestrator) Run(ctx context.Context, wakeEvents <-chan wake.Event) {
	go o.notify(ctx)

	for {
		select {
		case <-ctx.Done():
			o.Stop()
			return
		case ev, ok := <-wakeEvents:
			if !ok {
				wakeEvents = nil
				continue
			}
			o.HandleWake(ev.Word)
		case text, ok := <-o.rec.Finalized():
			if !ok {
				return
			}
			go o.HandleSpeechRecognized(text)
		case id := <-o.speaker.Done():
			o.handlePlaybackDone(id)
		}
	}
}

// notify drains state transitions to the observer hook off the event
// loop, so a slow observer (audio fade, hub write) cannot stall the
// state machine.
func (o *Orchestrator) notify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-o.transitions:
			if o.onTransition != nil {
				o.onTransition(s)
			}
		}
	}
}

// HandleWake moves Idle to Listening. Wake events in any other state are
// no-ops.
func (o *Orchestrator) HandleWake(word string) {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		log.Debug("wake ignored", "word", word, "state", state)
		return
	}
	o.setStateLocked(StateListening)
	o.mu.Unlock()

	log.Info("wake detected", "word", word)
	if o.wakeCue != "" {
		// best effort; a broken cue file must not stop the dialogue
		o.speaker.PlayAudioFile(o.wakeCue)
	}
	if err := o.rec.StartRecording(); err != nil {
		log.Error("could not open recording session", "err", err)
		o.forceIdle()
	}
}

// HandleSpeechRecognized consumes one finalized transcript. A call
// arriving while a previous one is still executing is dropped, not
// queued; the conversation backend sees at most one request at a time.
func (o *Orchestrator) HandleSpeechRecognized(text string) {
	o.mu.Lock()
	if o.processing {
		o.mu.Unlock()
		log.Warn("transcript dropped, previous command still processing")
		return
	}
	if o.state != StateListening && o.state != StateProcessing {
		state := o.state
		o.mu.Unlock()
		log.Warn("transcript ignored", "state", state)
		return
	}
	if o.aiInFlight {
		o.mu.Unlock()
		log.Warn("transcript ignored, reply already pending")
		return
	}
	o.processing = true
	ctx := o.ctx
	o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Error("command handling panicked", "panic", r)
			o.apologizeToIdle()
		}
		o.mu.Lock()
		o.processing = false
		o.mu.Unlock()
	}()

	o.rec.StopRecording()

	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("utterance was empty")
		o.apologizeToIdle()
		return
	}

	o.mu.Lock()
	o.setStateLocked(StateProcessing)
	prior := o.history.Turns()
	o.history.Append(RoleUser, text)
	o.aiInFlight = true
	o.mu.Unlock()

	reply, err := o.engine.GetResponse(ctx, text, prior)

	o.mu.Lock()
	o.aiInFlight = false
	active := o.state == StateProcessing
	o.mu.Unlock()
	if !active {
		// stop() or the inactivity timeout won while we were waiting
		log.Warn("reply discarded, dialogue no longer active")
		return
	}

	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		if err != nil {
			log.Error("conversation backend failed", "err", err)
		}
		o.apologizeToIdle()
		return
	}

	log.Info("speaking reply", "chars", len(reply))
	// the reply id is recorded under the mutex before any completion can
	// be observed, so a cue that is still draining cannot impersonate it
	o.mu.Lock()
	o.history.Append(RoleAssistant, reply)
	o.setStateLocked(StateResponding)
	o.replyID = o.speaker.SpeakText(reply)
	o.mu.Unlock()
}

// handlePlaybackDone resumes listening for a follow-up once the reply
// has been spoken. Completions carrying any other request id (cue files,
// apologies, a cue finishing while the reply plays) are ignored.
func (o *Orchestrator) handlePlaybackDone(id uint64) {
	o.mu.Lock()
	if o.state != StateResponding || id != o.replyID {
		o.mu.Unlock()
		return
	}
	o.setStateLocked(StateListening)
	o.mu.Unlock()

	if err := o.rec.StartRecording(); err != nil {
		log.Error("could not reopen recording session", "err", err)
		o.forceIdle()
	}
}

// Stop cancels all in-flight work and returns to Idle. Safe to call from
// any state, any number of times.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.cancel()
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	o.rec.StopRecording()
	o.speaker.StopPlayback()
}

// apologizeToIdle is the shared failure path: any unusable utterance or
// reply ends with a spoken apology and a fresh Idle state.
func (o *Orchestrator) apologizeToIdle() {
	o.mu.Lock()
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	o.rec.StopRecording()
	o.speaker.SpeakText(o.apology)
}

// forceIdle abandons the dialogue without speaking.
func (o *Orchestrator) forceIdle() {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	o.rec.StopRecording()
	o.speaker.StopPlayback()
}

// setStateLocked performs the transition bookkeeping: inactivity timer
// rearm, wake detector gating, observer notification. Callers hold o.mu.
func (o *Orchestrator) setStateLocked(next State) {
	prev := o.state
	o.state = next
	if prev != next {
		log.Info("state", "from", prev.String(), "to", next.String())
	}

	// one timer at a time: the previous scope is always canceled before
	// a new one is armed
	if o.idleTimer != nil {
		o.idleTimer.Stop()
		o.idleTimer = nil
	}
	if next != StateIdle && o.inactivity > 0 {
		o.idleTimer = time.AfterFunc(o.inactivity, o.expireInactivity)
	}

	if o.wakeCtl != nil && prev != next {
		if next == StateIdle {
			o.wakeCtl.Resume()
		} else if prev == StateIdle {
			o.wakeCtl.Pause()
		}
	}

	select {
	case o.transitions <- next:
	default:
	}
}

// expireInactivity fires when a dialogue state has seen no transition for
// the configured timeout.
func (o *Orchestrator) expireInactivity() {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	state := o.state
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	log.Info("dialogue timed out", "state", state.String())
	o.rec.StopRecording()
	o.speaker.StopPlayback()
}
