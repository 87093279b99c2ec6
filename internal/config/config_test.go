package config

import (
	"testing"
	"time"

	"parley/pkg/util"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load("does-not-exist.env")

	if !util.EqualSlices(cfg.WakePhrases, []string{"hey parley"}, func(a, b string) bool { return a == b }, false) {
		t.Errorf("wake phrases: %v", cfg.WakePhrases)
	}
	if cfg.SampleRate != 16000 || cfg.FrameSize != 1600 {
		t.Errorf("audio defaults: rate=%d frame=%d", cfg.SampleRate, cfg.FrameSize)
	}
	if cfg.SilenceTimeout != 2*time.Second {
		t.Errorf("silence timeout: %v", cfg.SilenceTimeout)
	}
	if cfg.InactivityTimeout != 30*time.Second {
		t.Errorf("inactivity timeout: %v", cfg.InactivityTimeout)
	}
	if cfg.MaxTurns != 8 {
		t.Errorf("max turns: %d", cfg.MaxTurns)
	}
	if cfg.HubShard != "PARLEY" {
		t.Errorf("hub shard: %q", cfg.HubShard)
	}
	if cfg.DuckOn {
		t.Error("ducking on by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WAKE_PHRASES", "hey parley, ok computer")
	t.Setenv("SILENCE_TIMEOUT", "1500ms")
	t.Setenv("INACTIVITY_TIMEOUT", "45000") // bare milliseconds
	t.Setenv("MAX_TURNS", "3")
	t.Setenv("DUCK_AUDIO", "true")
	t.Setenv("WHISPER_MODEL", "/models/ggml-base.bin")

	cfg := Load("does-not-exist.env")

	want := []string{"hey parley", "ok computer"}
	if !util.EqualSlices(cfg.WakePhrases, want, func(a, b string) bool { return a == b }, false) {
		t.Errorf("wake phrases: %v", cfg.WakePhrases)
	}
	if cfg.SilenceTimeout != 1500*time.Millisecond {
		t.Errorf("silence timeout: %v", cfg.SilenceTimeout)
	}
	if cfg.InactivityTimeout != 45*time.Second {
		t.Errorf("inactivity timeout: %v", cfg.InactivityTimeout)
	}
	if cfg.MaxTurns != 3 {
		t.Errorf("max turns: %d", cfg.MaxTurns)
	}
	if !cfg.DuckOn {
		t.Error("ducking not enabled")
	}
	if cfg.ModelPath != "/models/ggml-base.bin" {
		t.Errorf("model path: %q", cfg.ModelPath)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("MAX_TURNS", "lots")
	t.Setenv("SILENCE_TIMEOUT", "soon")
	t.Setenv("DUCK_AUDIO", "maybe")

	cfg := Load("does-not-exist.env")

	if cfg.MaxTurns != 8 {
		t.Errorf("max turns: %d", cfg.MaxTurns)
	}
	if cfg.SilenceTimeout != 2*time.Second {
		t.Errorf("silence timeout: %v", cfg.SilenceTimeout)
	}
	if cfg.DuckOn {
		t.Error("bad boolean enabled ducking")
	}
}

func TestGetList_EmptyEntriesDropped(t *testing.T) {
	t.Setenv("WAKE_PHRASES", " , hey parley ,, ")
	cfg := Load("does-not-exist.env")
	if !util.EqualSlices(cfg.WakePhrases, []string{"hey parley"}, func(a, b string) bool { return a == b }, false) {
		t.Errorf("wake phrases: %v", cfg.WakePhrases)
	}
}
