package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "log/slog"

	"github.com/joho/godotenv"
)

// Config holds every tunable the daemon consumes. Values come from the
// environment (optionally seeded from a .env file) with logged defaults.
type Config struct {
	// wake
	WakePhrases []string
	WakeCuePath string

	// recognition
	ModelPath  string
	Language   string
	Threads    int
	SampleRate int
	FrameSize  int

	// dialogue
	SilenceTimeout    time.Duration
	InactivityTimeout time.Duration
	MaxTurns          int
	ApologyLine       string

	// backend
	OpenAIKey    string
	OpenAIModel  string
	SystemPrompt string
	ProxyAddr    string

	// output
	EspeakVoice string

	// extras
	HubURL   string
	HubShard string
	DumpDir  string
	DuckOn   bool
}

// Load reads the env file (if present) and the environment.
func Load(envFile string) Config {
	if err := godotenv.Load(envFile); err != nil {
		log.Debug("no env file loaded", "path", envFile)
	}

	cfg := Config{
		WakePhrases:       getList("WAKE_PHRASES", []string{"hey parley"}),
		WakeCuePath:       os.Getenv("WAKE_CUE_PATH"),
		ModelPath:         os.Getenv("WHISPER_MODEL"),
		Language:          getStr("WHISPER_LANGUAGE", "auto"),
		Threads:           getInt("WHISPER_THREADS", 0),
		SampleRate:        getInt("SAMPLE_RATE", 16000),
		FrameSize:         getInt("FRAME_SIZE", 1600),
		SilenceTimeout:    getDuration("SILENCE_TIMEOUT", 2*time.Second),
		InactivityTimeout: getDuration("INACTIVITY_TIMEOUT", 30*time.Second),
		MaxTurns:          getInt("MAX_TURNS", 8),
		ApologyLine:       getStr("APOLOGY_LINE", "Sorry, I did not catch that."),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		SystemPrompt:      os.Getenv("SYSTEM_PROMPT"),
		ProxyAddr:         os.Getenv("SOCKS_PROXY"),
		EspeakVoice:       getStr("ESPEAK_VOICE", "en"),
		HubURL:            os.Getenv("HUB_URL"),
		HubShard:          getStr("HUB_SHARD", "PARLEY"),
		DumpDir:           os.Getenv("SESSION_DUMP_DIR"),
		DuckOn:            getBool("DUCK_AUDIO", false),
	}

	if cfg.ModelPath == "" {
		log.Warn("WHISPER_MODEL not set, recognition will not start")
	}
	if cfg.OpenAIKey == "" {
		log.Warn("OPENAI_API_KEY not set, conversation backend will not work")
	}
	return cfg
}

func getStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("bad integer in env, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("bad boolean in env, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// getDuration accepts Go duration syntax ("2s", "1500ms") or a bare
// number of milliseconds.
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Warn("bad duration in env, using default", "key", key, "value", v, "default", def)
	return def
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
