package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	log "log/slog"

	"github.com/spf13/afero"

	"parley/internal/audio"
	"parley/internal/capture"
	"parley/internal/config"
	"parley/internal/convo"
	"parley/internal/hub"
	"parley/internal/ipc"
	"parley/internal/orchestrator"
	"parley/internal/proxy"
	"parley/internal/voiceout"
	"parley/internal/wake"
	"parley/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	cfg := config.Load(*envFile)
	if cfg.ModelPath == "" {
		log.Error("WHISPER_MODEL not set")
		os.Exit(1)
	}
	if cfg.OpenAIKey == "" {
		log.Error("OPENAI_API_KEY not set")
		os.Exit(1)
	}

	engine, err := stt.NewWhisperEngine(cfg.ModelPath, stt.Options{
		Language: cfg.Language,
		Threads:  cfg.Threads,
	})
	if err != nil {
		log.Error("Failed to load whisper model", "err", err)
		os.Exit(1)
	}
	defer engine.Close()

	log.Debug("Loaded whisper")

	var httpClient *http.Client
	if cfg.ProxyAddr != "" {
		httpClient, err = proxy.NewSocksClient(cfg.ProxyAddr)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.ProxyAddr, "err", err)
			os.Exit(1)
		}
		log.Debug("Loaded proxy")
	}

	backend, err := convo.New(&convo.Config{
		APIKey:       cfg.OpenAIKey,
		Model:        cfg.OpenAIModel,
		SystemPrompt: cfg.SystemPrompt,
		HTTPClient:   httpClient,
	})
	if err != nil {
		log.Error("Failed to init conversation backend", "err", err)
		os.Exit(1)
	}

	var dumper *capture.Dumper
	if cfg.DumpDir != "" {
		dumper, err = capture.NewDumper(afero.NewOsFs(), cfg.DumpDir, cfg.SampleRate)
		if err != nil {
			log.Error("Failed to init session dump", "err", err)
			os.Exit(1)
		}
	}

	cap, err := capture.New(&capture.Config{
		Engine:         engine,
		SilenceTimeout: cfg.SilenceTimeout,
		Dump:           dumper,
	})
	if err != nil {
		log.Error("Failed to init capture", "err", err)
		os.Exit(1)
	}

	detector, err := wake.New(&wake.Config{
		Engine:     engine,
		Phrases:    cfg.WakePhrases,
		SampleRate: cfg.SampleRate,
		FrameSize:  cfg.FrameSize,
	})
	if err != nil {
		log.Error("Failed to init wake detector", "err", err)
		os.Exit(1)
	}

	speaker := voiceout.New(&voiceout.Config{Voice: cfg.EspeakVoice})

	var ducker *audio.Ducker
	if cfg.DuckOn {
		ducker = audio.NewDucker([]string{"parley"}, 0.3, 10, 300*time.Millisecond)
	}

	var link *hub.Hub

	orc, err := orchestrator.New(&orchestrator.Config{
		Recorder:          cap,
		Engine:            backend,
		Speaker:           speaker,
		Wake:              detector,
		WakeCuePath:       cfg.WakeCuePath,
		ApologyLine:       cfg.ApologyLine,
		InactivityTimeout: cfg.InactivityTimeout,
		MaxTurns:          cfg.MaxTurns,
		OnTransition: func(s orchestrator.State) {
			if ducker != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if s == orchestrator.StateIdle {
					if err := ducker.Restore(ctx); err != nil {
						log.Warn("audio restore failed", "err", err)
					}
				} else {
					if err := ducker.Duck(ctx); err != nil {
						log.Warn("audio duck failed", "err", err)
					}
				}
				cancel()
			}
			if link != nil {
				link.PublishState(s.String())
			}
		},
	})
	if err != nil {
		log.Error("Failed to init orchestrator", "err", err)
		os.Exit(1)
	}

	if cfg.HubURL != "" {
		link, err = hub.Dial(&hub.Config{
			URL:    cfg.HubURL,
			Shard:  cfg.HubShard,
			OnWake: func() { orc.HandleWake("hub") },
			OnStop: orc.Stop,
		})
		if err != nil {
			log.Error("Failed to dial hub", "url", cfg.HubURL, "err", err)
			os.Exit(1)
		}
		defer link.Close()
	}

	go func() {
		for sig := range cap.Signals() {
			log.Debug("Recording session", "edge", sig.String())
			if link != nil {
				link.PublishSession(sig.String())
			}
		}
	}()

	mic, err := audio.NewMicSource(cfg.SampleRate, cfg.FrameSize)
	if err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer mic.Terminate()

	mic.AddHandler(detector.OnFrame)
	mic.AddHandler(cap.OnFrame)

	if err := detector.Start(); err != nil {
		log.Error("Failed to start wake detector", "err", err)
		os.Exit(1)
	}
	defer detector.Stop()

	if err := mic.Start(); err != nil {
		log.Error("Failed to start mic", "err", err)
		os.Exit(1)
	}
	defer mic.Stop()

	srv, err := ipc.Serve(*socket, func(req ipc.Request) ipc.Response {
		switch req.Cmd {
		case "wake":
			orc.HandleWake("ctl")
			return ipc.Response{Ok: true, State: orc.State().String()}
		case "stop":
			orc.Stop()
			return ipc.Response{Ok: true, State: orc.State().String()}
		case "state":
			return ipc.Response{Ok: true, State: orc.State().String()}
		default:
			log.Warn("Unknown command", "cmd", req.Cmd)
			return ipc.Response{Ok: false, Error: "unknown command: " + req.Cmd}
		}
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("Boot up - successful")

	orc.Run(ctx, detector.Events())

	log.Info("Shutting down")
}
