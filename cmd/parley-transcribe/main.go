package main

import (
	"fmt"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/afero"
	cli "github.com/spf13/pflag"

	log "log/slog"

	"parley/pkg/audioconv"
	"parley/pkg/stt"
)

func main() {
	model := cli.StringP("model", "m", "", "Whisper model file")
	lang := cli.StringP("language", "L", "auto", "Language hint")
	threads := cli.IntP("threads", "t", 0, "Decoder threads (0 = all cores)")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{Level: log.LevelWarn})))

	if *model == "" {
		fmt.Fprintln(os.Stderr, "usage: parley-transcribe -m model.bin file...")
		os.Exit(2)
	}
	files := cli.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no input files")
		os.Exit(2)
	}

	engine, err := stt.NewWhisperEngine(*model, stt.Options{
		Language: *lang,
		Threads:  *threads,
	})
	if err != nil {
		log.Error("Failed to load model", "err", err)
		os.Exit(1)
	}
	defer engine.Close()

	fs := afero.NewOsFs()
	exit := 0
	for _, path := range files {
		pcm, err := audioconv.DecodeFile(fs, path)
		if err != nil {
			log.Error("Failed to decode", "file", path, "err", err)
			exit = 1
			continue
		}
		text, err := engine.Transcribe(pcm)
		if err != nil {
			log.Error("Failed to transcribe", "file", path, "err", err)
			exit = 1
			continue
		}
		fmt.Printf("%s\t%s\n", path, text)
	}
	os.Exit(exit)
}
