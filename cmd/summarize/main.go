package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"clipdigest/internal/blob"
	"clipdigest/internal/config"
	"clipdigest/internal/credentials"
	"clipdigest/internal/media"
	"clipdigest/internal/pipeline"
	"clipdigest/internal/progress"
	"clipdigest/internal/summarize"
	"clipdigest/internal/transcribe"
	"clipdigest/internal/youtube"
)

func main() {
	var (
		videoURL       = flag.String("url", "", "Video URL to summarize")
		inputFile      = flag.String("i", "", "Input video file")
		outputFile     = flag.String("o", "", "Output file (default: stdout)")
		format         = flag.String("format", "text", "Output format: text, json")
		maxWords       = flag.Int("max-words", 0, "Summary length budget in words, 50-1000 (0 uses the default of 300)")
		prompt         = flag.String("prompt", "", "Additional summarization focus")
		transcriptOnly = flag.Bool("transcript-only", false, "Stop after transcription")
		verbose        = flag.Bool("v", false, "Verbose output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -url https://youtube.com/watch?v=abc\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i talk.mp4 -max-words 200 -o summary.txt\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -url https://youtube.com/watch?v=abc -transcript-only -format json\n", os.Args[0])
	}

	flag.Parse()

	if (*videoURL == "") == (*inputFile == "") {
		fmt.Fprintf(os.Stderr, "Error: exactly one of -url or -i is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if *format != "text" && *format != "json" {
		fmt.Fprintf(os.Stderr, "Error: Invalid format '%s'. Must be: text or json\n", *format)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var src media.Source
	if *videoURL != "" {
		src = media.Source{Type: media.SourceRemote, URL: *videoURL}
	} else {
		info, err := os.Stat(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Input file not found: %s\n", *inputFile)
			os.Exit(1)
		}
		src = media.Source{Type: media.SourceFile, Path: *inputFile, Name: *inputFile, Size: info.Size()}
	}

	store, err := blob.NewDirStore(cfg.BlobDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	router := blob.NewRouter(store, blob.WithLocalLimit(cfg.BlobLocalLimitMB*1024*1024))

	yt := youtube.NewClient()
	processor := media.NewProcessor(media.ProcessorConfig{
		AudioDir:     cfg.AudioDir,
		MaxFileBytes: cfg.MaxUploadMB * 1024 * 1024,
		RegistryTTL:  cfg.RegistryTTL,
		Buffer:       media.DefaultBufferConfig(),
	}, yt, credentials.NewProvider(cfg.CookiesDir), router)

	transcriber := transcribe.NewStage(transcribe.NewClient(transcribe.ClientConfig{
		BaseURL:           cfg.TranscribeURL,
		APIKey:            cfg.TranscribeKey,
		Model:             cfg.TranscribeModel,
		RequestsPerMinute: cfg.TranscribeRPM,
	}), transcribe.DefaultStageConfig())
	summarizer := summarize.NewStage(summarize.NewClient(summarize.ClientConfig{
		BaseURL:           cfg.SummarizeURL,
		APIKey:            cfg.SummarizeKey,
		Model:             cfg.SummarizeModel,
		RequestsPerMinute: cfg.SummarizeRPM,
	}))
	runner := pipeline.NewRunner(processor, transcriber, summarizer,
		pipeline.WithCaptionSource(pipeline.NewYouTubeCaptions(yt, cfg.CaptionLang)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracker := progress.NewTracker(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range tracker.Events() {
			if *verbose {
				fmt.Fprintf(os.Stderr, "[%3d%%] %s: %s\n", ev.Progress, ev.Status, ev.Message)
			}
		}
	}()

	result, err := runner.Run(ctx, src, pipeline.Options{
		TranscriptOnly:   *transcriptOnly,
		MaxWords:         *maxWords,
		AdditionalPrompt: *prompt,
	}, tracker)
	<-done
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *outputFile != "" {
		f, err := os.Create(*outputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to create output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if *format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if result.Summary != nil {
		fmt.Fprintln(out, result.Summary.Content)
	} else if result.Transcript != nil {
		fmt.Fprintln(out, result.Transcript.Text)
	}
}
