package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipdigest/internal/blob"
	"clipdigest/internal/config"
	"clipdigest/internal/credentials"
	"clipdigest/internal/handlers"
	"clipdigest/internal/media"
	"clipdigest/internal/pipeline"
	"clipdigest/internal/summarize"
	"clipdigest/internal/transcribe"
	"clipdigest/internal/version"
	"clipdigest/internal/youtube"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := os.MkdirAll(cfg.AudioDir, 0755); err != nil {
		log.Fatal(err)
	}

	store, err := blob.NewDirStore(cfg.BlobDir)
	if err != nil {
		log.Fatal(err)
	}
	router := blob.NewRouter(store, blob.WithLocalLimit(cfg.BlobLocalLimitMB*1024*1024))

	yt := youtube.NewClient()
	processor := media.NewProcessor(media.ProcessorConfig{
		AudioDir:     cfg.AudioDir,
		MaxFileBytes: cfg.MaxUploadMB * 1024 * 1024,
		RegistryTTL:  cfg.RegistryTTL,
		Buffer:       media.DefaultBufferConfig(),
	}, yt, credentials.NewProvider(cfg.CookiesDir), router)
	processor.StartSweeper(cfg.SweepInterval)
	defer processor.StopSweeper()

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
	h := handlers.NewSummarizeHandler(runner, cfg.MaxUploadMB*1024*1024)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", handlers.Health)
	e.POST("/api/summarize", h.FromURL)
	e.POST("/api/summarize/upload", h.FromUpload)
	e.POST("/api/transcript", h.Transcript)

	go func() {
		log.Printf("Starting clipdigest v%s on port %s", version.Version, cfg.Port)
		if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}
