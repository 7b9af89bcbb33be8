package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clipdigest/internal/blob"
	"clipdigest/internal/credentials"
	"clipdigest/internal/fault"
	"clipdigest/internal/youtube"

	"github.com/google/uuid"
)

const stageName = "media"

// SourceType tags the MediaSource union.
type SourceType string

const (
	SourceRemote SourceType = "remote"
	SourceFile   SourceType = "file"
)

// Source describes one media input. Remote sources carry a URL; file
// sources carry exactly one of Path or Data plus the original name and
// size.
type Source struct {
	Type SourceType
	URL  string
	Path string
	Data []byte
	Name string
	Size int64
}

// Metadata describes the produced audio.
type Metadata struct {
	DurationSeconds float64
	Format          string
	SizeBytes       int64
	Title           string
}

// Processed is acquired media normalized to a single shape: an id, a
// readable audio stream, a conventional audio path, metadata, and a
// cleanup handle the orchestrator must invoke exactly once.
type Processed struct {
	ID        string
	Audio     io.ReadCloser
	AudioPath string
	Meta      Metadata

	once    sync.Once
	release func()
}

// NewProcessed builds a Processed around an explicit release action.
func NewProcessed(id string, audio io.ReadCloser, audioPath string, meta Metadata, release func()) *Processed {
	return &Processed{
		ID:        id,
		Audio:     audio,
		AudioPath: audioPath,
		Meta:      meta,
		release:   release,
	}
}

// Cleanup releases every resource behind this media. Idempotent.
func (p *Processed) Cleanup() {
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

// ProgressHooks receives intra-stage signals during acquisition.
type ProgressHooks struct {
	// OnBytes reports cumulative kilobytes of encoded audio while
	// streaming a remote source; total size is unknown.
	OnBytes func(kb int64)
	// OnUpload reports blob staging progress for routed local files.
	OnUpload func(done, total int64)
}

// ProcessorConfig tunes a Processor.
type ProcessorConfig struct {
	AudioDir     string
	MaxFileBytes int64
	RegistryTTL  time.Duration
	Buffer       BufferConfig
}

// DefaultProcessorConfig returns the reference tuning.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		AudioDir:     "audios",
		MaxFileBytes: 2 * 1024 * 1024 * 1024,
		RegistryTTL:  5 * time.Minute,
		Buffer:       DefaultBufferConfig(),
	}
}

// Processor turns media sources into Processed audio. It tracks every
// in-flight stream in an instance-scoped registry so stale entries can
// be reclaimed even when a caller never finishes the pipeline.
type Processor struct {
	cfg    ProcessorConfig
	yt     *youtube.Client
	creds  *credentials.Provider
	router *blob.Router

	mu       sync.Mutex
	inflight map[string]*registryEntry

	stop chan struct{}
	wg   sync.WaitGroup
}

type registryEntry struct {
	created  time.Time
	release  func()
	artifact string
}

// NewProcessor wires the acquisition dependencies together.
func NewProcessor(cfg ProcessorConfig, yt *youtube.Client, creds *credentials.Provider, router *blob.Router) *Processor {
	if cfg.RegistryTTL <= 0 {
		cfg.RegistryTTL = 5 * time.Minute
	}
	return &Processor{
		cfg:      cfg,
		yt:       yt,
		creds:    creds,
		router:   router,
		inflight: make(map[string]*registryEntry),
		stop:     make(chan struct{}),
	}
}

// Process dispatches on the source type.
func (p *Processor) Process(ctx context.Context, src Source, hooks ProgressHooks) (*Processed, error) {
	switch src.Type {
	case SourceRemote:
		return p.processRemote(ctx, src, hooks)
	case SourceFile:
		return p.processLocal(ctx, src, hooks)
	default:
		return nil, fault.New(fault.BadRequest, stageName, fmt.Sprintf("unknown source type %q", src.Type))
	}
}

// processRemote streams a remote video through the downloader and
// transcoder chain. Duration stays 0: it is unknown while streaming,
// an accepted trade-off of never touching disk.
func (p *Processor) processRemote(ctx context.Context, src Source, hooks ProgressHooks) (*Processed, error) {
	parsed, err := url.Parse(src.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fault.New(fault.BadRequest, stageName, "invalid media URL")
	}

	meta := Metadata{Format: "mp3"}
	if p.yt != nil {
		if _, err := youtube.ExtractVideoID(src.URL); err == nil {
			probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			info, err := p.yt.Probe(probeCtx, src.URL)
			cancel()
			if err != nil {
				slog.Warn("metadata probe failed", "url", src.URL, "error", err)
			} else {
				meta.Title = info.Title
			}
		}
	}

	var cookieFile string
	if p.creds != nil {
		cookieFile = p.creds.CookieFile()
	}

	pipe, err := NewRemotePipeline(src.URL, cookieFile, hooks.OnBytes)
	if err != nil {
		return nil, fault.Wrap(fault.DownloadFailed, stageName, err)
	}

	id := uuid.NewString()
	// Conventional path for callers that key artifacts by file name;
	// the audio may never touch disk.
	audioPath := filepath.Join(p.cfg.AudioDir, id+".mp3")
	audio := BufferReader(pipe.Out, p.cfg.Buffer)
	release := p.register(id, func() {
		_ = audio.Close()
		pipe.Cleanup()
	}, audioPath)

	return NewProcessed(id, audio, audioPath, meta, release), nil
}

// processLocal transcodes an uploaded file, staging it through blob
// storage first when it exceeds the local ceiling.
func (p *Processor) processLocal(ctx context.Context, src Source, hooks ProgressHooks) (*Processed, error) {
	size := src.Size
	if size == 0 && len(src.Data) > 0 {
		size = int64(len(src.Data))
	}
	if size == 0 && src.Path != "" {
		if info, err := os.Stat(src.Path); err == nil {
			size = info.Size()
		}
	}
	if size <= 0 {
		return nil, fault.New(fault.BadRequest, stageName, "uploaded file is empty")
	}
	if p.cfg.MaxFileBytes > 0 && size > p.cfg.MaxFileBytes {
		return nil, fault.New(fault.BadRequest, stageName,
			fmt.Sprintf("file exceeds maximum size of %d bytes", p.cfg.MaxFileBytes))
	}

	id := uuid.NewString()

	if p.router != nil && p.router.ShouldRoute(size) {
		return p.processViaBlob(ctx, id, src, size, hooks)
	}

	var pipe *StreamPipeline
	var err error
	switch {
	case src.Path != "":
		if verr := ValidateVideoFile(src.Path); verr != nil {
			return nil, fault.Wrap(fault.BadRequest, stageName, verr)
		}
		pipe, err = NewFilePipeline(src.Path)
	case len(src.Data) > 0:
		if !LooksLikeVideo(src.Data) {
			return nil, fault.New(fault.BadRequest, stageName, "unrecognized media format")
		}
		pipe, err = NewLocalPipeline(bytes.NewReader(src.Data))
	default:
		return nil, fault.New(fault.BadRequest, stageName, "file source has no payload")
	}
	if err != nil {
		return nil, fault.Wrap(fault.ProcessingFailed, stageName, err)
	}

	audioPath := filepath.Join(p.cfg.AudioDir, id+".mp3")
	audio := BufferReader(pipe.Out, p.cfg.Buffer)
	release := p.register(id, func() {
		_ = audio.Close()
		pipe.Cleanup()
	}, audioPath)

	return NewProcessed(id, audio, audioPath, Metadata{Format: "mp3", SizeBytes: size}, release), nil
}

// processViaBlob stages the oversized payload through the blob store
// and transcodes from the downloaded stream.
func (p *Processor) processViaBlob(ctx context.Context, id string, src Source, size int64, hooks ProgressHooks) (*Processed, error) {
	var payload io.Reader
	switch {
	case src.Path != "":
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, fault.Wrap(fault.BadRequest, stageName, err)
		}
		defer f.Close()
		payload = f
	case len(src.Data) > 0:
		payload = bytes.NewReader(src.Data)
	default:
		return nil, fault.New(fault.BadRequest, stageName, "file source has no payload")
	}

	blobName := id + filepath.Ext(src.Name)
	if err := p.router.Upload(ctx, payload, blobName, size, hooks.OnUpload); err != nil {
		return nil, fault.Wrap(fault.ProcessingFailed, stageName, err)
	}

	staged, err := p.router.Download(ctx, blobName)
	if err != nil {
		_ = p.router.Delete(ctx, blobName)
		return nil, fault.Wrap(fault.ProcessingFailed, stageName, err)
	}

	pipe, err := NewLocalPipeline(staged)
	if err != nil {
		staged.Close()
		_ = p.router.Delete(ctx, blobName)
		return nil, fault.Wrap(fault.ProcessingFailed, stageName, err)
	}

	audioPath := filepath.Join(p.cfg.AudioDir, id+".mp3")
	audio := BufferReader(pipe.Out, p.cfg.Buffer)
	release := p.register(id, func() {
		_ = audio.Close()
		_ = staged.Close()
		pipe.Cleanup()
		if err := p.router.Delete(context.Background(), blobName); err != nil {
			slog.Warn("blob cleanup failed", "blob", blobName, "error", err)
		}
	}, audioPath)

	return NewProcessed(id, audio, audioPath, Metadata{Format: "mp3", SizeBytes: size}, release), nil
}

// register records an in-flight stream and returns its release
// closure. The closure deregisters, runs the stored cleanup, and
// best-effort deletes any on-disk artifact; a missing file is fine.
func (p *Processor) register(id string, cleanup func(), artifact string) func() {
	p.mu.Lock()
	p.inflight[id] = &registryEntry{
		created:  time.Now(),
		release:  cleanup,
		artifact: artifact,
	}
	p.mu.Unlock()
	return func() { p.Cleanup(id) }
}

// Cleanup releases the registry entry for id. Safe to call for unknown
// or already-released ids.
func (p *Processor) Cleanup(id string) {
	p.mu.Lock()
	entry, ok := p.inflight[id]
	if ok {
		delete(p.inflight, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if entry.release != nil {
		entry.release()
	}
	if entry.artifact != "" {
		if err := os.Remove(entry.artifact); err != nil && !os.IsNotExist(err) {
			slog.Warn("artifact cleanup failed", "id", id, "path", entry.artifact, "error", err)
		}
	}
}

// InFlight returns the number of registered streams.
func (p *Processor) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// StartSweeper reclaims registry entries older than the TTL on the
// given interval, a safety net against callers that never finish.
func (p *Processor) StartSweeper(interval time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.sweep()
			}
		}
	}()
}

// StopSweeper stops the background sweep loop.
func (p *Processor) StopSweeper() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Processor) sweep() {
	cutoff := time.Now().Add(-p.cfg.RegistryTTL)
	p.mu.Lock()
	var stale []string
	for id, entry := range p.inflight {
		if entry.created.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	p.mu.Unlock()
	for _, id := range stale {
		slog.Info("reclaiming stale media stream", "id", id)
		p.Cleanup(id)
	}
}
