package media

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"clipdigest/internal/fault"
)

// Audio encoding applied by the transcode process. Policy values, not
// correctness requirements.
const (
	audioCodec      = "libmp3lame"
	audioBitrate    = "128k"
	audioSampleRate = "44100"
	audioChannels   = "2"
)

// StreamPipeline is a running chain of external processes whose tail
// stdout is exposed as a single readable audio stream. A non-zero exit
// anywhere in the chain surfaces as a read error on Out; Cleanup is
// idempotent and its kills are a deliberate stop, not a failure.
type StreamPipeline struct {
	Out io.ReadCloser

	kill []*exec.Cmd // processes to signal
	once sync.Once

	mu      sync.Mutex
	stopped bool
}

// Cleanup signals termination to any still-running process in the
// chain. Safe to call multiple times.
func (p *StreamPipeline) Cleanup() {
	p.once.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		if p.Out != nil {
			_ = p.Out.Close()
		}
		for _, cmd := range p.kill {
			if cmd.Process != nil {
				// Kill on an exited process returns an error we
				// deliberately ignore.
				_ = cmd.Process.Kill()
			}
		}
	})
}

func (p *StreamPipeline) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// buildFetchArgs assembles the downloader invocation: best audio-only
// format, written to stdout, optionally authenticated with a cookie jar.
func buildFetchArgs(url, cookieFile string) []string {
	args := []string{
		"-f", "bestaudio/best",
		"--no-playlist",
		"--quiet",
		"-o", "-",
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	return append(args, url)
}

// buildTranscodeArgs assembles the ffmpeg invocation reading from the
// given input (a pipe or a file path) and writing mp3 to stdout.
func buildTranscodeArgs(input string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-acodec", audioCodec,
		"-ab", audioBitrate,
		"-ar", audioSampleRate,
		"-ac", audioChannels,
		"-f", "mp3",
		"pipe:1",
	}
}

// NewRemotePipeline spawns the fetch process for url and pipes its
// stdout into a transcode process. The fetch stdout file descriptor is
// handed to the transcoder directly, so a dying fetch process closes
// the write end and the transcoder sees EOF instead of deadlocking.
// onBytes, when set, receives cumulative kilobytes of encoded audio.
func NewRemotePipeline(url, cookieFile string, onBytes func(kb int64)) (*StreamPipeline, error) {
	fetch := exec.Command("yt-dlp", buildFetchArgs(url, cookieFile)...)
	trans := exec.Command("ffmpeg", buildTranscodeArgs("pipe:0")...)
	return startPipeline(fetch, trans, onBytes)
}

// NewLocalPipeline spawns a single transcode process fed from src.
func NewLocalPipeline(src io.Reader) (*StreamPipeline, error) {
	trans := exec.Command("ffmpeg", buildTranscodeArgs("pipe:0")...)
	trans.Stdin = src
	return startPipeline(nil, trans, nil)
}

// NewFilePipeline spawns a transcode process reading directly from an
// on-disk file.
func NewFilePipeline(path string) (*StreamPipeline, error) {
	trans := exec.Command("ffmpeg", buildTranscodeArgs(path)...)
	return startPipeline(nil, trans, nil)
}

// startPipeline starts the optional fetch process and the transcoder,
// then relays transcoder output through an in-process pipe so that
// subprocess exit codes reach the reader as stream errors instead of a
// clean EOF. fetch may be nil for single-process pipelines.
func startPipeline(fetch, trans *exec.Cmd, onBytes func(kb int64)) (*StreamPipeline, error) {
	var fetchOut io.ReadCloser
	if fetch != nil {
		var err error
		fetchOut, err = fetch.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("fetch stdout pipe: %w", err)
		}
		trans.Stdin = fetchOut
	}

	transOut, err := trans.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transcode stdout pipe: %w", err)
	}

	if fetch != nil {
		if err := fetch.Start(); err != nil {
			return nil, fault.Wrap(fault.DownloadFailed, stageName, fmt.Errorf("start downloader: %w", err))
		}
	}
	if err := trans.Start(); err != nil {
		if fetch != nil {
			_ = fetch.Process.Kill()
			_ = fetch.Wait()
		}
		return nil, fault.Wrap(fault.ProcessingFailed, stageName, fmt.Errorf("start transcoder: %w", err))
	}

	p := &StreamPipeline{}
	if fetch != nil {
		p.kill = append(p.kill, fetch)
	}
	p.kill = append(p.kill, trans)

	pr, pw := io.Pipe()
	if onBytes != nil {
		p.Out = &countingReader{r: pr, onBytes: onBytes}
	} else {
		p.Out = pr
	}

	go p.relay(pw, transOut, fetchOut, fetch, trans)
	return p, nil
}

// relay copies transcoder output into the stream, reaps both
// processes, and closes the stream with whatever failure their exit
// codes describe.
func (p *StreamPipeline) relay(pw *io.PipeWriter, transOut, fetchOut io.ReadCloser, fetch, trans *exec.Cmd) {
	_, copyErr := io.Copy(pw, transOut)
	transErr := trans.Wait()

	var fetchErr error
	if fetch != nil {
		// Drop our read end first so a fetch process stuck writing
		// into a dead transcoder gets EPIPE instead of hanging Wait.
		_ = fetchOut.Close()
		fetchErr = fetch.Wait()
	}

	pw.CloseWithError(p.exitError(fetchErr, transErr, copyErr))
}

// exitError translates subprocess exit status into the error readers
// of Out observe. The fetch process failing dominates: a transcoder
// dying on truncated input is a symptom, not the cause.
func (p *StreamPipeline) exitError(fetchErr, transErr, copyErr error) error {
	if p.wasStopped() {
		return nil
	}
	switch {
	case fetchErr != nil:
		return fault.Wrap(fault.DownloadFailed, stageName, fmt.Errorf("fetch process: %w", fetchErr))
	case transErr != nil:
		return fault.Wrap(fault.ProcessingFailed, stageName, fmt.Errorf("transcode process: %w", transErr))
	default:
		return copyErr
	}
}

// countingReader reports cumulative kilobytes read through it. Total
// size is unknown while streaming, so byte counts are the only honest
// progress signal this stage has.
type countingReader struct {
	r       io.Reader
	onBytes func(kb int64)
	n       int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		if c.onBytes != nil {
			c.onBytes(c.n / 1024)
		}
	}
	return n, err
}

func (c *countingReader) Close() error {
	if closer, ok := c.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
