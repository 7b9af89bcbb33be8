package media

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// BufferConfig controls the adaptive flush threshold.
type BufferConfig struct {
	InitialSize      int
	MinSize          int
	MaxSize          int
	GrowthFactor     float64
	ShrinkFactor     float64
	EvaluationEvery  time.Duration
	LatencyThreshold time.Duration
	MaxIdle          time.Duration

	// OnResize is invoked whenever the evaluation tick changes the
	// threshold. Reason is one of "High latency", "Buffer pressure",
	// "Buffer underutilized".
	OnResize func(newSize int, reason string)
}

// DefaultBufferConfig returns the reference tuning.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		InitialSize:      64 * 1024,
		MinSize:          16 * 1024,
		MaxSize:          1024 * 1024,
		GrowthFactor:     1.5,
		ShrinkFactor:     0.5,
		EvaluationEvery:  time.Second,
		LatencyThreshold: 500 * time.Millisecond,
		MaxIdle:          5 * time.Second,
	}
}

// AdaptiveBuffer batches incoming chunks and flushes them downstream
// when the accumulated bytes reach a dynamic threshold or when MaxIdle
// elapses since the last flush. The threshold shrinks when the
// downstream consumer is slow and grows when it keeps up, so an
// uncontrolled producer (a transcode subprocess) cannot balloon memory
// against a slow network consumer.
type AdaptiveBuffer struct {
	cfg BufferConfig
	dst io.Writer

	mu         sync.Mutex
	buf        bytes.Buffer
	threshold  int
	latencies  []time.Duration
	writeErr   error
	closed     bool
	lastFlush  time.Time
	stopTicker chan struct{}
	done       sync.WaitGroup
}

// NewAdaptiveBuffer wraps dst. Close must be called to flush the tail
// and stop the evaluation timer.
func NewAdaptiveBuffer(dst io.Writer, cfg BufferConfig) *AdaptiveBuffer {
	if cfg.InitialSize <= 0 {
		cfg = DefaultBufferConfig()
	}
	b := &AdaptiveBuffer{
		cfg:        cfg,
		dst:        dst,
		threshold:  cfg.InitialSize,
		lastFlush:  time.Now(),
		stopTicker: make(chan struct{}),
	}
	b.done.Add(1)
	go b.run()
	return b
}

// Write accumulates p and flushes when the threshold is reached.
func (b *AdaptiveBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return 0, b.writeErr
	}
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.buf.Write(p)
	if b.buf.Len() >= b.threshold {
		if err := b.flushLocked(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes any remaining bytes and stops the evaluation loop.
func (b *AdaptiveBuffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	err := b.flushLocked()
	b.mu.Unlock()

	close(b.stopTicker)
	b.done.Wait()
	return err
}

// Threshold returns the current flush threshold.
func (b *AdaptiveBuffer) Threshold() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threshold
}

// run drives the periodic evaluation and the idle flush.
func (b *AdaptiveBuffer) run() {
	defer b.done.Done()
	ticker := time.NewTicker(b.cfg.EvaluationEvery)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopTicker:
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.writeErr != nil {
				b.mu.Unlock()
				return
			}
			b.evaluateLocked()
			if b.buf.Len() > 0 && time.Since(b.lastFlush) >= b.cfg.MaxIdle {
				_ = b.flushLocked()
			}
			b.mu.Unlock()
		}
	}
}

// flushLocked writes the accumulated batch downstream and records the
// observed flush latency. Callers hold b.mu.
func (b *AdaptiveBuffer) flushLocked() error {
	if b.buf.Len() == 0 {
		return b.writeErr
	}
	start := time.Now()
	_, err := b.dst.Write(b.buf.Bytes())
	b.latencies = append(b.latencies, time.Since(start))
	b.buf.Reset()
	b.lastFlush = time.Now()
	if err != nil {
		b.writeErr = err
	}
	return err
}

// evaluateLocked resizes the threshold from the latencies observed
// since the previous tick. Callers hold b.mu.
func (b *AdaptiveBuffer) evaluateLocked() {
	avg := averageLatency(b.latencies)
	b.latencies = b.latencies[:0]

	switch {
	case avg > b.cfg.LatencyThreshold:
		b.resizeLocked(float64(b.threshold)*b.cfg.ShrinkFactor, "High latency")
	case b.buf.Len() > b.threshold*9/10:
		b.resizeLocked(float64(b.threshold)*b.cfg.GrowthFactor, "Buffer pressure")
	case b.buf.Len() < b.threshold*3/10:
		b.resizeLocked(float64(b.threshold)*b.cfg.ShrinkFactor, "Buffer underutilized")
	}
}

func (b *AdaptiveBuffer) resizeLocked(target float64, reason string) {
	next := int(target)
	if next < b.cfg.MinSize {
		next = b.cfg.MinSize
	}
	if next > b.cfg.MaxSize {
		next = b.cfg.MaxSize
	}
	if next == b.threshold {
		return
	}
	b.threshold = next
	if b.cfg.OnResize != nil {
		b.cfg.OnResize(next, reason)
	}
}

func averageLatency(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return total / time.Duration(len(samples))
}

// BufferReader pumps src through an AdaptiveBuffer and exposes the
// batched output as a readable stream. Closing the returned reader
// tears the pump down and closes src.
func BufferReader(src io.ReadCloser, cfg BufferConfig) io.ReadCloser {
	pr, pw := io.Pipe()
	buf := NewAdaptiveBuffer(pw, cfg)
	go func() {
		_, err := io.Copy(buf, src)
		if cerr := buf.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return &pumpReader{PipeReader: pr, src: src}
}

type pumpReader struct {
	*io.PipeReader
	src io.ReadCloser
}

func (r *pumpReader) Close() error {
	err := r.PipeReader.Close()
	_ = r.src.Close()
	return err
}
