package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Reference transfer tuning.
const (
	DefaultLocalLimit  = 100 * 1024 * 1024
	DefaultBlockSize   = 8 * 1024 * 1024
	DefaultParallelism = 4
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
	DefaultUploadTTL   = 15 * time.Minute
)

// Router decides whether a payload is processed from local disk or
// staged through the blob store, and performs the chunked transfer when
// routed to the store.
type Router struct {
	store       Store
	localLimit  int64
	blockSize   int
	parallelism int
	maxAttempts int
	retryDelay  time.Duration
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithLocalLimit overrides the local-processing size ceiling.
func WithLocalLimit(n int64) RouterOption {
	return func(r *Router) { r.localLimit = n }
}

// WithBlockSize overrides the upload block size.
func WithBlockSize(n int) RouterOption {
	return func(r *Router) { r.blockSize = n }
}

// WithRetry overrides per-block attempt count and backoff delay.
func WithRetry(attempts int, delay time.Duration) RouterOption {
	return func(r *Router) {
		r.maxAttempts = attempts
		r.retryDelay = delay
	}
}

// NewRouter creates a Router with the reference tuning.
func NewRouter(store Store, opts ...RouterOption) *Router {
	r := &Router{
		store:       store,
		localLimit:  DefaultLocalLimit,
		blockSize:   DefaultBlockSize,
		parallelism: DefaultParallelism,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShouldRoute reports whether a payload of the given size must be
// staged through the blob store instead of being processed locally.
func (r *Router) ShouldRoute(sizeBytes int64) bool {
	return sizeBytes > r.localLimit
}

// Upload splits src into fixed-size blocks, stages them with bounded
// concurrency, and commits the block list only after every block
// succeeds. Each block is retried up to maxAttempts times with a fixed
// delay; exhausted retries fail the whole upload and nothing is
// committed. Progress is bytesUploaded/totalBytes.
func (r *Router) Upload(ctx context.Context, src io.Reader, name string, totalBytes int64, onProgress func(done, total int64)) error {
	if r.store == nil {
		return ErrNotInitialized
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	var (
		blockIDs []string
		uploaded atomic.Int64
	)

	for index := 0; ; index++ {
		block := make([]byte, r.blockSize)
		n, err := io.ReadFull(src, block)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("read upload block %d: %w", index, err)
		}
		block = block[:n]

		blockID := fmt.Sprintf("%06d", index)
		blockIDs = append(blockIDs, blockID)

		// SetLimit makes Go block here once parallelism blocks are in
		// flight, which also bounds buffered memory.
		g.Go(func() error {
			if err := r.stageWithRetry(gctx, name, blockID, block); err != nil {
				return err
			}
			done := uploaded.Add(int64(len(block)))
			if onProgress != nil {
				onProgress(done, totalBytes)
			}
			return nil
		})

		if err == io.ErrUnexpectedEOF {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if err := r.store.CommitBlocks(ctx, name, blockIDs); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

// stageWithRetry attempts one block upload up to maxAttempts times.
func (r *Router) stageWithRetry(ctx context.Context, name, blockID string, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = r.store.StageBlock(ctx, name, blockID, data)
		if lastErr == nil {
			return nil
		}
		slog.Warn("block upload attempt failed",
			"blob", name, "block", blockID,
			"attempt", attempt, "error", lastErr)
		if attempt < r.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
	}
	return fmt.Errorf("block %s failed after %d attempts: %w", blockID, r.maxAttempts, lastErr)
}

// Download returns a readable stream backed by the named blob.
func (r *Router) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	if r.store == nil {
		return nil, ErrNotInitialized
	}
	return r.store.Download(ctx, name)
}

// Delete removes the named blob, best effort.
func (r *Router) Delete(ctx context.Context, name string) error {
	if r.store == nil {
		return ErrNotInitialized
	}
	return r.store.Delete(ctx, name)
}

// SignedUploadURL mints a short-lived direct-upload URL so large
// payloads can bypass the request-handling process entirely.
func (r *Router) SignedUploadURL(ctx context.Context, name string) (string, error) {
	if r.store == nil {
		return "", ErrNotInitialized
	}
	return r.store.SignedUploadURL(ctx, name, DefaultUploadTTL)
}
