// Package blob routes large uploads through a block-based blob store
// and streams them back for processing. The store itself is a pluggable
// capability; the routing and chunked-transfer logic lives here.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// Failure taxonomy surfaced to callers. Transient per-block failures
// stay internal to the router's retry loop and never reach these.
var (
	ErrNotInitialized = errors.New("blob store not initialized")
	ErrUnauthorized   = errors.New("blob store access unauthorized")
	ErrNotFound       = errors.New("blob not found")
)

// Store is the blob storage capability. Uploads are staged block by
// block and become visible only after CommitBlocks; everything else is
// plain CRUD plus short-lived signed upload URLs for direct
// client-to-storage transfer.
type Store interface {
	StageBlock(ctx context.Context, name, blockID string, data []byte) error
	CommitBlocks(ctx context.Context, name string, blockIDs []string) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	SignedUploadURL(ctx context.Context, name string, ttl time.Duration) (string, error)
}
