package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DirStore is a filesystem-backed Store. It keeps staged blocks under a
// hidden staging directory per blob and materializes the blob on
// commit. It exists so the pipeline runs without a cloud account and as
// the reference implementation for tests.
type DirStore struct {
	dir string
}

// NewDirStore creates the backing directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, ErrNotInitialized
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) stagingDir(name string) string {
	return filepath.Join(s.dir, ".staging", name)
}

// StageBlock writes one block to the blob's staging area.
func (s *DirStore) StageBlock(ctx context.Context, name, blockID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.stagingDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, blockID), data, 0o644)
}

// CommitBlocks concatenates staged blocks in list order into the final
// blob and removes the staging area.
func (s *DirStore) CommitBlocks(ctx context.Context, name string, blockIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	defer out.Close()

	for _, id := range blockIDs {
		block, err := os.Open(filepath.Join(s.stagingDir(name), id))
		if err != nil {
			return fmt.Errorf("missing staged block %s: %w", id, err)
		}
		_, err = io.Copy(out, block)
		block.Close()
		if err != nil {
			return fmt.Errorf("write block %s: %w", id, err)
		}
	}
	return os.RemoveAll(s.stagingDir(name))
}

// Download opens the blob for reading. Stream errors propagate to the
// reader, never swallowed here.
func (s *DirStore) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob. A missing blob is not an error.
func (s *DirStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists reports whether the blob has been committed.
func (s *DirStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SignedUploadURL mints a write-once upload token scoped to name. With
// a filesystem store the URL is opaque and only honored by this
// process, but the shape matches what a cloud-backed store returns.
func (s *DirStore) SignedUploadURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("blob+local://%s?token=%s&expires=%d", name, uuid.NewString(), expires), nil
}
