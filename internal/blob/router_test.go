package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records staged blocks and can be told to fail a specific
// block for its first N attempts.
type fakeStore struct {
	mu        sync.Mutex
	attempts  map[string]int
	staged    map[string][]byte
	committed []string
	failBlock string
	failTimes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attempts: make(map[string]int),
		staged:   make(map[string][]byte),
	}
}

func (s *fakeStore) StageBlock(_ context.Context, _, blockID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[blockID]++
	if blockID == s.failBlock && s.attempts[blockID] <= s.failTimes {
		return errors.New("transient block failure")
	}
	s.staged[blockID] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) CommitBlocks(_ context.Context, _ string, blockIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append([]string(nil), blockIDs...)
	return nil
}

func (s *fakeStore) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, ErrNotFound
}
func (s *fakeStore) Delete(context.Context, string) error        { return nil }
func (s *fakeStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (s *fakeStore) SignedUploadURL(context.Context, string, time.Duration) (string, error) {
	return "blob+test://x", nil
}

func testRouter(s Store) *Router {
	return NewRouter(s, WithBlockSize(4), WithRetry(3, time.Millisecond))
}

func TestShouldRoute(t *testing.T) {
	r := NewRouter(newFakeStore(), WithLocalLimit(100*1024*1024))

	assert.False(t, r.ShouldRoute(100*1024*1024))
	assert.True(t, r.ShouldRoute(150*1024*1024))
}

func TestUploadSplitsAndCommits(t *testing.T) {
	store := newFakeStore()
	r := testRouter(store)

	payload := []byte("abcdefghij") // 4+4+2 with 4-byte blocks
	var lastDone, lastTotal int64
	err := r.Upload(context.Background(), bytes.NewReader(payload), "clip", int64(len(payload)),
		func(done, total int64) { lastDone, lastTotal = done, total })
	require.NoError(t, err)

	assert.Equal(t, []string{"000000", "000001", "000002"}, store.committed)
	assert.Equal(t, []byte("ij"), store.staged["000002"])
	assert.Equal(t, int64(len(payload)), lastDone)
	assert.Equal(t, int64(len(payload)), lastTotal)
}

func TestUploadRetriesTransientBlockFailure(t *testing.T) {
	store := newFakeStore()
	store.failBlock = "000001"
	store.failTimes = 2
	r := testRouter(store)

	err := r.Upload(context.Background(), bytes.NewReader([]byte("abcdefghij")), "clip", 10, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, store.attempts["000001"], "two failures then one success")
	assert.Len(t, store.committed, 3)
}

func TestUploadFailsAfterExhaustedRetries(t *testing.T) {
	store := newFakeStore()
	store.failBlock = "000000"
	store.failTimes = 3
	r := testRouter(store)

	err := r.Upload(context.Background(), bytes.NewReader([]byte("abcdefghij")), "clip", 10, nil)
	require.Error(t, err)

	assert.Equal(t, 3, store.attempts["000000"])
	assert.Nil(t, store.committed, "no block list committed on failure")
}

func TestUploadNilStore(t *testing.T) {
	r := &Router{}
	err := r.Upload(context.Background(), bytes.NewReader(nil), "clip", 0, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestDirStoreRoundtrip(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.StageBlock(ctx, "clip", "000000", []byte("hello ")))
	require.NoError(t, store.StageBlock(ctx, "clip", "000001", []byte("world")))

	ok, err := store.Exists(ctx, "clip")
	require.NoError(t, err)
	assert.False(t, ok, "not visible before commit")

	require.NoError(t, store.CommitBlocks(ctx, "clip", []string{"000000", "000001"}))

	ok, err = store.Exists(ctx, "clip")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Download(ctx, "clip")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, store.Delete(ctx, "clip"))
	_, err = store.Download(ctx, "clip")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, "clip"))
}

func TestDirStoreSignedUploadURL(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	url, err := store.SignedUploadURL(context.Background(), "clip", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "clip")
	assert.Contains(t, url, "token=")
	assert.Contains(t, url, "expires=")
}
