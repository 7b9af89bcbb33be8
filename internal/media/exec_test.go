package media

import (
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"clipdigest/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFetchArgs(t *testing.T) {
	args := buildFetchArgs("https://example.com/v?x=abc123", "")
	assert.Contains(t, args, "bestaudio/best")
	assert.Contains(t, args, "--no-playlist")
	assert.NotContains(t, args, "--cookies")
	assert.Equal(t, "https://example.com/v?x=abc123", args[len(args)-1])

	// Output must go to stdout so it can be piped.
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-o -")
}

func TestBuildFetchArgsWithCookies(t *testing.T) {
	args := buildFetchArgs("https://example.com/v", "/tmp/cookies.txt")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--cookies /tmp/cookies.txt")
}

func TestBuildTranscodeArgs(t *testing.T) {
	args := buildTranscodeArgs("pipe:0")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i pipe:0")
	assert.Contains(t, joined, "-vn")
	assert.Contains(t, joined, "-acodec libmp3lame")
	assert.Contains(t, joined, "-ab 128k")
	assert.Contains(t, joined, "-ar 44100")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestCountingReaderReportsKilobytes(t *testing.T) {
	var last int64
	src := strings.NewReader(strings.Repeat("x", 3*1024))
	r := &countingReader{r: src, onBytes: func(kb int64) { last = kb }}

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, data, 3*1024)
	assert.Equal(t, int64(3), last)
}

func TestStreamPipelineCleanupIdempotent(t *testing.T) {
	closed := 0
	p := &StreamPipeline{Out: &countCloser{n: &closed}}

	p.Cleanup()
	p.Cleanup()
	p.Cleanup()

	assert.Equal(t, 1, closed)
}

type countCloser struct{ n *int }

func (c *countCloser) Read([]byte) (int, error) { return 0, io.EOF }
func (c *countCloser) Close() error             { *c.n++; return nil }

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestPipelineSurfacesFetchFailure(t *testing.T) {
	requireShell(t)

	// A fetch process that emits partial output and dies must not look
	// like a complete download.
	fetch := exec.Command("sh", "-c", "printf 'partial-audio-bytes'; exit 1")
	trans := exec.Command("sh", "-c", "cat")

	p, err := startPipeline(fetch, trans, nil)
	require.NoError(t, err)
	defer p.Cleanup()

	data, readErr := readAllLoose(p.Out)
	assert.Equal(t, "partial-audio-bytes", string(data))
	require.Error(t, readErr)
	assert.Equal(t, fault.DownloadFailed, fault.KindOf(readErr))
}

func TestPipelineSurfacesTranscodeFailure(t *testing.T) {
	requireShell(t)

	trans := exec.Command("sh", "-c", "printf 'head'; exit 3")
	p, err := startPipeline(nil, trans, nil)
	require.NoError(t, err)
	defer p.Cleanup()

	data, readErr := readAllLoose(p.Out)
	assert.Equal(t, "head", string(data))
	require.Error(t, readErr)
	assert.Equal(t, fault.ProcessingFailed, fault.KindOf(readErr))
}

func TestPipelineCleanExitIsNotAFailure(t *testing.T) {
	requireShell(t)

	trans := exec.Command("sh", "-c", "printf 'complete'")
	p, err := startPipeline(nil, trans, nil)
	require.NoError(t, err)
	defer p.Cleanup()

	data, readErr := readAllLoose(p.Out)
	require.NoError(t, readErr)
	assert.Equal(t, "complete", string(data))
}

func TestPipelineCleanupKillIsNotAFailure(t *testing.T) {
	requireShell(t)

	trans := exec.Command("sh", "-c", "sleep 30")
	p, err := startPipeline(nil, trans, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := readAllLoose(p.Out)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	p.Cleanup()

	select {
	case readErr := <-done:
		// The reader unblocks, and whatever it sees is not a pipeline
		// failure kind.
		assert.NotEqual(t, fault.DownloadFailed, fault.KindOf(readErr))
		assert.NotEqual(t, fault.ProcessingFailed, fault.KindOf(readErr))
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not unblock after Cleanup")
	}
}

// readAllLoose reads until EOF or error, returning both what was read
// and the terminating error (nil for a clean EOF).
func readAllLoose(r io.Reader) ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
