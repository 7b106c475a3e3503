package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink is a minimal in-memory upload.Sink used to exercise Streaming
// without a real S3/SFTP backend.
type memSink struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	written   uint64
	completed bool
	aborted   bool
	failAfter int // fail the Nth Write call if > 0
	writeN    int
}

func (s *memSink) Write(_ context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeN++
	if s.failAfter > 0 && s.writeN >= s.failAfter {
		return 0, fmt.Errorf("simulated write failure")
	}
	n, err := s.buf.Write(p)
	atomic.AddUint64(&s.written, uint64(n))
	return n, err
}

func (s *memSink) Complete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	return nil
}

func (s *memSink) Abort(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	return nil
}

func (s *memSink) BytesWritten() uint64 {
	return atomic.LoadUint64(&s.written)
}

func writeStreamingTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "fs", "etc"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fs", "etc", "passwd"), []byte("root:x:0:0"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(root, "collection_summary.json"), []byte(`{"collection_id":"abc"}`), 0640))

	return root
}

func TestStreaming_ProducesValidArchiveAndUploadsSummarySeparately(t *testing.T) {
	root := writeStreamingTestTree(t)
	archiveSink := &memSink{}
	summarySink := &memSink{}

	result, err := Streaming(context.Background(), root, "collection_summary.json", archiveSink, summarySink)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesWritten)
	assert.True(t, archiveSink.completed)
	assert.True(t, summarySink.completed)

	reader, err := zip.NewReader(bytes.NewReader(archiveSink.buf.Bytes()), int64(archiveSink.buf.Len()))
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range reader.File {
		names[f.Name] = true
	}
	assert.True(t, names["fs/etc/passwd"])
	assert.True(t, names["collection_summary.json"])

	assert.Equal(t, `{"collection_id":"abc"}`, summarySink.buf.String())
}

func TestStreaming_AbortsArchiveOnWalkFailure(t *testing.T) {
	root := writeStreamingTestTree(t)
	archiveSink := &memSink{failAfter: 1}
	summarySink := &memSink{}

	_, err := Streaming(context.Background(), root, "collection_summary.json", archiveSink, summarySink)
	require.Error(t, err)
	assert.True(t, archiveSink.aborted)
	assert.False(t, summarySink.completed)
}

func TestStreaming_FileContentsRoundTrip(t *testing.T) {
	root := writeStreamingTestTree(t)
	archiveSink := &memSink{}
	summarySink := &memSink{}

	_, err := Streaming(context.Background(), root, "collection_summary.json", archiveSink, summarySink)
	require.NoError(t, err)

	reader, err := zip.NewReader(bytes.NewReader(archiveSink.buf.Bytes()), int64(archiveSink.buf.Len()))
	require.NoError(t, err)

	for _, f := range reader.File {
		if f.Name != "fs/etc/passwd" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, "root:x:0:0", string(data))
	}
}
