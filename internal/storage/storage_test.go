package storage

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectNameGzipSuffix(t *testing.T) {
	date := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "operations/2026/07/29/op-1/grab.jsonl.gz", ObjectName("op-1", "jsonl", date, true))
	assert.Equal(t, "operations/2026/07/29/op-1/grab.jsonl", ObjectName("op-1", "jsonl", date, false))
	assert.Equal(t, "operations/2026/07/29/op-1/grab.warc.gz", ObjectName("op-1", "warc", date, true))
}

func TestContentTypeForKnownAndUnknownKinds(t *testing.T) {
	assert.Equal(t, "application/x-ndjson", ContentTypeFor("jsonl"))
	assert.Equal(t, "application/warc", ContentTypeFor("warc"))
	assert.Equal(t, "image/png", ContentTypeFor("png"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("unknown-kind"))
}

func TestLocalUploaderGzipRoundTrips(t *testing.T) {
	u, err := NewLocalUploader(t.TempDir())
	require.NoError(t, err)

	result, err := u.Upload(context.Background(), &UploadRequest{
		ObjectName: "operations/2026/07/29/op-1/grab.jsonl.gz",
		Content:    strings.NewReader(`{"event":"controllerStart"}`),
		Gzip:       true,
	})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(result.SignedURL, "file://"))
	path := strings.TrimPrefix(result.SignedURL, "file://")

	f, err := os.Open(filepath.FromSlash(path))
	require.NoError(t, err)
	defer f.Close()

	gr, err := gzip.NewReader(f)
	require.NoError(t, err, "uploaded content must be valid gzip when Gzip is set")
	defer gr.Close()

	content, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, `{"event":"controllerStart"}`, string(content))
}

func TestLocalUploaderUncompressedWritesVerbatim(t *testing.T) {
	u, err := NewLocalUploader(t.TempDir())
	require.NoError(t, err)

	result, err := u.Upload(context.Background(), &UploadRequest{
		ObjectName: "operations/2026/07/29/op-1/shot.png",
		Content:    strings.NewReader("not-really-a-png"),
	})
	require.NoError(t, err)

	path := strings.TrimPrefix(result.SignedURL, "file://")
	content, err := os.ReadFile(filepath.FromSlash(path))
	require.NoError(t, err)
	assert.Equal(t, "not-really-a-png", string(content))
}
