package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/grab-engine/internal/grab/config"
	"github.com/tomasbasham/grab-engine/internal/operation"
	"github.com/tomasbasham/grab-engine/internal/storage"
)

// noopUploader satisfies storage.Uploader without touching the
// filesystem or a real bucket, since these handler tests only care
// about the synchronous HTTP response, not the background worker's
// eventual (browserless, and so failing) grab attempt.
type noopUploader struct{}

func (noopUploader) Upload(ctx context.Context, req *storage.UploadRequest) (*storage.UploadResult, error) {
	return &storage.UploadResult{ObjectName: req.ObjectName}, nil
}

func newTestServer() *Server {
	return New(operation.NewMemoryStore(), noopUploader{}, config.GrabOptions{
		IdleTimeout: 2 * time.Second,
		Timeout:     10 * time.Second,
	})
}

func TestHandleCreateGrabRejectsMissingURL(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/grabs", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()

	s.mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateGrabRejectsInvalidJSON(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/grabs", bytes.NewBufferString(`not json`))
	w := httptest.NewRecorder()

	s.mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateGrabRejectsInvalidTimeout(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/grabs", bytes.NewBufferString(`{"url":"https://example.com","timeout":"not-a-duration"}`))
	w := httptest.NewRecorder()

	s.mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateGrabAcceptsValidRequest(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/grabs", bytes.NewBufferString(`{"url":"https://example.com"}`))
	w := httptest.NewRecorder()

	s.mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp createGrabResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.OperationID)
	assert.Equal(t, string(operation.StatusPending), resp.Status)
}

func TestHandleGetGrabUnknownIDReturns404(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/grabs/does-not-exist", nil)
	w := httptest.NewRecorder()

	s.mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetGrabReturnsCreatedOperation(t *testing.T) {
	store := operation.NewMemoryStore()
	s := New(store, noopUploader{}, config.GrabOptions{IdleTimeout: 2 * time.Second, Timeout: 10 * time.Second})

	op, err := store.Create("https://example.com", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/grabs/"+op.ID, nil)
	w := httptest.NewRecorder()

	s.mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	var got operation.Operation
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, op.ID, got.ID)
}
