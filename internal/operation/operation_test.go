package operation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore()

	op, err := s.Create("https://example.com", []string{"scroll", "click"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, op.Status)
	assert.Equal(t, []string{"scroll", "click"}, op.Behaviors)

	require.NoError(t, s.MarkRunning(op.ID))
	got, err := s.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)

	artefacts := []Artefact{{Name: "jsonl", SignedURL: "file:///tmp/a.jsonl"}}
	require.NoError(t, s.MarkComplete(op.ID, 5*time.Second, false, []string{"scroll"}, artefacts))
	got, err = s.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, artefacts, got.Artefacts)
	assert.False(t, got.TimedOut)
	assert.Equal(t, []string{"scroll"}, got.Behaviors, "MarkComplete must overwrite with the behaviors that actually ran")
}

func TestMemoryStoreMarkFailedRecordsError(t *testing.T) {
	s := NewMemoryStore()
	op, err := s.Create("https://example.com", nil)
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed(op.ID, errors.New("navigate failed"), false))
	got, err := s.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "navigate failed", got.Error)
	assert.False(t, got.Crashed)
}

func TestMemoryStoreMarkFailedRecordsCrashed(t *testing.T) {
	s := NewMemoryStore()
	op, err := s.Create("https://example.com", nil)
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed(op.ID, errors.New("devtools: target crashed"), true))
	got, err := s.Get(op.ID)
	require.NoError(t, err)
	assert.True(t, got.Crashed)
}

func TestMemoryStoreGetUnknownIDErrors(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get("does-not-exist")
	assert.Error(t, err)
}

func TestMemoryStoreGetReturnsIndependentCopy(t *testing.T) {
	s := NewMemoryStore()
	op, err := s.Create("https://example.com", nil)
	require.NoError(t, err)

	got, err := s.Get(op.ID)
	require.NoError(t, err)
	got.Status = StatusFailed

	reread, err := s.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, reread.Status, "mutating a Get() result must not affect store state")
}
