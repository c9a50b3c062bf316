package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersGet(t *testing.T) {
	h := Headers{{Name: "Content-Type", Value: "text/html"}}
	v, ok := h.Get("content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/html", v)

	_, ok = h.Get("missing")
	assert.False(t, ok)
}

func TestHeadersWithoutHopByHop(t *testing.T) {
	h := Headers{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Transfer-Encoding", Value: "chunked"},
		{Name: "Content-Encoding", Value: "gzip"},
	}
	got := h.WithoutHopByHop()
	if assert.Len(t, got, 1) {
		assert.Equal(t, "Content-Type", got[0].Name)
	}
}

func TestFromMap(t *testing.T) {
	m := map[string]any{
		"Set-Cookie": []string{"a=1", "b=2"},
	}
	h := FromMap(m)
	assert.Len(t, h.Values("set-cookie"), 2)
}

func TestHeadersFoldSplitsEmbeddedNewlines(t *testing.T) {
	h := Headers{{Name: "Set-Cookie", Value: "a=1\nb=2\nc=3"}}
	got := h.Fold()
	if assert.Len(t, got, 3) {
		assert.Equal(t, "a=1", got[0].Value)
		assert.Equal(t, "b=2", got[1].Value)
		assert.Equal(t, "c=3", got[2].Value)
		for _, kv := range got {
			assert.NotContains(t, kv.Value, "\n")
		}
	}
}

func TestFromMapFoldsNewlineJoinedScalarValue(t *testing.T) {
	m := map[string]any{"Set-Cookie": "a=1\nb=2"}
	got := FromMap(m)
	assert.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"a=1", "b=2"}, got.Values("set-cookie"))
}
