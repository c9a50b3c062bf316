package warcsink

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

func TestJSONLHandlerWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	h := NewJSONLHandler(&buf)

	events := []model.Event{
		&model.ControllerStart{Software: "grab-engine", Tool: "grab-single"},
		&model.PairEvent{Pair: &model.RequestResponsePair{
			ID:  "1",
			URL: "https://example.com/",
			Request: model.Request{
				Method: "GET",
				URL:    "https://example.com/",
				Headers: model.Headers{
					{Name: "Accept", Value: "text/html"},
					{Name: "Transfer-Encoding", Value: "chunked"},
				},
				WallTime: time.Unix(0, 0).UTC(),
			},
			Response: &model.Response{
				Status:     200,
				StatusText: "OK",
				Body:       &model.Body{Bytes: []byte("hello"), Base64: false},
			},
		}},
		&model.PageIdle{At: time.Unix(1, 0).UTC()},
	}

	for _, ev := range events {
		require.NoError(t, h.Push(ev), "Push(%T)", ev)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(events))

	var pair record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &pair))
	assert.Equal(t, "pair", pair.Type)
	if assert.NotNil(t, pair.Response) {
		assert.Equal(t, 200, pair.Response.Status)
	}
	for _, hd := range pair.Request.Headers {
		assert.Falsef(t, strings.EqualFold(hd.Name, "Transfer-Encoding"), "hop-by-hop header leaked into JSONL output")
	}

	assert.NoError(t, h.Close())
}

func TestMultiHandlerFansOutToEveryHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	m := NewMultiHandler(NewJSONLHandler(&buf1), NewJSONLHandler(&buf2))

	ev := &model.PageIdle{At: time.Unix(0, 0).UTC()}
	require.NoError(t, m.Push(ev))
	assert.NotZero(t, buf1.Len())
	assert.NotZero(t, buf2.Len())
	assert.NoError(t, m.Close())
}

func TestJSONLHandlerHandlesCrashedEvent(t *testing.T) {
	var buf bytes.Buffer
	h := NewJSONLHandler(&buf)

	require.NoError(t, h.Push(&model.CrashedEvent{Err: errors.New("target crashed")}))

	var rec record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "crashed", rec.Type)
}
