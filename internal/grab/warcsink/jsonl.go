package warcsink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// record is the on-disk shape of one JSONLHandler line: a discriminated
// union keyed by Type, mirrored on crocoite's warc.py record routing,
// where every item pushed to the handler becomes one or more WARC
// records tagged by record type (response, resource, metadata,
// warcinfo). Here every model.Event becomes exactly one line.
type record struct {
	Type string `json:"type"`
	At   string `json:"at,omitempty"`

	// pair
	ID           string       `json:"id,omitempty"`
	URL          string       `json:"url,omitempty"`
	ResourceType string       `json:"resourceType,omitempty"`
	Truncated    bool         `json:"truncated,omitempty"`
	Request      *requestDoc  `json:"request,omitempty"`
	Response     *responseDoc `json:"response,omitempty"`

	// script / dom snapshot / screenshot
	Path     string `json:"path,omitempty"`
	Document string `json:"document,omitempty"`
	Viewport string `json:"viewport,omitempty"`
	YOff     int    `json:"yOffset,omitempty"`
	Index    int    `json:"index,omitempty"`
	Data     string `json:"data,omitempty"` // base64

	// extract links
	Links []string `json:"links,omitempty"`

	// log
	Level  string `json:"level,omitempty"`
	Text   string `json:"text,omitempty"`
	Source string `json:"source,omitempty"`

	// controller start
	Software   string          `json:"software,omitempty"`
	Browser    *browserDoc     `json:"browser,omitempty"`
	Tool       string          `json:"tool,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

type headerDoc struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type bodyDoc struct {
	Base64 bool   `json:"base64"`
	Data   string `json:"data"`
}

type requestDoc struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	Headers     []headerDoc `json:"headers"`
	Body        *bodyDoc    `json:"body,omitempty"`
	HasPostData bool        `json:"hasPostData,omitempty"`
	WallTime    string      `json:"wallTime,omitempty"`
}

type responseDoc struct {
	Status        int         `json:"status"`
	StatusText    string      `json:"statusText"`
	Headers       []headerDoc `json:"headers"`
	Body          *bodyDoc    `json:"body,omitempty"`
	MimeType      string      `json:"mimeType,omitempty"`
	BytesReceived int64       `json:"bytesReceived,omitempty"`
	RemoteIP      string      `json:"remoteIP,omitempty"`
	Protocol      string      `json:"protocol,omitempty"`
	FromDiskCache bool        `json:"fromDiskCache,omitempty"`
}

type browserDoc struct {
	Product   string `json:"product,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Viewport  string `json:"viewport,omitempty"`
}

// JSONLHandler writes one newline-delimited JSON record per event. It
// is the reference Handler this module ships in lieu of a byte-level
// WARC writer (SPEC_FULL.md §6); a deployment wanting real WARC output
// replaces it with its own Handler against the same interface.
type JSONLHandler struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewJSONLHandler wraps w; closing the handler does not close w, since
// callers (e.g. os.File, a storage-layer streaming writer) own their
// own lifecycle — mirrored on the teacher's storage.Uploader taking an
// io.Reader rather than owning a file handle.
func NewJSONLHandler(w io.Writer) *JSONLHandler {
	return &JSONLHandler{w: w, enc: json.NewEncoder(w)}
}

func (h *JSONLHandler) Push(ev model.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, err := toRecord(ev)
	if err != nil {
		return err
	}
	return h.enc.Encode(rec)
}

// Close is a no-op: JSONLHandler never owns its writer.
func (h *JSONLHandler) Close() error { return nil }

func toRecord(ev model.Event) (record, error) {
	switch e := ev.(type) {
	case *model.PairEvent:
		return pairRecord(e), nil
	case *model.ScriptEvent:
		return record{
			Type: "script",
			Path: e.Path,
			Data: base64.StdEncoding.EncodeToString(e.Data),
		}, nil
	case *model.ScreenshotEvent:
		return record{
			Type:  "screenshot",
			URL:   e.URL,
			YOff:  e.YOff,
			Index: e.Index,
			Data:  base64.StdEncoding.EncodeToString(e.Data),
		}, nil
	case *model.DomSnapshotEvent:
		return record{
			Type:     "domSnapshot",
			URL:      e.URL,
			Document: base64.StdEncoding.EncodeToString(e.Document),
			Viewport: e.Viewport,
		}, nil
	case *model.ExtractLinksEvent:
		return record{Type: "extractLinks", Links: e.Links}, nil
	case *model.FrameNavigated:
		return record{Type: "frameNavigated", URL: e.URL}, nil
	case *model.PageIdle:
		return record{Type: "pageIdle", At: e.At.Format(time.RFC3339Nano)}, nil
	case *model.LogEvent:
		return record{
			Type:   "log",
			Level:  e.Level,
			Text:   e.Text,
			Source: e.Source,
			At:     e.At.Format(time.RFC3339Nano),
		}, nil
	case *model.CrashedEvent:
		text := ""
		if e.Err != nil {
			text = e.Err.Error()
		}
		return record{Type: "crashed", Text: text}, nil
	case *model.ControllerStart:
		return record{
			Type:     "controllerStart",
			Software: e.Software,
			Browser: &browserDoc{
				Product:   e.Browser.Product,
				UserAgent: e.Browser.UserAgent,
				Viewport:  e.Browser.Viewport,
			},
			Tool:       e.Tool,
			Parameters: e.Parameters,
			Extra:      e.Extra,
		}, nil
	default:
		return record{}, fmt.Errorf("warcsink: unhandled event type %T", ev)
	}
}

func pairRecord(e *model.PairEvent) record {
	p := e.Pair
	rec := record{
		Type:         "pair",
		ID:           p.ID,
		URL:          p.URL,
		ResourceType: string(p.ResourceType),
		Truncated:    p.Truncated,
		Request: &requestDoc{
			Method:      p.Request.Method,
			URL:         p.Request.URL,
			Headers:     headerDocs(p.Request.Headers),
			Body:        bodyDocFrom(p.Request.Body),
			HasPostData: p.Request.HasPostData,
			WallTime:    p.Request.WallTime.Format(time.RFC3339Nano),
		},
	}
	if p.Response != nil {
		rec.Response = &responseDoc{
			Status:        p.Response.Status,
			StatusText:    p.Response.StatusText,
			Headers:       headerDocs(p.Response.Headers),
			Body:          bodyDocFrom(p.Response.Body),
			MimeType:      p.Response.MimeType,
			BytesReceived: p.Response.BytesReceived,
			RemoteIP:      p.Response.RemoteIP,
			Protocol:      p.Response.Protocol,
			FromDiskCache: p.Response.FromDiskCache,
		}
	}
	return rec
}

// headerDocs folds a model.Headers list into the wire representation,
// dropping hop-by-hop fields per the WithoutHopByHop invariant
// documented on model.Headers.
func headerDocs(h model.Headers) []headerDoc {
	h = h.WithoutHopByHop()
	out := make([]headerDoc, 0, len(h))
	for _, kv := range h {
		out = append(out, headerDoc{Name: kv.Name, Value: kv.Value})
	}
	return out
}

func bodyDocFrom(b *model.Body) *bodyDoc {
	if b == nil {
		return nil
	}
	if b.Base64 {
		return &bodyDoc{Base64: true, Data: base64.StdEncoding.EncodeToString(b.Bytes)}
	}
	return &bodyDoc{Base64: false, Data: string(b.Bytes)}
}
