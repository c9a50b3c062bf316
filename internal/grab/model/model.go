// Package model defines the data types exchanged between the tab
// collector, the grab controller and its handlers: requests, responses,
// correlated pairs and the tagged body-byte representation used for
// both.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Body is a tagged byte payload. Bytes always holds the raw, decoded
// payload. Base64 is true when that payload is opaque binary data
// (Base64Body), which serializers encode as base64; false when Bytes is
// valid UTF-8 text (UnicodeBody).
type Body struct {
	Bytes  []byte
	Base64 bool
}

// Header is a single name/value pair. Headers preserve insertion order;
// name comparisons are case-insensitive per RFC 7230.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered, possibly-multi-valued header list.
type Headers []Header

// Get returns the first value for name, case-insensitively, and
// whether it was present.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, case-insensitively, in order.
func (h Headers) Values(name string) []string {
	var vs []string
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			vs = append(vs, kv.Value)
		}
	}
	return vs
}

// hopByHop lists headers that describe the wire transfer rather than
// the resource itself; WARC records the decoded resource, so these are
// dropped before a pair is handed to handlers (invariant: stored headers
// never include a hop-by-hop field).
var hopByHop = map[string]bool{
	"transfer-encoding": true,
	"content-encoding":  true,
}

// WithoutHopByHop returns a copy of h with hop-by-hop headers removed.
func (h Headers) WithoutHopByHop() Headers {
	out := make(Headers, 0, len(h))
	for _, kv := range h {
		if hopByHop[strings.ToLower(kv.Name)] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Fold splits any header value containing embedded newlines into N
// separate entries for the same name, preserving order (SPEC_FULL.md
// invariant 4: a repeated source header that Chrome folds into one
// value with newline separators must be unfolded before a pair reaches
// handlers, so no emitted header value ever contains a newline).
func (h Headers) Fold() Headers {
	out := make(Headers, 0, len(h))
	for _, kv := range h {
		if !strings.Contains(kv.Value, "\n") {
			out = append(out, kv)
			continue
		}
		for _, line := range strings.Split(kv.Value, "\n") {
			out = append(out, Header{Name: kv.Name, Value: line})
		}
	}
	return out
}

// FromMap folds a CDP-style headers object (map[string]any, values
// either a scalar string or a []string of repeated header lines) into
// an ordered Headers list, splitting any newline-joined scalar value
// into separate entries via Fold. Key order is not guaranteed by the
// source map, so callers that care about byte-stable ordering should
// sort beforehand; folding itself never reorders the values within one
// name.
func FromMap(m map[string]any) Headers {
	h := make(Headers, 0, len(m))
	for name, v := range m {
		switch vv := v.(type) {
		case string:
			h = append(h, Header{Name: name, Value: vv})
		case []string:
			for _, s := range vv {
				h = append(h, Header{Name: name, Value: s})
			}
		case []any:
			for _, s := range vv {
				if str, ok := s.(string); ok {
					h = append(h, Header{Name: name, Value: str})
				}
			}
		}
	}
	return h.Fold()
}

// ResourceType labels the kind of resource a pair represents, mirrored
// from Chrome's Network.ResourceType enum.
type ResourceType string

const (
	ResourceDocument   ResourceType = "Document"
	ResourceStylesheet ResourceType = "Stylesheet"
	ResourceImage      ResourceType = "Image"
	ResourceScript     ResourceType = "Script"
	ResourceXHR        ResourceType = "XHR"
	ResourceFetch      ResourceType = "Fetch"
	ResourceWebSocket  ResourceType = "WebSocket"
	ResourceOther      ResourceType = "Other"
)

// Request is the request half of a pair.
type Request struct {
	Method      string
	URL         string
	Headers     Headers
	Body        *Body
	Initiator   json.RawMessage
	WallTime    time.Time
	HasPostData bool
}

// Response is the response half of a pair. A nil *Response on a Pair
// means the load never completed (network error, cancellation).
type Response struct {
	Status        int
	StatusText    string
	Headers       Headers
	Body          *Body
	MimeType      string
	BytesReceived int64
	RemoteIP      string
	Protocol      string
	FromDiskCache bool
	ConnectionID  float64
	WallTime      time.Time
}

// RequestResponsePair is the unit of capture: one browser-observed
// request and, once it resolves, its response.
//
// Invariant: ID is stable for the lifetime of one request as tracked by
// Chrome; on a redirect, the original pair is completed (Truncated=true,
// synthetic 3xx Response filled from the redirectResponse payload) and
// handed to handlers before a new pair reusing the same browser ID is
// opened for the location the redirect points to.
type RequestResponsePair struct {
	ID           string
	URL          string
	Request      Request
	Response     *Response
	ResourceType ResourceType
	Truncated    bool
}

// Event is implemented by every value the controller pushes to
// handlers: RequestResponsePair (via *PairEvent), and the behavior
// framework's synthetic artifacts.
type Event interface {
	isEvent()
}

// PairEvent wraps a completed RequestResponsePair for delivery to
// handlers.
type PairEvent struct {
	Pair *RequestResponsePair
}

func (*PairEvent) isEvent() {}

// ScriptEvent records a behavior's injected script payload, mirrored on
// crocoite's warc.py metadata "script" record.
type ScriptEvent struct {
	Path string
	Data []byte
}

func (*ScriptEvent) isEvent() {}

// ScreenshotEvent is one vertical band of a full-page screenshot.
type ScreenshotEvent struct {
	URL    string
	YOff   int
	Data   []byte // PNG bytes
	Index  int
}

func (*ScreenshotEvent) isEvent() {}

// DomSnapshotEvent is one frame's serialized, script-stripped document.
type DomSnapshotEvent struct {
	URL      string
	Document []byte
	Viewport string
}

func (*DomSnapshotEvent) isEvent() {}

// ExtractLinksEvent carries the deduplicated set of hyperlinks found on
// the page by the ExtractLinks behavior.
type ExtractLinksEvent struct {
	Links []string
}

func (*ExtractLinksEvent) isEvent() {}

// FrameNavigated fires whenever the root frame navigates, including the
// initial navigation; it is the trigger for behavior onload re-injection.
type FrameNavigated struct {
	URL string
}

func (*FrameNavigated) isEvent() {}

// PageIdle fires whenever the set of frames still loading becomes empty.
type PageIdle struct {
	At time.Time
}

func (*PageIdle) isEvent() {}

// CrashedEvent is pushed as a sentinel once the tab has crashed or the
// DevTools connection has been lost, mirrored on crocoite's devtools.py
// Tab.Crashed propagation through the event queue. No further events
// follow it.
type CrashedEvent struct {
	Err error
}

func (*CrashedEvent) isEvent() {}

// LogEvent mirrors a Log.entryAdded browser log line.
type LogEvent struct {
	Level   string
	Text    string
	Source  string
	At      time.Time
}

func (*LogEvent) isEvent() {}

// ControllerStart is pushed exactly once, before navigation begins,
// carrying provenance for the warcinfo record.
type ControllerStart struct {
	Software   string
	Browser    BrowserInfo
	Tool       string
	Parameters map[string]any
	Extra      json.RawMessage
}

func (*ControllerStart) isEvent() {}

// BrowserInfo describes the driven browser, used both for the
// ControllerStart provenance payload and operational logging.
type BrowserInfo struct {
	Product   string
	UserAgent string
	Viewport  string
}
