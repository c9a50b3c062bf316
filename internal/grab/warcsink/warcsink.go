// Package warcsink defines the consumer contract for grab events: the
// Handler interface the controller pushes every model.Event through,
// plus a reference JSONLHandler implementation.
//
// Byte-level WARC/1.1 serialization is out of scope (SPEC_FULL.md §1
// Out of scope): a production deployment wires its own Handler backed by
// a WARC writer. What lives here is the seam itself, grounded on
// crocoite's warc.py WarcHandler, whose push(item) dispatches on the
// item's Python type the same way JSONLHandler.Push switches on the
// concrete model.Event type, and on the teacher's har.go buildEntry,
// whose header/timing field mapping is the model this package's
// header folding follows.
package warcsink

import (
	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// Handler receives every event a grab controller produces. It is
// controller.Handler's Push method plus Close; declared here so this package
// has no dependency on the controller package, matching the teacher's
// layering where capture and its consumers (internal/storage) do not
// import each other.
type Handler interface {
	Push(ev model.Event) error
	// Close flushes and releases any resources the handler holds (an
	// open file, a WARC writer). Handlers that hold nothing return nil.
	Close() error
}

// MultiHandler fans every event out to several handlers in order,
// mirrored on crocoite's controller.py pattern of registering more
// than one EventHandler per grab (e.g. WARC output plus a stats
// logger). The first error from Push is returned, but every handler
// still receives the event.
type MultiHandler struct {
	handlers []Handler
}

// NewMultiHandler builds a MultiHandler over hs.
func NewMultiHandler(hs ...Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Push(ev model.Event) error {
	var first error
	for _, h := range m.handlers {
		if err := h.Push(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiHandler) Close() error {
	var first error
	for _, h := range m.handlers {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
