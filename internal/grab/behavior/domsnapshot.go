package behavior

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// eventAttributes is the canonical set of on* global event handler
// attributes stripped from every captured element, mirrored on
// crocoite's html.py eventAttributes list (the full HTML5
// onabort..onwaiting set).
var eventAttributes = map[string]bool{
	"onabort": true, "onautocomplete": true, "onautocompleteerror": true,
	"onblur": true, "oncancel": true, "oncanplay": true, "oncanplaythrough": true,
	"onchange": true, "onclick": true, "onclose": true, "oncontextmenu": true,
	"oncuechange": true, "ondblclick": true, "ondrag": true, "ondragend": true,
	"ondragenter": true, "ondragexit": true, "ondragleave": true, "ondragover": true,
	"ondragstart": true, "ondrop": true, "ondurationchange": true, "onemptied": true,
	"onended": true, "onerror": true, "onfocus": true, "oninput": true,
	"oninvalid": true, "onkeydown": true, "onkeypress": true, "onkeyup": true,
	"onload": true, "onloadeddata": true, "onloadedmetadata": true,
	"onloadstart": true, "onmousedown": true, "onmouseenter": true,
	"onmouseleave": true, "onmousemove": true, "onmouseout": true,
	"onmouseover": true, "onmouseup": true, "onmousewheel": true, "onpause": true,
	"onplay": true, "onplaying": true, "onprogress": true, "onratechange": true,
	"onreset": true, "onresize": true, "onscroll": true, "onseeked": true,
	"onseeking": true, "onselect": true, "onshow": true, "onsort": true,
	"onstalled": true, "onsubmit": true, "onsuspend": true, "ontimeupdate": true,
	"ontoggle": true, "onvolumechange": true, "onwaiting": true,
}

// stripScriptsAndHandlers parses doc as a full HTML document, removes
// every <script>/<noscript> element and on* attribute from the tree,
// and re-serializes it, mirrored on EdgeComet's
// htmlprocessor.domDocument.CleanScripts (golang.org/x/net/html parse,
// tree walk, RemoveChild) rather than crocoite's regex-based
// StripTagFilter/StripAttributeFilter, since a real parse tree is
// robust to malformed or nested markup a regex is not.
func stripScriptsAndHandlers(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("behavior domSnapshot: parse document: %w", err)
	}

	var toRemove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "noscript") {
			toRemove = append(toRemove, n)
			return
		}
		if n.Type == html.ElementNode && len(n.Attr) > 0 {
			kept := n.Attr[:0]
			for _, a := range n.Attr {
				if !eventAttributes[strings.ToLower(a.Key)] {
					kept = append(kept, a)
				}
			}
			n.Attr = kept
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("behavior domSnapshot: render document: %w", err)
	}
	return buf.String(), nil
}

// DomSnapshot serializes every http(s) frame of the rendered page with
// scripts and event handlers stripped, mirrored on crocoite's
// behavior.py DomSnapshot, which walks Chrome's DOM tree via
// ChromeTreeWalker and splits capture at iframe boundaries so each
// frame becomes an independent WARC resource record.
type DomSnapshot struct {
	base
	eval Evaluator
}

// NewDomSnapshot constructs the DomSnapshot behavior.
func NewDomSnapshot(eval Evaluator) *DomSnapshot {
	return &DomSnapshot{eval: eval}
}

func (d *DomSnapshot) Name() string { return "domSnapshot" }

// OnFinish walks the tab's frame tree (Evaluator.ListFrames) and emits
// one stripped DomSnapshotEvent per http(s) frame, mirrored on
// crocoite's DomSnapshot.onfinish visiting every frame of the page.
func (d *DomSnapshot) OnFinish(ctx context.Context) (<-chan model.Event, error) {
	frames, err := d.eval.ListFrames(ctx)
	if err != nil {
		return nil, fmt.Errorf("behavior domSnapshot: list frames: %w", err)
	}

	var viewport string
	if verr := d.eval.EvaluateScript(ctx, "window.innerWidth+'x'+window.innerHeight", &viewport); verr != nil {
		viewport = ""
	}

	out := make(chan model.Event, len(frames))
	for frameID, frameURL := range frames {
		if !isHTTPURL(frameURL) {
			continue
		}
		raw, err := d.eval.FrameOuterHTML(ctx, frameID)
		if err != nil {
			return nil, fmt.Errorf("behavior domSnapshot: capture frame %s: %w", frameID, err)
		}
		stripped, err := stripScriptsAndHandlers(raw)
		if err != nil {
			return nil, err
		}
		out <- &model.DomSnapshotEvent{
			URL:      stripFragment(frameURL),
			Document: []byte(stripped),
			Viewport: viewport,
		}
	}
	close(out)
	return out, nil
}

func isHTTPURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func stripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}
