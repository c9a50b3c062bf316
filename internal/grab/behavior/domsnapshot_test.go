package behavior

import (
	"context"
	"strings"
	"testing"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

func TestStripScriptsAndHandlers(t *testing.T) {
	doc := `<html><body onload="doThing()"><script>alert(1)</script><div onclick="x()">hi</div><noscript>fallback</noscript></body></html>`
	got, err := stripScriptsAndHandlers(doc)
	if err != nil {
		t.Fatalf("stripScriptsAndHandlers() error = %v", err)
	}

	if strings.Contains(got, "<script") {
		t.Errorf("script tag survived stripping: %s", got)
	}
	if strings.Contains(got, "<noscript") {
		t.Errorf("noscript tag survived stripping: %s", got)
	}
	if strings.Contains(got, "onload") || strings.Contains(got, "onclick") {
		t.Errorf("event attribute survived stripping: %s", got)
	}
	if !strings.Contains(got, "hi") {
		t.Errorf("non-script content was dropped: %s", got)
	}
}

func TestStripFragment(t *testing.T) {
	if got := stripFragment("https://example.com/page#section"); got != "https://example.com/page" {
		t.Errorf("stripFragment() = %q", got)
	}
	if got := stripFragment("https://example.com/page"); got != "https://example.com/page" {
		t.Errorf("stripFragment() = %q", got)
	}
}

func TestDomSnapshotOnFinishEmitsOneEventPerHTTPFrame(t *testing.T) {
	fe := &fakeEval{
		frames: map[string]string{
			"root":  "https://example.com/",
			"ad":    "https://ads.example.com/frame",
			"blank": "about:blank",
		},
		frameHTML: map[string]string{
			"root": "<html><body>top</body></html>",
			"ad":   "<html><body><script>track()</script>ad</body></html>",
		},
	}
	d := NewDomSnapshot(fe)

	ch, err := d.OnFinish(context.Background())
	if err != nil {
		t.Fatalf("OnFinish() error = %v", err)
	}
	events := drain(ch)

	if len(events) != 2 {
		t.Fatalf("OnFinish() produced %d events, want 2 (about:blank frame must be skipped)", len(events))
	}

	seen := make(map[string]bool)
	for _, ev := range events {
		snap, ok := ev.(*model.DomSnapshotEvent)
		if !ok {
			t.Fatalf("event is not a DomSnapshotEvent: %#v", ev)
		}
		if seen[snap.URL] {
			t.Fatalf("duplicate DomSnapshotEvent for URL %q", snap.URL)
		}
		seen[snap.URL] = true
		if strings.Contains(string(snap.Document), "<script") {
			t.Errorf("frame %q document still contains a script tag: %s", snap.URL, snap.Document)
		}
	}
	if !seen["https://example.com/"] || !seen["https://ads.example.com/frame"] {
		t.Fatalf("unexpected event URLs: %v", seen)
	}
}
