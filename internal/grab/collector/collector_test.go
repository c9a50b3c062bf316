package collector

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

func TestSchemeOf(t *testing.T) {
	cases := map[string]string{
		"https://example.com/a": "https",
		"http://example.com":    "http",
		"data:text/plain,abc":   "data",
		"/relative/path":        "",
		"blob:uuid":             "blob",
	}
	for url, want := range cases {
		if got := schemeOf(url); got != want {
			t.Errorf("schemeOf(%q) = %q, want %q", url, got, want)
		}
	}
}

func newTestCollector() *Collector {
	return &Collector{
		loading: make(map[cdp.FrameID]bool),
		events:  make(chan model.Event, 8),
	}
}

func TestSetLoadingEmitsIdleOnlyOnTransition(t *testing.T) {
	c := newTestCollector()
	c.setLoading("frame-1", true)

	select {
	case <-c.events:
		t.Fatal("did not expect a PageIdle event while a frame is loading")
	default:
	}

	c.setLoading("frame-1", false)
	select {
	case ev := <-c.events:
		if _, ok := ev.(*model.PageIdle); !ok {
			t.Fatalf("expected *model.PageIdle, got %T", ev)
		}
	default:
		t.Fatal("expected a PageIdle event once the last loading frame stops")
	}

	if !c.IsIdle() {
		t.Fatal("IsIdle() = false after all frames stopped loading")
	}
}
