package behavior

import (
	"context"
	"testing"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

func TestExtractLinksDedupesAndSkipsUnparseable(t *testing.T) {
	eval := &fakeEval{links: []string{
		"https://example.com/a",
		"https://example.com/a",
		"https://example.com/b",
		"://not-a-valid-url",
	}}
	e := NewExtractLinks(eval)

	ch, err := e.OnFinish(context.Background())
	if err != nil {
		t.Fatalf("OnFinish() error = %v", err)
	}

	events := drain(ch)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 ExtractLinksEvent", len(events))
	}
	links := events[0].(*model.ExtractLinksEvent).Links
	if len(links) != 2 {
		t.Fatalf("Links = %v, want 2 deduplicated entries", links)
	}
}
