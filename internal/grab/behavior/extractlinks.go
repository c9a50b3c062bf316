package behavior

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

//go:embed data/extract-links.js
var extractLinksScript []byte

// ExtractLinks evaluates extract-links.js to collect every anchor href
// on the page, deduplicates and normalizes them, and emits one
// ExtractLinksEvent, mirrored on crocoite's behavior.py ExtractLinks.
type ExtractLinks struct {
	base
	eval Evaluator
}

// NewExtractLinks constructs the ExtractLinks behavior.
func NewExtractLinks(eval Evaluator) *ExtractLinks {
	return &ExtractLinks{eval: eval}
}

func (e *ExtractLinks) Name() string { return "extractLinks" }

// OnFinish runs last among the page-driving behaviors so it sees links
// added by Scroll/Click, mirrored on crocoite's ordering comment in
// behavior.py.
func (e *ExtractLinks) OnFinish(ctx context.Context) (<-chan model.Event, error) {
	var raw []string
	if err := e.eval.EvaluateScript(ctx, string(extractLinksScript), &raw); err != nil {
		return nil, fmt.Errorf("behavior extractLinks: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	links := make([]string, 0, len(raw))
	for _, l := range raw {
		// mapOrIgnore: a link that fails to parse is silently skipped,
		// mirrored on crocoite's behavior.py mapOrIgnore helper.
		u, err := url.Parse(l)
		if err != nil {
			continue
		}
		norm := u.String()
		if seen[norm] {
			continue
		}
		seen[norm] = true
		links = append(links, norm)
	}

	out := make(chan model.Event, 1)
	out <- &model.ExtractLinksEvent{Links: links}
	close(out)
	return out, nil
}
