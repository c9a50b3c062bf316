package behavior

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

//go:embed data/scroll.js
var scrollScript []byte

// Scroll periodically scrolls the page to trigger lazy-loaded content,
// mirrored on crocoite's behavior.py Scroll (a JsOnload behavior whose
// script is scroll.js).
//
// The injected script exposes its running instance on
// window.__grabScroll so OnStop can halt it without this package
// having to track a CDP remote-object id across phases.
type Scroll struct {
	base
	eval Evaluator
}

// NewScroll constructs the Scroll behavior.
func NewScroll(eval Evaluator) *Scroll {
	return &Scroll{eval: eval}
}

func (s *Scroll) Name() string { return "scroll" }

// OnLoad installs and starts the scroll driver, mirrored on crocoite's
// JsOnload.onload.
func (s *Scroll) OnLoad(ctx context.Context) (<-chan model.Event, error) {
	expr := "window.__grabScroll = new (" + string(scrollScript) + ")();"
	if err := s.eval.EvaluateScript(ctx, expr, nil); err != nil {
		return nil, fmt.Errorf("behavior scroll: load script: %w", err)
	}
	out := make(chan model.Event, 1)
	out <- &model.ScriptEvent{Path: "scroll.js", Data: scrollScript}
	close(out)
	return out, nil
}

// OnStop halts the scroll driver, mirrored on JsOnload.onstop calling
// .stop() on the instantiated context object.
func (s *Scroll) OnStop(ctx context.Context) (<-chan model.Event, error) {
	_ = s.eval.EvaluateScript(ctx, "window.__grabScroll && window.__grabScroll.stop();", nil)
	return closedEmpty(), nil
}
