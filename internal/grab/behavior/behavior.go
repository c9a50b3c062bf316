// Package behavior implements the Behavior Framework (C5): pluggable
// units that inject scripts, drive the page, and emit synthetic
// archival artifacts (screenshots, DOM snapshots, extracted links).
//
// Grounded directly on crocoite's behavior.py, since the teacher has no
// behavior framework of its own — it only takes lifecycle-triggered
// screenshots. Each behavior's OnLoad/OnStop/OnFinish channel stands in
// for Python's async generators (SPEC_FULL.md §9 design note).
package behavior

import (
	"context"
	"net/url"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// Behavior is implemented by every pluggable unit. A behavior with no
// hook for a given phase returns a closed, empty channel, mirrored on
// crocoite's base Behavior class's no-op async generators.
type Behavior interface {
	Name() string
	// Matches reports whether this behavior applies to url. Defaults
	// to true for every behavior except Click, which restricts itself
	// to hosts present in its site configuration.
	Matches(url string) bool
	OnLoad(ctx context.Context) (<-chan model.Event, error)
	OnStop(ctx context.Context) (<-chan model.Event, error)
	OnFinish(ctx context.Context) (<-chan model.Event, error)
}

// closedEmpty returns a closed channel with no events, the standard
// no-op hook implementation.
func closedEmpty() <-chan model.Event {
	ch := make(chan model.Event)
	close(ch)
	return ch
}

// base provides the no-op hook implementations and default Matches,
// embedded by every behavior so each only implements the phases it
// actually uses, mirrored on crocoite's Behavior base class.
type base struct{}

func (base) Matches(string) bool { return true }

func (base) OnLoad(context.Context) (<-chan model.Event, error)   { return closedEmpty(), nil }
func (base) OnStop(context.Context) (<-chan model.Event, error)   { return closedEmpty(), nil }
func (base) OnFinish(context.Context) (<-chan model.Event, error) { return closedEmpty(), nil }

// Standard returns the six standard behaviors in crocoite's canonical
// instantiation order — page-driving behaviors first, then behaviors
// that observe/modify page-rendering state last, per behavior.py's
// comment "order matters, move those modifying the page towards the
// end of available". grabURL binds Click to the grab's own host so it
// never injects another site's selectors.
func Standard(tabEval Evaluator, grabURL string, clickConfig []ClickConfig) []Behavior {
	var host string
	if u, err := url.Parse(grabURL); err == nil {
		host = u.Host
	}
	return []Behavior{
		NewScroll(tabEval),
		NewClick(tabEval, host, clickConfig...),
		NewExtractLinks(tabEval),
		NewScreenshot(tabEval),
		NewEmulateScreenMetrics(tabEval),
		NewDomSnapshot(tabEval),
	}
}

// Evaluator is the narrow subset of devtools.Tab a behavior needs:
// evaluating an expression/function in the page, cycling viewport
// emulation, and capturing screenshots/serialized HTML. Kept as an
// interface so behaviors can be unit tested against a fake rather than
// a live browser.
type Evaluator interface {
	EvaluateScript(ctx context.Context, expr string, out any) error
	CallFunctionOn(ctx context.Context, objectID, fn string, args []any, out any) error
	SetViewport(ctx context.Context, width, height int64, deviceScale float64, mobile bool) error
	ClearViewportOverride(ctx context.Context) error
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	OuterHTML(ctx context.Context) (string, error)
	FrameURL(ctx context.Context) (string, error)
	ListFrames(ctx context.Context) (map[string]string, error)
	FrameOuterHTML(ctx context.Context, frameID string) (string, error)
}
