package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

func unmarshalJSON(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ErrCrashed is returned by Tab operations once the target has crashed
// (Inspector.targetCrashed) or the underlying connection has died.
// Mirrored on crocoite's devtools.py Tab.Crashed.
var ErrCrashed = errors.New("devtools: target crashed")

// ErrNavigate is wrapped around navigation failures that are not a mere
// timeout (DNS failure, invalid URL, refused connection).
var ErrNavigate = errors.New("devtools: navigation failed")

// MethodNotFoundError mirrors CDP error code -32601.
type MethodNotFoundError struct{ Method string }

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("devtools: method not found: %s", e.Method)
}

// InvalidParameterError mirrors CDP error code -32602.
type InvalidParameterError struct {
	Method string
	Detail string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("devtools: invalid parameter calling %s: %s", e.Method, e.Detail)
}

// Tab wraps one chromedp tab context and exposes the narrow surface
// the collector, controller and behaviors need: typed action
// execution via chromedp/cdproto, raw event listening, and a small set
// of behavior helpers (viewport emulation, screenshot capture, DOM
// serialization) built on chromedp's own high-level actions, the same
// ones the teacher's capture.Capture already relies on
// (EmulateViewport, CaptureScreenshot).
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	crashed bool
}

// NewTab opens a new tab under the given allocator context.
func NewTab(allocatorCtx context.Context) *Tab {
	ctx, cancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(string, ...any) {}),
		chromedp.WithErrorf(func(string, ...any) {}),
	)
	return &Tab{ctx: ctx, cancel: cancel}
}

// Context returns the tab's chromedp context, for use with
// chromedp.Run and chromedp actions.
func (t *Tab) Context() context.Context { return t.ctx }

// Close tears down the tab.
func (t *Tab) Close() { t.cancel() }

// Listen registers fn to receive every CDP event delivered to this
// tab, mirrored on chromedp.ListenTarget as used by the teacher's
// Capture().
func (t *Tab) Listen(fn func(ev any)) {
	chromedp.ListenTarget(t.ctx, fn)
}

// MarkCrashed flags the tab as crashed; subsequent Run attempts return
// ErrCrashed immediately instead of hanging on a connection that will
// never respond, mirrored on crocoite's Tab.markCrashed.
func (t *Tab) MarkCrashed() { t.crashed = true }

// Crashed reports whether MarkCrashed has been called.
func (t *Tab) Crashed() bool { return t.crashed }

// Run executes chromedp actions against this tab, refusing to start
// once the tab has crashed.
func (t *Tab) Run(ctx context.Context, actions ...chromedp.Action) error {
	if t.crashed {
		return ErrCrashed
	}
	return chromedp.Run(ctx, actions...)
}

// EvaluateScript runs expr as a top-level expression in the page and
// unmarshals its JSON-serializable result into out, mirrored on
// crocoite's JsOnload behaviors evaluating a loaded Script via
// Runtime.evaluate.
func (t *Tab) EvaluateScript(ctx context.Context, expr string, out any) error {
	if t.crashed {
		return ErrCrashed
	}
	action := runtime.Evaluate(expr).WithReturnByValue(true).WithAwaitPromise(true)
	var result *runtime.RemoteObject
	var exc *runtime.ExceptionDetails
	return t.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		result, exc, err = action.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("devtools: evaluate: %s", exc.Error())
		}
		if out == nil || result == nil || len(result.Value) == 0 {
			return nil
		}
		return unmarshalJSON(result.Value, out)
	}))
}

// CallFunctionOn invokes fn as a function with objectID as `this` and
// args as its arguments, mirrored on crocoite's JsOnload behaviors'
// Runtime.callFunctionOn instantiation call.
func (t *Tab) CallFunctionOn(ctx context.Context, objectID, fn string, args []any, out any) error {
	if t.crashed {
		return ErrCrashed
	}
	return t.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		callArgs := make([]*runtime.CallArgument, 0, len(args))
		for _, a := range args {
			raw, err := marshalJSON(a)
			if err != nil {
				return err
			}
			callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
		}
		action := runtime.CallFunctionOn(fn).
			WithObjectID(runtime.RemoteObjectID(objectID)).
			WithArguments(callArgs).
			WithReturnByValue(true).
			WithAwaitPromise(true)
		result, exc, err := action.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("devtools: callFunctionOn: %s", exc.Error())
		}
		if out == nil || result == nil || len(result.Value) == 0 {
			return nil
		}
		return unmarshalJSON(result.Value, out)
	}))
}

// SetViewport overrides the device metrics, mirrored on crocoite's
// EmulateScreenMetrics (Emulation.setDeviceMetricsOverride) and built
// on the same chromedp.EmulateViewport action the teacher already uses
// for its fixed 1920x1080 viewport.
func (t *Tab) SetViewport(ctx context.Context, width, height int64, deviceScale float64, mobile bool) error {
	opts := []chromedp.EmulateViewportOption{chromedp.EmulateScale(deviceScale)}
	if mobile {
		opts = append(opts, chromedp.EmulateMobile)
	}
	return t.Run(ctx, chromedp.EmulateViewport(width, height, opts...))
}

// ClearViewportOverride removes a device metrics override, mirrored on
// crocoite's EmulateScreenMetrics.onstop final
// Emulation.clearDeviceMetricsOverride call.
func (t *Tab) ClearViewportOverride(ctx context.Context) error {
	return t.Run(ctx, emulation.ClearDeviceMetricsOverride())
}

// CaptureScreenshot takes a PNG screenshot of the current viewport,
// mirrored on the teacher's screenshotCollector.capture.
func (t *Tab) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// OuterHTML returns the serialized outer HTML of the root <html>
// element, the basis DomSnapshot strips scripts and event attributes
// from.
func (t *Tab) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := t.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ListFrames returns every frame in the tab's current frame tree,
// keyed by frame id with its URL, mirrored on crocoite's DomSnapshot
// walking Chrome's frame tree to split capture at iframe boundaries
// (Page.getFrameTree).
func (t *Tab) ListFrames(ctx context.Context) (map[string]string, error) {
	if t.crashed {
		return nil, ErrCrashed
	}
	var tree *page.FrameTree
	err := t.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("devtools: get frame tree: %w", err)
	}

	out := make(map[string]string)
	var walk func(n *page.FrameTree)
	walk = func(n *page.FrameTree) {
		if n == nil || n.Frame == nil {
			return
		}
		out[string(n.Frame.ID)] = n.Frame.URL
		for _, child := range n.ChildFrames {
			walk(child)
		}
	}
	walk(tree)
	return out, nil
}

// FrameOuterHTML returns the serialized outer HTML of frameID's
// document, evaluated in a dedicated isolated world (Page.createIsolatedWorld)
// so the call reaches a cross-origin frame the same way it reaches the
// main frame, mirrored on crocoite's DomSnapshot serializing each
// frame independently via its own ChromeTreeWalker.
func (t *Tab) FrameOuterHTML(ctx context.Context, frameID string) (string, error) {
	if t.crashed {
		return "", ErrCrashed
	}
	var html string
	err := t.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		execCtxID, err := page.CreateIsolatedWorld(cdp.FrameID(frameID)).
			WithWorldName("grab-dom-snapshot").
			Do(ctx)
		if err != nil {
			return err
		}
		result, exc, err := runtime.Evaluate("document.documentElement.outerHTML").
			WithContextID(execCtxID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("devtools: evaluate in frame %s: %s", frameID, exc.Error())
		}
		if result == nil || len(result.Value) == 0 {
			return nil
		}
		return unmarshalJSON(result.Value, &html)
	}))
	return html, err
}

// FrameURL returns the current top-level document URL.
func (t *Tab) FrameURL(ctx context.Context) (string, error) {
	var u string
	if err := t.EvaluateScript(ctx, "window.location.href", &u); err != nil {
		return "", err
	}
	return u, nil
}
