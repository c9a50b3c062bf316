// Package controller implements the Grab Controller (C4): it sequences
// navigation, behavior phases and idle/timeout detection for one grab,
// and fans out every event to a set of registered handlers.
//
// Grounded on the teacher's capture.Capture function for the overall
// timeout/navigate/drain shape (internal/capture/capture.go) and on
// crocoite's controller.py SinglePageController / IdleStateTracker /
// InjectBehaviorOnload for the STOPPING/FINISHING phases and idle-wait
// arithmetic the teacher's simpler HAR-only model does not need.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/tomasbasham/grab-engine/internal/grab/behavior"
	"github.com/tomasbasham/grab-engine/internal/grab/collector"
	"github.com/tomasbasham/grab-engine/internal/grab/devtools"
	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// State names the grab controller's lifecycle stage.
type State string

const (
	StateConfigured State = "CONFIGURED"
	StateNavigating State = "NAVIGATING"
	StateWaiting    State = "WAITING"
	StateStopping   State = "STOPPING"
	StateFinishing  State = "FINISHING"
	StateDone       State = "DONE"
)

// Handler receives every event pushed by the controller: completed
// request/response pairs and behavior-emitted artifacts. Mirrored on
// crocoite's controller.py EventHandler ABC.
type Handler interface {
	Push(model.Event) error
}

// Settings mirrors crocoite's controller.py ControllerSettings.
type Settings struct {
	IdleTimeout time.Duration // default 2s
	Timeout     time.Duration // default 10s
	Insecure    bool
	Behaviors   []string // names of behaviors to enable, empty = all
	Warcinfo    map[string]any
}

func (s Settings) withDefaults() Settings {
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = 2 * time.Second
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	return s
}

// Supervisor is the narrow interface the controller needs from a
// launched browser process (devtools.Supervisor or
// devtools.Passthrough).
type Supervisor interface {
	AllocatorContext() context.Context
	Release()
}

// BehaviorFactory builds the set of behaviors to run for one grab,
// bound to that grab's tab. Behaviors cannot be constructed ahead of
// time because each needs an Evaluator backed by the tab the
// controller opens inside Run.
type BehaviorFactory func(eval behavior.Evaluator) []behavior.Behavior

// Controller drives one grab: one URL, one tab, the configured
// behaviors, to completion.
type Controller struct {
	url         string
	settings    Settings
	handlers    []Handler
	logger      *zap.Logger
	state       State
	newBehaviors BehaviorFactory

	// timedOut is true once waitForIdleOrTimeout stopped WAITING because
	// the global timeout elapsed rather than the page reaching idle.
	timedOut bool

	// crashed is true once a CrashedEvent was observed; STOPPING and
	// FINISHING are skipped since the tab can no longer be talked to.
	crashed bool

	// activeBehaviors names the behaviors enabled for this grab, set
	// once Run has resolved the tab's Evaluator and filtered Settings.Behaviors.
	activeBehaviors []string

	// pushMu serializes push against every caller: the root-frame
	// FrameNavigated listener runs on chromedp's event-dispatch
	// goroutine while waitForIdleOrTimeout drains on Run's own
	// goroutine, and §5 forbids a handler from observing concurrent
	// invocations.
	pushMu sync.Mutex
}

// New creates a controller for url with the given settings and
// handlers. The controller starts in StateConfigured. newBehaviors
// builds the enabled behaviors once a tab exists for this grab; pass
// behavior.Standard wrapped to ignore the eval filtering already
// applied by Settings.Behaviors, or a custom factory for tests.
func New(url string, settings Settings, handlers []Handler, newBehaviors BehaviorFactory, logger *zap.Logger) *Controller {
	return &Controller{
		url:          url,
		settings:     settings.withDefaults(),
		handlers:     handlers,
		newBehaviors: newBehaviors,
		logger:       logger,
		state:        StateConfigured,
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State { return c.state }

// TimedOut reports whether the grab was cut short by the global
// timeout before the page reached idle. Only meaningful after Run has
// returned.
func (c *Controller) TimedOut() bool { return c.timedOut }

// Crashed reports whether the grab ended because the tab crashed or
// its DevTools connection was lost. Only meaningful after Run has
// returned.
func (c *Controller) Crashed() bool { return c.crashed }

// ActiveBehaviors names the behaviors enabled for this grab (after
// Settings.Behaviors filtering and each behavior's own Matches check).
// Only meaningful after Run has returned.
func (c *Controller) ActiveBehaviors() []string { return c.activeBehaviors }

func (c *Controller) push(ev model.Event) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	for _, h := range c.handlers {
		if err := h.Push(ev); err != nil && c.logger != nil {
			c.logger.Warn("handler returned an error", zap.Error(err))
		}
	}
}

// Run drives the grab to completion against sup, returning once the
// DONE state has been reached. It never returns before every handler
// has seen the ControllerStart event and every event the collector
// produced before STOPPING began.
func (c *Controller) Run(ctx context.Context, sup Supervisor) error {
	tab := devtools.NewTab(sup.AllocatorContext())
	defer tab.Close()

	coll := collector.New(tab, c.logger, 256)
	defer coll.Close()

	// Enable the DevTools domains the collector depends on and clear
	// cache/cookies before anything navigates, per §4.3's entry
	// contract; a failure here means the tab can never be talked to
	// usefully, so it aborts the grab rather than limping on silently.
	if err := coll.Start(tab.Context()); err != nil {
		sup.Release()
		return fmt.Errorf("controller: start collector: %w", err)
	}

	if err := tab.Run(tab.Context(),
		security.SetIgnoreCertificateErrors(c.settings.Insecure),
	); err != nil && c.logger != nil {
		c.logger.Debug("failed to set certificate error policy", zap.Error(err))
	}

	active := c.enabledBehaviors(c.newBehaviors(tab))
	c.activeBehaviors = behaviorNames(active)

	_, product, _, userAgent, _, err := browser.GetVersion().Do(tab.Context())
	if err != nil {
		product = "unknown"
	}

	var extra json.RawMessage
	if len(c.settings.Warcinfo) > 0 {
		if raw, err := json.Marshal(c.settings.Warcinfo); err == nil {
			extra = raw
		} else if c.logger != nil {
			c.logger.Warn("failed to marshal warcinfo", zap.Error(err))
		}
	}

	c.push(&model.ControllerStart{
		Software: "grab-engine",
		Browser: model.BrowserInfo{
			Product:   product,
			UserAgent: userAgent,
			Viewport:  "1920x1080",
		},
		Tool: "grab-single",
		Parameters: map[string]any{
			"url":         c.url,
			"idleTimeout": c.settings.IdleTimeout.Seconds(),
			"timeout":     c.settings.Timeout.Seconds(),
			"insecure":    c.settings.Insecure,
			"behaviors":   behaviorNames(active),
		},
		Extra: extra,
	})

	c.state = StateNavigating
	// Re-run onload on every root-frame navigation, not just the first,
	// mirrored on crocoite's InjectBehaviorOnload (resolves
	// SPEC_FULL.md's fourth Open Question).
	tab.Listen(func(ev any) {
		if fn, ok := ev.(*page.EventFrameNavigated); ok && fn.Frame != nil && fn.Frame.ParentID == "" {
			c.runOnload(ctx, tab, active)
		}
	})

	if err := tab.Run(tab.Context(), chromedp.Navigate(c.url)); err != nil {
		sup.Release()
		return fmt.Errorf("%w: %s: %v", devtools.ErrNavigate, c.url, err)
	}

	c.state = StateWaiting
	c.waitForIdleOrTimeout(ctx, coll)

	if c.crashed || tab.Crashed() {
		// The tab can no longer be talked to: skip STOPPING/FINISHING
		// (every call would fail with ErrCrashed) and surface the
		// crash, mirrored on crocoite's controller.py run() letting
		// Crashed propagate out of the wait loop unconditionally.
		c.state = StateDone
		sup.Release()
		return devtools.ErrCrashed
	}

	c.state = StateStopping
	c.runStop(ctx, tab, active)
	_ = tab.Run(tab.Context(), page.StopLoading())
	time.Sleep(1 * time.Second)

	c.state = StateFinishing
	c.runFinish(ctx, tab, active)
	c.drainRemaining(coll)

	c.state = StateDone
	sup.Release()
	return nil
}

func (c *Controller) enabledBehaviors(all []behavior.Behavior) []behavior.Behavior {
	var want map[string]bool
	if len(c.settings.Behaviors) > 0 {
		want = make(map[string]bool, len(c.settings.Behaviors))
		for _, n := range c.settings.Behaviors {
			want[n] = true
		}
	}
	var out []behavior.Behavior
	for _, b := range all {
		if want != nil && !want[b.Name()] {
			continue
		}
		if b.Matches(c.url) {
			out = append(out, b)
		}
	}
	return out
}

func behaviorNames(bs []behavior.Behavior) []string {
	names := make([]string, 0, len(bs))
	for _, b := range bs {
		names = append(names, b.Name())
	}
	return names
}

func (c *Controller) runOnload(ctx context.Context, tab *devtools.Tab, active []behavior.Behavior) {
	for _, b := range active {
		ch, err := b.OnLoad(tab.Context())
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("behavior onload failed", zap.String("behavior", b.Name()), zap.Error(err))
			}
			continue
		}
		for ev := range ch {
			c.push(ev)
		}
	}
}

func (c *Controller) runStop(ctx context.Context, tab *devtools.Tab, active []behavior.Behavior) {
	for _, b := range active {
		ch, err := b.OnStop(tab.Context())
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("behavior onstop failed", zap.String("behavior", b.Name()), zap.Error(err))
			}
			continue
		}
		for ev := range ch {
			c.push(ev)
		}
	}
}

func (c *Controller) runFinish(ctx context.Context, tab *devtools.Tab, active []behavior.Behavior) {
	for _, b := range active {
		ch, err := b.OnFinish(tab.Context())
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("behavior onfinish failed", zap.String("behavior", b.Name()), zap.Error(err))
			}
			continue
		}
		for ev := range ch {
			c.push(ev)
		}
	}
}

// waitForIdleOrTimeout races three outcomes exactly as crocoite's
// SinglePageController.run does: the collector reaching idle, the
// global timeout elapsing, or the parent context being cancelled.
// Every event the collector produces while waiting is forwarded to
// handlers immediately so WAITING never silently buffers pairs.
func (c *Controller) waitForIdleOrTimeout(ctx context.Context, coll *collector.Collector) {
	tracker := newIdleTracker(c.settings.IdleTimeout)
	tracker.markBusy() // navigation was just issued; wait for real idle
	globalDeadline := time.NewTimer(c.settings.Timeout)
	defer globalDeadline.Stop()

	for {
		select {
		case ev, ok := <-coll.Events():
			if !ok {
				return
			}
			c.push(ev)
			switch ev.(type) {
			case *model.CrashedEvent:
				c.crashed = true
				return
			case *model.PageIdle:
				tracker.markIdle()
			default:
				if !coll.IsIdle() {
					tracker.markBusy()
				}
			}
		case <-tracker.fire():
			if c.logger != nil {
				c.logger.Debug("idle timeout reached")
			}
			return
		case <-globalDeadline.C:
			if c.logger != nil {
				c.logger.Debug("global timeout reached")
			}
			c.timedOut = true
			return
		case <-ctx.Done():
			return
		}
	}
}

// drainRemaining forwards whatever events are already buffered on the
// collector's channel without blocking further, matching the
// teacher's wait()'s final "drain what's left" step.
func (c *Controller) drainRemaining(coll *collector.Collector) {
	for {
		select {
		case ev, ok := <-coll.Events():
			if !ok {
				return
			}
			c.push(ev)
		default:
			return
		}
	}
}
