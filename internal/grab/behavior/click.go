package behavior

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

//go:embed data/click.js
var clickScript []byte

// Click drives cookie-consent and "load more" style buttons per the
// matching site's selector list, mirrored on crocoite's behavior.py
// Click (a JsOnload behavior whose script is click.js and whose
// options come from a YAML site config).
type Click struct {
	base
	eval Evaluator
	cfgs []ClickConfig
	host string
}

// NewClick constructs the Click behavior from a parsed site config
// (use DefaultClickConfig() for the bundled document), bound to the
// host of the grab's URL so OnLoad only ever injects that host's
// selectors.
func NewClick(eval Evaluator, host string, cfgs ...ClickConfig) *Click {
	return &Click{eval: eval, host: host, cfgs: cfgs}
}

// NewClickDefault is a convenience constructor using the bundled
// click.yaml.
func NewClickDefault(eval Evaluator, host string) *Click {
	return NewClick(eval, host, DefaultClickConfig()...)
}

func (c *Click) Name() string { return "click" }

// Matches restricts Click to hosts present in the site config,
// mirrored on crocoite's Click behavior filtering __contains__ by URL.
func (c *Click) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return len(selectorsFor(c.cfgs, u.Host)) > 0
}

// OnLoad installs and starts the click driver configured with the
// selectors for this page's host only, mirrored on crocoite's Click
// behavior resolving self.options['sites'] against the loader's URL
// before building its DriverClick instance.
func (c *Click) OnLoad(ctx context.Context) (<-chan model.Event, error) {
	selectors := selectorsFor(c.cfgs, c.host)
	opts := struct {
		Sites []string `json:"sites"`
	}{Sites: selectors}

	optsJSON, err := marshalStructAsJS(opts)
	if err != nil {
		return nil, fmt.Errorf("behavior click: marshal options: %w", err)
	}

	expr := "window.__grabClick = new (" + string(clickScript) + ")(" + optsJSON + ");"
	if err := c.eval.EvaluateScript(ctx, expr, nil); err != nil {
		return nil, fmt.Errorf("behavior click: load script: %w", err)
	}

	out := make(chan model.Event, 1)
	out <- &model.ScriptEvent{Path: "click.js", Data: clickScript}
	close(out)
	return out, nil
}

// OnStop halts the click driver.
func (c *Click) OnStop(ctx context.Context) (<-chan model.Event, error) {
	_ = c.eval.EvaluateScript(ctx, "window.__grabClick && window.__grabClick.stop();", nil)
	return closedEmpty(), nil
}
