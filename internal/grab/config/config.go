// Package config collects the options a grab needs from its caller
// (the CLI or the HTTP server) into one struct, the seam between
// external configuration and the controller/devtools packages.
//
// Grounded on the teacher's capture.Options (internal/capture/capture.go),
// which plays the identical role for HAR capture; extended with the
// fields SPEC_FULL.md's controller.Settings and devtools.Options need
// that capture.Options has no equivalent for (idle timeout, behavior
// selection, warcinfo, a remote browser endpoint).
package config

import (
	"fmt"
	"time"

	"github.com/tomasbasham/grab-engine/internal/grab/controller"
	"github.com/tomasbasham/grab-engine/internal/grab/devtools"
)

// GrabOptions configures one grab end to end: which browser to drive,
// how long to wait, and which behaviors to run.
type GrabOptions struct {
	URL string

	IdleTimeout time.Duration
	Timeout     time.Duration
	Insecure    bool

	// Behaviors restricts which standard behaviors run; empty means all
	// of them (subject to each behavior's own Matches check).
	Behaviors []string

	// Warcinfo is marshalled into the ControllerStart event's Extra field,
	// letting a caller attach arbitrary provenance (job ID, crawl name).
	Warcinfo map[string]any

	// BrowserWS, if set, is a DevTools WebSocket endpoint to attach to
	// instead of launching a local browser (devtools.Passthrough).
	BrowserWS string

	// BinaryPath overrides the Chrome/Chromium binary devtools.Launch
	// uses; empty defers to chromedp's own resolution.
	BinaryPath string
}

// DefaultGrabOptions mirrors the teacher's implicit capture.Options
// zero-value defaults, made explicit here since this type crosses a
// wider surface (CLI flags and the HTTP server's request body). The
// timeouts match spec.md §4.4's documented defaults (idle_timeout_s=2,
// timeout_s=10) exactly, the same values controller.Settings.withDefaults
// falls back to when a caller leaves them at zero.
func DefaultGrabOptions() GrabOptions {
	return GrabOptions{
		IdleTimeout: 2 * time.Second,
		Timeout:     10 * time.Second,
	}
}

// Validate reports the same "URL is required" contract the teacher's
// CaptureOptions.Validate enforces (internal/cmd/capture.go).
func (o GrabOptions) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("URL is required")
	}
	if o.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if o.IdleTimeout > o.Timeout {
		return fmt.Errorf("idle timeout %s cannot exceed total timeout %s", o.IdleTimeout, o.Timeout)
	}
	return nil
}

// ControllerSettings projects the grab-wide options onto the
// controller package's narrower Settings type.
func (o GrabOptions) ControllerSettings() controller.Settings {
	return controller.Settings{
		IdleTimeout: o.IdleTimeout,
		Timeout:     o.Timeout,
		Insecure:    o.Insecure,
		Behaviors:   o.Behaviors,
		Warcinfo:    o.Warcinfo,
	}
}

// DevtoolsOptions projects the grab-wide options onto devtools.Options
// for a freshly launched browser. Unused when BrowserWS is set, since
// that path attaches via devtools.Passthrough instead.
func (o GrabOptions) DevtoolsOptions() devtools.Options {
	return devtools.Options{
		BinaryPath: o.BinaryPath,
		Insecure:   o.Insecure,
	}
}
