// Package devtools implements the Browser Process Supervisor (C1) and
// DevTools Transport (C2): launching a private, disposable headless
// Chromium instance and exposing a typed facade over its DevTools
// connection for one tab.
//
// Grounded on the teacher's chromedp.NewExecAllocator/NewContext setup
// in internal/capture/capture.go, generalized with the full browser
// flag set from crocoite's devtools.py Process, and EdgeComet's
// internal/render/chrome/instance.go for the instance lifecycle shape.
package devtools

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// SpawnTimeout bounds how long the supervisor waits for the browser
// process to come up and respond on DevTools before giving up.
const SpawnTimeout = 20 * time.Second

// profileCleanupRetries and profileCleanupDelay match crocoite's
// Process.__aexit__, which retries shutil.rmtree up to 5 times at
// 200ms intervals because Chromium's child processes can hold the
// profile directory open for a short window after the parent exits.
const (
	profileCleanupRetries = 5
	profileCleanupDelay   = 200 * time.Millisecond
)

// Options configures a launched browser instance.
type Options struct {
	// BinaryPath overrides the Chrome/Chromium executable to launch.
	// Empty uses chromedp's platform default discovery.
	BinaryPath string
	// WindowWidth/WindowHeight set the initial --window-size.
	WindowWidth  int64
	WindowHeight int64
	// Insecure disables TLS certificate validation for the launched
	// browser (the grab controller also calls
	// Security.setIgnoreCertificateErrors at the CDP level; this flag
	// additionally silences the command-line warning banner).
	Insecure bool
}

func (o Options) withDefaults() Options {
	if o.WindowWidth == 0 {
		o.WindowWidth = 1920
	}
	if o.WindowHeight == 0 {
		o.WindowHeight = 1080
	}
	return o
}

// Supervisor owns one headless browser process: a private profile
// directory, an allocator context, and teardown including the
// retry-delete cleanup crocoite performs.
type Supervisor struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	userDataDir string
	logger      *zap.Logger
}

// Launch starts a fresh headless browser process bound to ctx's
// lifetime, applying the complete flag list from crocoite's
// devtools.py Process: background networking, crash reporting,
// notifications, GPU, audio, scrollbars, first-run, sync and
// extensions all disabled, and a fresh --user-data-dir. The process is
// started by chromedp's exec allocator as is; Launch does not place it
// in a separate OS session or process group.
func Launch(ctx context.Context, opts Options, logger *zap.Logger) (*Supervisor, error) {
	opts = opts.withDefaults()

	userDataDir, err := os.MkdirTemp("", "grab-engine-profile-")
	if err != nil {
		return nil, fmt.Errorf("devtools: create profile dir: %w", err)
	}

	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.UserDataDir(userDataDir),
		chromedp.WindowSize(int(opts.WindowWidth), int(opts.WindowHeight)),
		chromedp.Flag("homepage", "about:blank"),
	)
	if opts.Insecure {
		flags = append(flags, chromedp.Flag("ignore-certificate-errors", true))
	}
	if opts.BinaryPath != "" {
		flags = append(flags, chromedp.ExecPath(opts.BinaryPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, flags...)

	// chromedp's allocator starts the process lazily on first use; run
	// an empty action under the spawn deadline to force startup now so
	// Launch itself reports the failure instead of the first grab.
	probeCtx, cancelProbe := chromedp.NewContext(allocCtx)
	defer cancelProbe()
	spawnCtx, cancelSpawn := context.WithTimeout(probeCtx, SpawnTimeout)
	defer cancelSpawn()
	if err := chromedp.Run(spawnCtx, chromedp.ActionFunc(func(context.Context) error { return nil })); err != nil {
		cancelAlloc()
		os.RemoveAll(userDataDir)
		return nil, fmt.Errorf("devtools: browser did not come up within %s: %w", SpawnTimeout, err)
	}

	return &Supervisor{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		userDataDir: userDataDir,
		logger:      logger,
	}, nil
}

// AllocatorContext returns the context new tabs should be created
// under via chromedp.NewContext.
func (s *Supervisor) AllocatorContext() context.Context {
	return s.allocCtx
}

// Release terminates the browser process and removes its profile
// directory, retrying the removal up to profileCleanupRetries times
// since a just-terminated Chromium's helper processes can keep the
// directory open for a short window (mirrors crocoite's
// Process.__aexit__ retry loop).
func (s *Supervisor) Release() {
	s.cancelAlloc()

	var err error
	for i := 0; i < profileCleanupRetries; i++ {
		if err = os.RemoveAll(s.userDataDir); err == nil {
			return
		}
		time.Sleep(profileCleanupDelay)
	}
	if s.logger != nil {
		s.logger.Warn("failed to remove browser profile directory",
			zap.String("dir", s.userDataDir), zap.Error(err))
	}
}

// Passthrough is the "already-running browser" supervisor variant: it
// wraps an existing DevTools endpoint without spawning or tearing down
// a process, mirrored on crocoite's devtools.py Passthrough.
type Passthrough struct {
	allocCtx context.Context
}

// NewPassthrough wraps an existing browser's DevTools WebSocket debugger
// URL.
func NewPassthrough(ctx context.Context, wsURL string) *Passthrough {
	allocCtx, _ := chromedp.NewRemoteAllocator(ctx, wsURL)
	return &Passthrough{allocCtx: allocCtx}
}

// AllocatorContext implements the same accessor Supervisor exposes so
// callers can treat both variants uniformly.
func (p *Passthrough) AllocatorContext() context.Context { return p.allocCtx }

// Release is a no-op: the passthrough variant does not own the
// browser's lifecycle.
func (p *Passthrough) Release() {}
