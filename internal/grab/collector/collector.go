// Package collector implements the Tab Collector (C3): it subscribes to
// one tab's Network/Page/Log/Inspector events, reassembles
// RequestResponsePair values (folding in redirects), prefetches bodies,
// and exposes the result as a buffered event channel the controller
// drains.
//
// Grounded on the teacher's internal/capture/collector.go and
// events.go (channel-based collector + requestStore correlation map),
// generalized from HAR-only entries to full pairs per crocoite's
// browser.py SiteLoader, which this package also grounds the redirect
// fold-in and idle-tracking semantics on.
package collector

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"go.uber.org/zap"

	"github.com/tomasbasham/grab-engine/internal/grab/devtools"
	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// allowedSchemes restricts collection to http(s) requests, mirrored on
// crocoite's browser.py SiteLoader.allowedSchemes; data:, blob:,
// chrome-extension: and similar requests are dropped before a pair is
// ever allocated (resolves SPEC_FULL.md's third Open Question: the
// scheme filter runs before allocation, not after).
var allowedSchemes = map[string]bool{"http": true, "https": true}

// bodyFetchTimeout bounds Network.getResponseBody calls, mirrored on
// crocoite's 60 second Item.body timeout.
const bodyFetchTimeout = 60 * time.Second

// Collector accumulates events for one tab and exposes them as a
// buffered channel, mirrored on the teacher's collector type (resultCh
// / doneCh) generalized to the full event union.
type Collector struct {
	tab    *devtools.Tab
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[network.RequestID]*pending

	// loading tracks frames currently reported as loading; idle is
	// true exactly when this set is empty, mirrored on crocoite's
	// waitIdle semantics generalized from polling to push-based.
	loading map[cdp.FrameID]bool

	events  chan model.Event
	closing sync.Once

	// bgCtx/bgCancel/bgWG track the fire-and-forget body-prefetch tasks
	// (pending_background in SPEC_FULL.md §4.3): every CDP round-trip
	// needed to complete a pair is run on a goroutine tracked here, not
	// on the chromedp event-dispatch goroutine that onEvent runs on, so
	// fetching a body never stalls delivery of every other tab event.
	// Close cancels bgCtx and waits for bgWG before closing the events
	// channel, so a cancelled fetch can never send on it afterwards.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// pending is one in-flight request awaiting a response/finish/failure,
// including everything needed to build the final Response once the
// body is fetched.
type pending struct {
	req          model.Request
	resourceType model.ResourceType
	resp         *network.EventResponseReceived
}

// New creates a collector bound to tab and wires its event listener.
// bufferSize bounds how many events may be queued before controller
// reads start to block, giving the channel the backpressure SPEC_FULL
// calls for.
func New(tab *devtools.Tab, logger *zap.Logger, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	bgCtx, bgCancel := context.WithCancel(tab.Context())
	c := &Collector{
		tab:      tab,
		logger:   logger,
		inFlight: make(map[network.RequestID]*pending),
		loading:  make(map[cdp.FrameID]bool),
		events:   make(chan model.Event, bufferSize),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	tab.Listen(c.onEvent)
	return c
}

// Start enables the DevTools domains this collector depends on and
// clears cache and cookies, mirrored on crocoite's browser.py
// SiteLoader.__aenter__ (SPEC_FULL.md §4.3: "Enabled DevTools domains
// on entry: Log, Network, Page, Inspector... Cache and cookies are
// cleared at start"). Must be called once, before navigation, so no
// request/response events are missed and a grab never observes a
// cache/cookie entry left behind by a previous one.
func (c *Collector) Start(ctx context.Context) error {
	if err := c.tab.Run(ctx,
		log.Enable(),
		network.Enable(),
		page.Enable(),
		inspector.Enable(),
	); err != nil {
		return fmt.Errorf("collector: enable devtools domains: %w", err)
	}
	if err := c.tab.Run(ctx,
		network.ClearBrowserCache(),
		network.ClearBrowserCookies(),
	); err != nil {
		return fmt.Errorf("collector: clear cache and cookies: %w", err)
	}
	return nil
}

// Events returns the channel the controller should drain.
func (c *Collector) Events() <-chan model.Event { return c.events }

// Close cancels any in-flight body prefetches, waits for their
// goroutines to finish, then stops delivering events. Safe to call
// more than once.
func (c *Collector) Close() {
	c.closing.Do(func() {
		c.bgCancel()
		c.bgWG.Wait()
		close(c.events)
	})
}

// send pushes ev onto the event channel, blocking once the buffer is
// full. Blocking here is the channel's backpressure, required so a
// slow handler chain in the controller cannot cause events to be
// silently dropped.
func (c *Collector) send(ev model.Event) {
	c.events <- ev
}

func (c *Collector) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.onRequestWillBeSent(e)
	case *network.EventResponseReceived:
		c.onResponseReceived(e)
	case *network.EventLoadingFinished:
		c.onLoadingFinished(e)
	case *network.EventLoadingFailed:
		c.onLoadingFailed(e)
	case *page.EventFrameStartedLoading:
		c.setLoading(e.FrameID, true)
	case *page.EventFrameStoppedLoading:
		c.setLoading(e.FrameID, false)
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			c.send(&model.FrameNavigated{URL: e.Frame.URL})
		}
	case *page.EventJavascriptDialogOpening:
		c.onJavascriptDialog(e)
	case *log.EventEntryAdded:
		c.send(&model.LogEvent{
			Level:  string(e.Entry.Level),
			Text:   e.Entry.Text,
			Source: string(e.Entry.Source),
			At:     e.Entry.Timestamp.Time(),
		})
	case *inspector.EventTargetCrashed:
		// Mirrored on crocoite's devtools.py Tab.Crashed propagation:
		// mark the tab so no further calls are attempted, push a
		// sentinel so the controller's drain loop observes the crash
		// promptly, then stop delivering further events.
		c.tab.MarkCrashed()
		c.send(&model.CrashedEvent{Err: devtools.ErrCrashed})
		c.Close()
	}
}

func (c *Collector) setLoading(id cdp.FrameID, loading bool) {
	c.mu.Lock()
	wasIdle := len(c.loading) == 0
	if loading {
		c.loading[id] = true
	} else {
		delete(c.loading, id)
	}
	nowIdle := len(c.loading) == 0
	c.mu.Unlock()

	if !wasIdle && nowIdle {
		c.send(&model.PageIdle{At: time.Now()})
	}
}

// IsIdle reports whether the outstanding-frame set is currently empty.
func (c *Collector) IsIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loading) == 0
}

func (c *Collector) onRequestWillBeSent(e *network.EventRequestWillBeSent) {
	if e.Request == nil || !allowedSchemes[schemeOf(e.Request.URL)] {
		return
	}

	c.mu.Lock()
	existing, redirected := c.inFlight[e.RequestID]
	c.mu.Unlock()

	if redirected && e.RedirectResponse != nil {
		// The browser reuses the same request id across a redirect
		// chain: synthesize a completed pair for the prior hop before
		// opening a fresh one for this hop, mirrored on crocoite's
		// browser.py _requestWillBeSent redirect handling.
		c.finishRedirect(e.RequestID, existing, e.RedirectResponse)
	}

	req := model.Request{
		Method:      e.Request.Method,
		URL:         e.Request.URL,
		Headers:     model.FromMap(e.Request.Headers),
		WallTime:    e.WallTime.Time(),
		HasPostData: e.Request.HasPostData,
	}
	if e.Request.PostData != "" {
		req.Body = &model.Body{Bytes: []byte(e.Request.PostData)}
	}

	c.mu.Lock()
	c.inFlight[e.RequestID] = &pending{req: req, resourceType: resourceType(e.Type)}
	c.mu.Unlock()
}

// finishRedirect fetches the redirected request's post data (if any)
// and emits the completed redirect pair. Runs on a tracked background
// goroutine, never on the chromedp event-dispatch goroutine that calls
// it: GetRequestPostData is a CDP round-trip, and blocking the listener
// on it would stall delivery of every other event the tab produces,
// the same hazard the dialog handler below avoids by answering
// asynchronously. Mirrored on the teacher's screenshotCollector.capture
// (internal/capture/capture.go), which fires its CDP call from a
// tracked goroutine rather than waiting inline in the listener.
func (c *Collector) finishRedirect(id network.RequestID, p *pending, redirect *network.Response) {
	req := p.req
	resourceType := p.resourceType

	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()

		// Redirect pairs fetch the request body for completeness but
		// must never fetch the response body: the request id has
		// already been reused by the follow-up request, so
		// Network.getResponseBody would return the wrong hop's body
		// (SPEC_FULL.md §4.3).
		if req.Body == nil && req.HasPostData {
			ctx, cancel := context.WithTimeout(c.bgCtx, bodyFetchTimeout)
			data, err := network.GetRequestPostData(id).Do(ctx)
			cancel()
			if err == nil {
				req.Body = &model.Body{Bytes: []byte(data)}
			} else if c.logger != nil {
				c.logger.Debug("failed to fetch redirected request post data", zap.String("requestId", string(id)), zap.Error(err))
			}
		}

		pair := &model.RequestResponsePair{
			ID:           string(id),
			URL:          req.URL,
			Request:      req,
			ResourceType: resourceType,
			Truncated:    true,
			Response: &model.Response{
				Status:        int(redirect.Status),
				StatusText:    redirect.StatusText,
				Headers:       model.FromMap(redirect.Headers).WithoutHopByHop(),
				MimeType:      redirect.MimeType,
				BytesReceived: int64(redirect.EncodedDataLength),
				RemoteIP:      redirect.RemoteIPAddress,
				Protocol:      redirect.Protocol,
				WallTime:      req.WallTime,
			},
		}
		c.send(&model.PairEvent{Pair: pair})
	}()
}

func (c *Collector) onResponseReceived(e *network.EventResponseReceived) {
	if e.Response == nil || !allowedSchemes[schemeOf(e.Response.URL)] {
		return
	}
	c.mu.Lock()
	p, ok := c.inFlight[e.RequestID]
	mismatch := ok && p.req.URL != e.Response.URL
	if ok && !mismatch {
		p.resp = e
	}
	if mismatch {
		delete(c.inFlight, e.RequestID)
	}
	c.mu.Unlock()
	switch {
	case !ok && c.logger != nil:
		c.logger.Debug("response for unknown request id, ignoring", zap.String("requestId", string(e.RequestID)))
	case mismatch && c.logger != nil:
		// The request id has been reused for an unrelated exchange;
		// attaching this response would corrupt the pending pair, so
		// it is dropped instead (SPEC_FULL.md §4.3).
		c.logger.Warn("response URL does not match pending request, dropping",
			zap.String("requestId", string(e.RequestID)),
			zap.String("requestURL", p.req.URL),
			zap.String("responseURL", e.Response.URL))
	}
}

// onLoadingFinished fetches the response (and, if needed, request)
// body and emits the completed pair. Runs on a tracked background
// goroutine, never on the chromedp event-dispatch goroutine that calls
// it (onEvent, via tab.Listen/ListenTarget): the body fetches below are
// CDP round-trips, and waiting on them inline here would block that
// same goroutine from ever dispatching the next event, precisely what
// the dialog handler's own comment warns against. Mirrored on the
// teacher's screenshotCollector.capture (internal/capture/capture.go),
// which fires its CDP call from a goroutine and only waits on it from
// outside the listener.
func (c *Collector) onLoadingFinished(e *network.EventLoadingFinished) {
	c.mu.Lock()
	p, ok := c.inFlight[e.RequestID]
	if ok {
		delete(c.inFlight, e.RequestID)
	}
	c.mu.Unlock()
	if !ok || p.resp == nil {
		return
	}

	resp := p.resp.Response
	req := p.req
	resourceType := p.resourceType
	modelResp := &model.Response{
		Status:        int(resp.Status),
		StatusText:    resp.StatusText,
		Headers:       model.FromMap(resp.Headers).WithoutHopByHop(),
		MimeType:      resp.MimeType,
		BytesReceived: int64(e.EncodedDataLength),
		RemoteIP:      resp.RemoteIPAddress,
		Protocol:      resp.Protocol,
		FromDiskCache: resp.FromDiskCache,
		WallTime:      req.WallTime,
	}

	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()

		// Request and response bodies are independent round-trips to
		// the browser; fetch both concurrently rather than paying
		// their latencies back to back, mirrored on crocoite's
		// browser.py Item gathering request.postData and response.body
		// together.
		var wg sync.WaitGroup
		if req.Body == nil && req.HasPostData {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(c.bgCtx, bodyFetchTimeout)
				defer cancel()
				data, err := network.GetRequestPostData(e.RequestID).Do(ctx)
				if err != nil {
					if c.logger != nil {
						c.logger.Debug("failed to fetch request post data", zap.String("requestId", string(e.RequestID)), zap.Error(err))
					}
					return
				}
				req.Body = &model.Body{Bytes: []byte(data)}
			}()
		}
		truncated := false
		wg.Add(1)
		go func() {
			defer wg.Done()
			if body, base64ed, err := c.fetchBody(e.RequestID); err == nil {
				modelResp.Body = &model.Body{Bytes: body, Base64: base64ed}
			} else {
				truncated = true
				if c.logger != nil {
					c.logger.Debug("failed to fetch response body", zap.String("requestId", string(e.RequestID)), zap.Error(err))
				}
			}
		}()
		wg.Wait()

		pair := &model.RequestResponsePair{
			ID:           string(e.RequestID),
			URL:          req.URL,
			Request:      req,
			Response:     modelResp,
			ResourceType: resourceType,
			Truncated:    truncated,
		}
		c.send(&model.PairEvent{Pair: pair})
	}()
}

func (c *Collector) onLoadingFailed(e *network.EventLoadingFailed) {
	c.mu.Lock()
	p, ok := c.inFlight[e.RequestID]
	if ok {
		delete(c.inFlight, e.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		// Failure for a request id we never saw (e.g. filtered scheme,
		// or already folded into a redirect) is a documented no-op,
		// resolving SPEC_FULL.md's second Open Question.
		return
	}
	pair := &model.RequestResponsePair{
		ID:           string(e.RequestID),
		URL:          p.req.URL,
		Request:      p.req,
		ResourceType: p.resourceType,
		Truncated:    true,
	}
	c.send(&model.PairEvent{Pair: pair})
}

// dialogTimeout bounds Page.handleJavaScriptDialog calls; a dialog the
// browser is still waiting on should be answered promptly so the page
// can continue loading.
const dialogTimeout = 5 * time.Second

// onJavascriptDialog answers a window.alert/confirm/prompt/beforeunload
// dialog, mirrored on crocoite's browser.py SiteLoader._onDialog:
// beforeunload is accepted (otherwise the page can never navigate
// away), alert/confirm/prompt are dismissed, and any other kind is
// dismissed with a warning since the protocol has none at the time of
// writing.
func (c *Collector) onJavascriptDialog(e *page.EventJavascriptDialogOpening) {
	accept := false
	switch e.Type {
	case page.DialogTypeBeforeunload:
		accept = true
	case page.DialogTypeAlert, page.DialogTypeConfirm, page.DialogTypePrompt:
		accept = false
	default:
		if c.logger != nil {
			c.logger.Warn("unhandled javascript dialog type, dismissing", zap.String("type", string(e.Type)))
		}
	}

	// Handling runs on its own goroutine: the event is delivered from
	// chromedp's single listener goroutine, and replying here
	// synchronously would deadlock against that same goroutine's
	// reply-dispatch loop.
	go func() {
		ctx, cancel := context.WithTimeout(c.tab.Context(), dialogTimeout)
		defer cancel()
		if err := page.HandleJavaScriptDialog(accept).Do(ctx); err != nil && c.logger != nil {
			c.logger.Warn("failed to answer javascript dialog", zap.Error(err))
		}
	}()
}

// fetchBody retrieves a response body via Network.getResponseBody,
// mirrored on crocoite's browser.py Item.body property (60s timeout,
// base64 vs unicode tagging from the CDP result's base64Encoded flag).
// Bound to bgCtx, not the tab's own context, so Close can cancel an
// in-flight fetch without tearing down the tab itself.
func (c *Collector) fetchBody(id network.RequestID) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(c.bgCtx, bodyFetchTimeout)
	defer cancel()

	var res network.GetResponseBodyReturns
	if err := cdp.Execute(ctx, network.CommandGetResponseBody, network.GetResponseBody(id), &res); err != nil {
		return nil, false, err
	}
	if res.Base64encoded {
		dec, err := base64.StdEncoding.DecodeString(res.Body)
		if err != nil {
			return nil, false, err
		}
		return dec, true, nil
	}
	return []byte(res.Body), false, nil
}

func resourceType(t network.ResourceType) model.ResourceType {
	switch t {
	case network.ResourceTypeDocument:
		return model.ResourceDocument
	case network.ResourceTypeStylesheet:
		return model.ResourceStylesheet
	case network.ResourceTypeImage:
		return model.ResourceImage
	case network.ResourceTypeScript:
		return model.ResourceScript
	case network.ResourceTypeXHR:
		return model.ResourceXHR
	case network.ResourceTypeFetch:
		return model.ResourceFetch
	case network.ResourceTypeWebSocket:
		return model.ResourceWebSocket
	default:
		return model.ResourceOther
	}
}

func schemeOf(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		switch rawURL[i] {
		case ':':
			return rawURL[:i]
		case '/', '?', '#':
			return ""
		}
	}
	return ""
}
