package operation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomasbasham/grab-engine/internal/grab/behavior"
	"github.com/tomasbasham/grab-engine/internal/grab/config"
	"github.com/tomasbasham/grab-engine/internal/grab/controller"
	"github.com/tomasbasham/grab-engine/internal/grab/devtools"
	"github.com/tomasbasham/grab-engine/internal/grab/warcsink"
	"github.com/tomasbasham/grab-engine/internal/storage"
)

// WorkerOptions configures a grab worker invocation.
type WorkerOptions struct {
	GrabOptions config.GrabOptions
	OperationID string
	Store       Store
	Uploader    storage.Uploader
}

// Run drives one grab, uploads the resulting JSONL artefact, and
// transitions the operation through running → complete | failed.
//
// Run is intended to be called in a separate goroutine; it owns the
// full lifecycle of the operation from the moment it is called.
// Mirrored on the teacher's Run (internal/operation/worker.go), with
// capture.Capture replaced by a devtools.Supervisor + controller.Run
// pair and the HAR/screenshot upload step replaced by a single JSONL
// stream, per warcsink.JSONLHandler's role as the interim artefact
// format documented in SPEC_FULL.md §6.
func Run(ctx context.Context, opts WorkerOptions) {
	if err := opts.Store.MarkRunning(opts.OperationID); err != nil {
		// If we cannot even mark it running the store is broken; nothing to do.
		return
	}

	started := time.Now()
	buf, timedOut, activeBehaviors, err := runGrab(ctx, opts.GrabOptions)
	if err != nil {
		crashed := errors.Is(err, devtools.ErrCrashed)
		_ = opts.Store.MarkFailed(opts.OperationID, fmt.Errorf("grab: %w", err), crashed)
		return
	}

	artefacts, err := uploadArtefacts(ctx, opts.OperationID, buf, opts.Uploader)
	if err != nil {
		_ = opts.Store.MarkFailed(opts.OperationID, fmt.Errorf("upload: %w", err), false)
		return
	}

	_ = opts.Store.MarkComplete(opts.OperationID, time.Since(started), timedOut, activeBehaviors, artefacts)
}

// runGrab launches a private browser (or attaches to opts.BrowserWS),
// drives the standard behavior set against opts.URL, and returns the
// JSONL stream the grab produced along with the behaviors that
// actually ran.
func runGrab(ctx context.Context, opts config.GrabOptions) (*bytes.Buffer, bool, []string, error) {
	var sup controller.Supervisor
	if opts.BrowserWS != "" {
		sup = devtools.NewPassthrough(ctx, opts.BrowserWS)
	} else {
		launched, err := devtools.Launch(ctx, opts.DevtoolsOptions(), nil)
		if err != nil {
			return nil, false, nil, err
		}
		sup = launched
	}

	var buf bytes.Buffer
	handler := warcsink.NewJSONLHandler(&buf)

	newBehaviors := func(eval behavior.Evaluator) []behavior.Behavior {
		return behavior.Standard(eval, opts.URL, behavior.DefaultClickConfig())
	}

	ctl := controller.New(opts.URL, opts.ControllerSettings(), []controller.Handler{handler}, newBehaviors, nil)
	if err := ctl.Run(ctx, sup); err != nil {
		return nil, false, nil, err
	}

	return &buf, ctl.TimedOut(), ctl.ActiveBehaviors(), nil
}

// uploadArtefacts uploads the JSONL stream a grab produced, gzipped,
// mirrored on crocoite's WARC writer always producing a ".warc.gz"
// member. Returns the artefact list ready to be stored on the
// operation.
func uploadArtefacts(ctx context.Context, operationID string, jsonl *bytes.Buffer, uploader storage.Uploader) ([]Artefact, error) {
	req := &storage.UploadRequest{
		ObjectName:  storage.ObjectName(operationID, "jsonl", time.Now(), true),
		Content:     jsonl,
		ContentType: storage.ContentTypeFor("jsonl"),
		Gzip:        true,
	}

	uploaded, err := uploader.Upload(ctx, req)
	if err != nil {
		return nil, err
	}

	return []Artefact{{
		Name:      "jsonl",
		SignedURL: uploaded.SignedURL,
		ExpiresAt: uploaded.ExpiresAt,
	}}, nil
}
