package behavior

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

//go:embed data/screenshot.js
var screenshotHeightScript []byte

// maxDim is the hardcoded texture-size ceiling Chrome imposes on a
// single captured surface (crbug/770769), mirrored verbatim on
// crocoite's behavior.py Screenshot.maxDim.
const maxDim = 16 * 1024

// Screenshot captures the full page height in vertical bands no taller
// than maxDim, mirrored on crocoite's behavior.py Screenshot.
type Screenshot struct {
	base
	eval Evaluator
}

// NewScreenshot constructs the Screenshot behavior.
func NewScreenshot(eval Evaluator) *Screenshot {
	return &Screenshot{eval: eval}
}

func (s *Screenshot) Name() string { return "screenshot" }

// OnFinish measures the page's full content height, overrides the
// viewport to that height in maxDim-tall bands, and captures one PNG
// per band.
func (s *Screenshot) OnFinish(ctx context.Context) (<-chan model.Event, error) {
	var contentHeight int
	if err := s.eval.EvaluateScript(ctx, string(screenshotHeightScript), &contentHeight); err != nil {
		return nil, fmt.Errorf("behavior screenshot: measure height: %w", err)
	}
	var contentWidth int
	if err := s.eval.EvaluateScript(ctx, "document.documentElement.scrollWidth", &contentWidth); err != nil {
		return nil, fmt.Errorf("behavior screenshot: measure width: %w", err)
	}
	if contentWidth <= 0 {
		contentWidth = 1920
	}
	if contentHeight <= 0 {
		contentHeight = 1080
	}

	url, err := s.eval.FrameURL(ctx)
	if err != nil {
		url = ""
	}

	out := make(chan model.Event, (contentHeight/maxDim)+1)
	index := 0
	for yoff := 0; yoff < contentHeight; yoff += maxDim {
		bandHeight := contentHeight - yoff
		if bandHeight > maxDim {
			bandHeight = maxDim
		}
		if err := s.eval.SetViewport(ctx, int64(contentWidth), int64(bandHeight), 1, false); err != nil {
			break
		}
		if err := s.eval.EvaluateScript(ctx, fmt.Sprintf("window.scrollTo(0, %d)", yoff), nil); err != nil {
			break
		}
		png, err := s.eval.CaptureScreenshot(ctx)
		if err != nil {
			continue
		}
		out <- &model.ScreenshotEvent{URL: url, YOff: yoff, Data: png, Index: index}
		index++
	}
	_ = s.eval.ClearViewportOverride(ctx)
	close(out)
	return out, nil
}
