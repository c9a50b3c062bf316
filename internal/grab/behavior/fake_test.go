package behavior

import "context"

// fakeEval is a scripted Evaluator used to unit test behaviors without a
// live browser, mirrored on the teacher's pattern of testing collector
// logic against recorded fixtures rather than a real tab.
type fakeEval struct {
	height int
	width  int
	links  []string
	url    string

	screenshots [][]byte
	shotIndex   int

	viewportCalls int
	clearCalls    int

	frames     map[string]string
	frameHTML  map[string]string
}

func (f *fakeEval) EvaluateScript(ctx context.Context, expr string, out any) error {
	switch v := out.(type) {
	case *int:
		if expr == "document.documentElement.scrollWidth" {
			*v = f.width
		} else {
			*v = f.height
		}
	case *[]string:
		*v = f.links
	case *string:
		*v = f.url
	}
	return nil
}

func (f *fakeEval) CallFunctionOn(ctx context.Context, objectID, fn string, args []any, out any) error {
	return nil
}

func (f *fakeEval) SetViewport(ctx context.Context, width, height int64, deviceScale float64, mobile bool) error {
	f.viewportCalls++
	return nil
}

func (f *fakeEval) ClearViewportOverride(ctx context.Context) error {
	f.clearCalls++
	return nil
}

func (f *fakeEval) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	i := f.shotIndex
	f.shotIndex++
	if i < len(f.screenshots) {
		return f.screenshots[i], nil
	}
	return []byte("png"), nil
}

func (f *fakeEval) OuterHTML(ctx context.Context) (string, error) {
	return "<html></html>", nil
}

func (f *fakeEval) FrameURL(ctx context.Context) (string, error) {
	return f.url, nil
}

func (f *fakeEval) ListFrames(ctx context.Context) (map[string]string, error) {
	return f.frames, nil
}

func (f *fakeEval) FrameOuterHTML(ctx context.Context, frameID string) (string, error) {
	if html, ok := f.frameHTML[frameID]; ok {
		return html, nil
	}
	return "<html></html>", nil
}
