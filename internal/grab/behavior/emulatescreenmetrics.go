package behavior

import (
	"context"
	"time"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// screenMetric is one device profile EmulateScreenMetrics cycles
// through, mirrored verbatim on crocoite's behavior.py
// EmulateScreenMetrics.sizes: three desktop DPRs (1.5x/2x/4x) and two
// mobile viewports (iPhone1 and iPhone6 portrait).
type screenMetric struct {
	width, height int64
	deviceScale   float64
	mobile        bool
}

var screenMetrics = []screenMetric{
	{1920, 1080, 1.5, false},
	{1920, 1080, 2, false},
	{1920, 1080, 4, false},
	{320, 480, 163.0 / 96.0, true},
	{750, 1334, 326.0 / 96.0, true},
}

// EmulateScreenMetrics cycles the page through a fixed set of device
// metric overrides during STOPPING (as an OnStop hook) so pages that render
// differently per viewport/DPR are captured at each, mirrored on
// crocoite's behavior.py EmulateScreenMetrics (an onstop-only
// behavior).
type EmulateScreenMetrics struct {
	base
	eval Evaluator
}

// NewEmulateScreenMetrics constructs the behavior.
func NewEmulateScreenMetrics(eval Evaluator) *EmulateScreenMetrics {
	return &EmulateScreenMetrics{eval: eval}
}

func (e *EmulateScreenMetrics) Name() string { return "emulateScreenMetrics" }

// OnStop cycles through every configured metric, pausing 1s at each so
// responsive layout and lazy-loaded assets have a chance to settle,
// then clears the override.
func (e *EmulateScreenMetrics) OnStop(ctx context.Context) (<-chan model.Event, error) {
metrics:
	for _, m := range screenMetrics {
		if err := e.eval.SetViewport(ctx, m.width, m.height, m.deviceScale, m.mobile); err != nil {
			continue
		}
		select {
		case <-time.After(1 * time.Second):
		case <-ctx.Done():
			break metrics
		}
	}
	_ = e.eval.ClearViewportOverride(ctx)
	return closedEmpty(), nil
}
