package behavior

import (
	"context"
	"math"
	"testing"

	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

// drain collects every event off ch until it closes.
func drain(ch <-chan model.Event) []model.Event {
	var out []model.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestScreenshotBandCountMatchesCeilingDivision(t *testing.T) {
	cases := []struct {
		name   string
		height int
	}{
		{"shorter than one band", 1080},
		{"exact multiple of maxDim", 2 * maxDim},
		{"remainder band", 20000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := &fakeEval{height: tc.height, width: 1920, url: "https://example.com"}
			s := NewScreenshot(eval)

			ch, err := s.OnFinish(context.Background())
			if err != nil {
				t.Fatalf("OnFinish() error = %v", err)
			}
			events := drain(ch)

			want := int(math.Ceil(float64(tc.height) / float64(maxDim)))
			if want == 0 {
				want = 1
			}
			if len(events) != want {
				t.Fatalf("got %d ScreenshotEvents, want %d (height=%d)", len(events), want, tc.height)
			}
			for i, ev := range events {
				se, ok := ev.(*model.ScreenshotEvent)
				if !ok {
					t.Fatalf("event %d is %T, want *model.ScreenshotEvent", i, ev)
				}
				if se.Index != i {
					t.Errorf("event %d has Index %d, want %d", i, se.Index, i)
				}
			}
			if eval.clearCalls != 1 {
				t.Errorf("ClearViewportOverride called %d times, want 1", eval.clearCalls)
			}
		})
	}
}
