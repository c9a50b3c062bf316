package controller

import (
	"context"
	"testing"

	"github.com/tomasbasham/grab-engine/internal/grab/behavior"
	"github.com/tomasbasham/grab-engine/internal/grab/model"
)

type fakeBehavior struct {
	name    string
	matches bool
}

func (f fakeBehavior) Name() string             { return f.name }
func (f fakeBehavior) Matches(string) bool      { return f.matches }
func (f fakeBehavior) OnLoad(context.Context) (<-chan model.Event, error) {
	ch := make(chan model.Event)
	close(ch)
	return ch, nil
}
func (f fakeBehavior) OnStop(context.Context) (<-chan model.Event, error) {
	ch := make(chan model.Event)
	close(ch)
	return ch, nil
}
func (f fakeBehavior) OnFinish(context.Context) (<-chan model.Event, error) {
	ch := make(chan model.Event)
	close(ch)
	return ch, nil
}

func TestEnabledBehaviorsFiltersByNameAndMatch(t *testing.T) {
	c := &Controller{
		url: "https://example.com",
		settings: Settings{
			Behaviors: []string{"scroll", "click"},
		},
	}

	all := []behavior.Behavior{
		fakeBehavior{name: "scroll", matches: true},
		fakeBehavior{name: "click", matches: false}, // excluded: does not match url
		fakeBehavior{name: "screenshot", matches: true}, // excluded: not requested
	}

	got := c.enabledBehaviors(all)
	if len(got) != 1 || got[0].Name() != "scroll" {
		t.Fatalf("enabledBehaviors() = %v, want only [scroll]", behaviorNames(got))
	}
}

func TestEnabledBehaviorsDefaultsToAllMatching(t *testing.T) {
	c := &Controller{url: "https://example.com"}
	all := []behavior.Behavior{
		fakeBehavior{name: "scroll", matches: true},
		fakeBehavior{name: "click", matches: false},
	}
	got := c.enabledBehaviors(all)
	if len(got) != 1 || got[0].Name() != "scroll" {
		t.Fatalf("enabledBehaviors() = %v, want only [scroll]", behaviorNames(got))
	}
}
