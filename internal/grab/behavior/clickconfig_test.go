package behavior

import "testing"

func TestParseClickConfig(t *testing.T) {
	doc := []byte("match: example\\.com\nselector:\n  - description: accept\n    selector: \"#accept\"\n  - description: dismiss\n    selector: \".dismiss\"\n")
	cfgs, err := ParseClickConfig(doc)
	if err != nil {
		t.Fatalf("ParseClickConfig() error = %v", err)
	}
	if len(cfgs) != 1 || cfgs[0].Match != "example\\.com" || len(cfgs[0].Selector) != 2 {
		t.Fatalf("ParseClickConfig() = %+v", cfgs)
	}
	if cfgs[0].Selector[0].Description != "accept" || cfgs[0].Selector[0].Selector != "#accept" {
		t.Fatalf("ParseClickConfig() selector[0] = %+v", cfgs[0].Selector[0])
	}
}

func TestSelectorsForRegexMatch(t *testing.T) {
	cfgs := []ClickConfig{
		{Match: ".*", Selector: []ClickSelector{{Selector: ".cookie"}}},
		{Match: "(^|\\.)example\\.com$", Selector: []ClickSelector{{Selector: "#accept"}}},
	}
	got := selectorsFor(cfgs, "example.com")
	if len(got) != 2 {
		t.Fatalf("selectorsFor(example.com) = %v, want 2 entries", got)
	}
	got = selectorsFor(cfgs, "other.com")
	if len(got) != 1 {
		t.Fatalf("selectorsFor(other.com) = %v, want 1 entry (wildcard only)", got)
	}
}

func TestSelectorsForInvalidRegexSkipped(t *testing.T) {
	cfgs := []ClickConfig{
		{Match: "(", Selector: []ClickSelector{{Selector: "#broken"}}},
		{Match: ".*", Selector: []ClickSelector{{Selector: "#fine"}}},
	}
	got := selectorsFor(cfgs, "example.com")
	if len(got) != 1 || got[0] != "#fine" {
		t.Fatalf("selectorsFor() = %v, want only #fine", got)
	}
}

func TestDefaultClickConfigParses(t *testing.T) {
	cfgs := DefaultClickConfig()
	if len(cfgs) == 0 {
		t.Fatal("DefaultClickConfig() returned no documents")
	}
}
