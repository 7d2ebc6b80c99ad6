package world

import (
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseScriptCall(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		args    map[string]any
		wantErr bool
	}{
		{in: "heal", name: "heal"},
		{in: "give_coins(amount=5)", name: "give_coins", args: map[string]any{"amount": 5}},
		{in: "spawn(item=brass_key, loud=true)", name: "spawn", args: map[string]any{"item": "brass_key", "loud": true}},
		{in: `announce(text="hello there")`, name: "announce", args: map[string]any{"text": "hello there"}},
		{in: `notify(message='One, two')`, name: "notify", args: map[string]any{"message": "One, two"}},
		{in: `post(text="a, b", loud=true)`, name: "post", args: map[string]any{"text": "a, b", "loud": true}},
		{in: "weigh(kg=1.5)", name: "weigh", args: map[string]any{"kg": 1.5}},
		{in: "bad name(x=1)", wantErr: true},
		{in: "nope(open", wantErr: true},
		{in: `nope(text='open)`, wantErr: true},
		{in: "nope(positional)", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		call, err := ParseScriptCall(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseScriptCall(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseScriptCall(%q): %v", tt.in, err)
			continue
		}
		if call.Name != tt.name {
			t.Errorf("ParseScriptCall(%q): name %q, want %q", tt.in, call.Name, tt.name)
		}
		if tt.args != nil && !reflect.DeepEqual(call.Args, tt.args) {
			t.Errorf("ParseScriptCall(%q): args %#v, want %#v", tt.in, call.Args, tt.args)
		}
	}
}

func protoFromYAML(t *testing.T, kind Kind, src string) *Prototype {
	t.Helper()
	var p Prototype
	if err := yaml.Unmarshal([]byte(src), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := p.finish("test", kind); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return &p
}

func TestNormalizeScriptsStringShorthand(t *testing.T) {
	p := protoFromYAML(t, KindItem, `
name: a bell
scripts:
  after_on_look: ring_bell
`)
	hooks := p.HooksFor("after_on_look", PhaseAfter)
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}
	if hooks[0].Call.Name != "ring_bell" || hooks[0].Priority != 0 {
		t.Errorf("unexpected hook %+v", hooks[0])
	}
	// Legacy shorthand runs in whatever phase is requested.
	if got := p.HooksFor("after_on_look", PhaseBefore); len(got) != 1 {
		t.Errorf("shorthand hook should match any phase, got %d", len(got))
	}
}

func TestNormalizeScriptsListOfStrings(t *testing.T) {
	p := protoFromYAML(t, KindItem, `
scripts:
  before_on_get:
    - first_check
    - second_check
`)
	hooks := p.HooksFor("before_on_get", PhaseBefore)
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].Call.Name != "first_check" || hooks[1].Call.Name != "second_check" {
		t.Errorf("declaration order not preserved: %+v", hooks)
	}
}

func TestNormalizeScriptsStructuredRecords(t *testing.T) {
	p := protoFromYAML(t, KindItem, `
scripts:
  before_on_get:
    - script: deny_if_cursed
      priority: 10
      phase: before
      cancel_message: "It burns your hand!"
    - script: log_touch
      priority: 5
      phase: after
`)
	before := p.HooksFor("before_on_get", PhaseBefore)
	if len(before) != 1 {
		t.Fatalf("expected 1 before hook, got %d", len(before))
	}
	if before[0].CancelMessage != "It burns your hand!" {
		t.Errorf("cancel message %q", before[0].CancelMessage)
	}
	after := p.HooksFor("before_on_get", PhaseAfter)
	if len(after) != 1 || after[0].Call.Name != "log_touch" {
		t.Errorf("phase filtering wrong: %+v", after)
	}
}

func TestHooksForPriorityOrder(t *testing.T) {
	p := protoFromYAML(t, KindItem, `
scripts:
  before_on_get:
    - script: mid
      priority: 5
    - script: high
      priority: 10
    - script: low
      priority: 0
    - script: mid_two
      priority: 5
`)
	hooks := p.HooksFor("before_on_get", PhaseBefore)
	got := make([]string, len(hooks))
	for i, h := range hooks {
		got[i] = h.Call.Name
	}
	want := []string{"high", "mid", "mid_two", "low"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order %v, want %v", got, want)
	}
}

func TestFinishRejectsBadPhase(t *testing.T) {
	var p Prototype
	src := `
scripts:
  before_on_get:
    - script: x
      phase: during
`
	if err := yaml.Unmarshal([]byte(src), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := p.finish("bad", KindItem); err == nil {
		t.Error("expected error for unknown phase")
	}
}

func TestHooksForPhaseBoundKey(t *testing.T) {
	p := protoFromYAML(t, KindItem, `
scripts:
  before_get: warn_thief
  get:
    - script: deny_if_cursed
      priority: 10
      phase: before
`)
	hooks := p.HooksFor("get", PhaseBefore)
	got := make([]string, len(hooks))
	for i, h := range hooks {
		got[i] = h.Call.Name
	}
	// Both declaration styles resolve; priority still orders them.
	want := []string{"deny_if_cursed", "warn_thief"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("hooks = %v, want %v", got, want)
	}
	if after := p.HooksFor("get", PhaseAfter); len(after) != 0 {
		t.Errorf("phase-bound key leaked into after phase: %+v", after)
	}
}

func TestHooksForNoScripts(t *testing.T) {
	p := &Prototype{Key: "plain", Kind: KindItem}
	if got := p.HooksFor("before_on_get", PhaseBefore); got != nil {
		t.Errorf("expected nil hooks, got %v", got)
	}
}
