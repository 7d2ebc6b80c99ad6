package world

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emberfall-mud/emberfall/pkg/lock"
)

// Phase names used by structured script records.
const (
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

// CategoryAmbient marks proactive scripts that only run for characters who
// are currently online, to avoid wasted work on idle sessions.
const CategoryAmbient = "ambient"

// ScriptCall is a validated reference to a named global script with its
// arguments, parsed once at content-load time. The reference string is never
// evaluated as code; the name is resolved against a closed registry.
type ScriptCall struct {
	Name string
	Args map[string]any
}

// ParseScriptCall parses "name" or "name(key=value, key=value)". Values are
// decoded as bool, int, or float when they look like one, else as strings
// (surrounding single or double quotes are stripped; quoted values may
// contain commas).
func ParseScriptCall(s string) (ScriptCall, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ScriptCall{}, fmt.Errorf("empty script reference")
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if !validScriptName(s) {
			return ScriptCall{}, fmt.Errorf("bad script name %q", s)
		}
		return ScriptCall{Name: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return ScriptCall{}, fmt.Errorf("unterminated argument list in %q", s)
	}
	name := strings.TrimSpace(s[:open])
	if !validScriptName(name) {
		return ScriptCall{}, fmt.Errorf("bad script name %q", name)
	}
	call := ScriptCall{Name: name, Args: map[string]any{}}
	body := strings.TrimSpace(s[open+1 : len(s)-1])
	if body == "" {
		return call, nil
	}
	parts, err := splitArgs(body)
	if err != nil {
		return ScriptCall{}, fmt.Errorf("%v in %q", err, s)
	}
	for _, part := range parts {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return ScriptCall{}, fmt.Errorf("argument %q in %q is not key=value", strings.TrimSpace(part), s)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return ScriptCall{}, fmt.Errorf("empty argument name in %q", s)
		}
		call.Args[key] = decodeArg(strings.TrimSpace(val))
	}
	return call, nil
}

// splitArgs splits an argument body on commas, leaving commas inside single-
// or double-quoted values alone.
func splitArgs(body string) ([]string, error) {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ',':
			parts = append(parts, body[start:i])
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	return append(parts, body[start:]), nil
}

func validScriptName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func decodeArg(v string) any {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// Hook is the canonical form of one entity-declared event script. All three
// legacy declaration shapes normalize to this.
type Hook struct {
	Call          ScriptCall
	Priority      int
	Phase         string // "before", "after", or "" for any phase
	CancelMessage string
}

// hookRecord is the structured YAML form of a hook.
type hookRecord struct {
	Script        string `yaml:"script"`
	Priority      int    `yaml:"priority"`
	Phase         string `yaml:"phase"`
	CancelMessage string `yaml:"cancel_message"`
}

// TickScript is a fixed-interval proactive behavior declaration.
type TickScript struct {
	IntervalTicks uint64 `yaml:"interval_ticks"`
	Script        string `yaml:"script"`
	Category      string `yaml:"category"`
	Permanent     bool   `yaml:"permanent"`

	Call ScriptCall `yaml:"-"`
}

// ScheduledScript is a calendar-based proactive behavior declaration.
type ScheduledScript struct {
	Schedule  string `yaml:"schedule"`
	Script    string `yaml:"script"`
	Permanent bool   `yaml:"permanent"`
	Global    bool   `yaml:"global"`
	Category  string `yaml:"category"`

	Call ScriptCall `yaml:"-"`
}

// Prototype is an immutable content template. Instances reference it; the
// engine never writes to it after load.
type Prototype struct {
	Key  string `yaml:"-"`
	Kind Kind   `yaml:"-"`

	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`

	Lock         *lock.Lock        `yaml:"lock"`
	LockMessages map[string]string `yaml:"lock_messages"`

	RawScripts       map[string]yaml.Node `yaml:"scripts"`
	TickScripts      []TickScript         `yaml:"tick_scripts"`
	ScheduledScripts []ScheduledScript    `yaml:"scheduled_scripts"`

	GrantsCommandSets []string `yaml:"grants_command_sets"`

	// Room-only: exit direction -> room key.
	Exits map[string]string `yaml:"exits"`
	// Item-only: starting location, "room:key" or "character:id".
	Location string `yaml:"location"`

	// Canonical normalized scripts, built at load time.
	Scripts map[string][]Hook `yaml:"-"`
}

// finish normalizes a freshly unmarshalled prototype: script hooks to the
// canonical form, script-reference strings to ScriptCalls, and lock messages
// attached to the lock.
func (p *Prototype) finish(key string, kind Kind) error {
	p.Key = key
	p.Kind = kind

	if p.Lock == nil && len(p.LockMessages) > 0 {
		p.Lock = &lock.Lock{}
	}
	if p.Lock != nil {
		p.Lock.Messages = p.LockMessages
		if err := p.Lock.Validate(); err != nil {
			return fmt.Errorf("%s %q: %w", kind, key, err)
		}
	}

	scripts, err := normalizeScripts(p.RawScripts)
	if err != nil {
		return fmt.Errorf("%s %q: %w", kind, key, err)
	}
	p.Scripts = scripts
	p.RawScripts = nil

	for i := range p.TickScripts {
		ts := &p.TickScripts[i]
		if ts.Script == "" || ts.IntervalTicks == 0 {
			continue // skipped at runtime, not a boot error
		}
		call, err := ParseScriptCall(ts.Script)
		if err != nil {
			return fmt.Errorf("%s %q tick script %d: %w", kind, key, i, err)
		}
		ts.Call = call
	}
	for i := range p.ScheduledScripts {
		ss := &p.ScheduledScripts[i]
		if ss.Script == "" {
			return fmt.Errorf("%s %q scheduled script %d: missing script", kind, key, i)
		}
		call, err := ParseScriptCall(ss.Script)
		if err != nil {
			return fmt.Errorf("%s %q scheduled script %d: %w", kind, key, i, err)
		}
		ss.Call = call
	}
	return nil
}

// normalizeScripts converts the three legacy declaration shapes into the
// canonical []Hook form:
//
//	(a) a single string             -> one hook, priority 0, any phase
//	(b) a list of strings           -> same, list order = declaration order
//	(c) a list of structured records -> explicit priority/phase/cancel_message
func normalizeScripts(raw map[string]yaml.Node) (map[string][]Hook, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string][]Hook, len(raw))
	for event, node := range raw {
		hooks, err := normalizeHookNode(&node)
		if err != nil {
			return nil, fmt.Errorf("scripts[%s]: %w", event, err)
		}
		out[event] = hooks
	}
	return out, nil
}

func normalizeHookNode(node *yaml.Node) ([]Hook, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var ref string
		if err := node.Decode(&ref); err != nil {
			return nil, err
		}
		call, err := ParseScriptCall(ref)
		if err != nil {
			return nil, err
		}
		return []Hook{{Call: call}}, nil

	case yaml.SequenceNode:
		var hooks []Hook
		for i := range node.Content {
			item := node.Content[i]
			switch item.Kind {
			case yaml.ScalarNode:
				var ref string
				if err := item.Decode(&ref); err != nil {
					return nil, err
				}
				call, err := ParseScriptCall(ref)
				if err != nil {
					return nil, err
				}
				hooks = append(hooks, Hook{Call: call})
			case yaml.MappingNode:
				var rec hookRecord
				if err := item.Decode(&rec); err != nil {
					return nil, err
				}
				if rec.Phase != "" && rec.Phase != PhaseBefore && rec.Phase != PhaseAfter {
					return nil, fmt.Errorf("bad phase %q", rec.Phase)
				}
				call, err := ParseScriptCall(rec.Script)
				if err != nil {
					return nil, err
				}
				hooks = append(hooks, Hook{
					Call:          call,
					Priority:      rec.Priority,
					Phase:         rec.Phase,
					CancelMessage: rec.CancelMessage,
				})
			default:
				return nil, fmt.Errorf("script entries must be strings or records")
			}
		}
		return hooks, nil
	}
	return nil, fmt.Errorf("scripts value must be a string or a list")
}

// HooksFor returns the hooks declared for an event name, filtered to the
// requested phase and sorted by priority descending. Ties keep declaration
// order. Hooks may be declared under the plain event name (phase carried per
// record) or under a phase-bound key like "before_get"; both resolve here.
func (p *Prototype) HooksFor(eventName, phase string) []Hook {
	if p == nil || len(p.Scripts) == 0 {
		return nil
	}
	var hooks []Hook
	for _, h := range p.Scripts[eventName] {
		if h.Phase == "" || h.Phase == phase {
			hooks = append(hooks, h)
		}
	}
	// The key itself binds the phase; record-level phases are ignored there.
	hooks = append(hooks, p.Scripts[phase+"_"+eventName]...)
	if len(hooks) == 0 {
		return nil
	}
	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority > hooks[j].Priority
	})
	return hooks
}
