package world

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/emberfall-mud/emberfall/pkg/lock"
)

// ChannelProto declares a chat channel: static content, read-only at runtime.
type ChannelProto struct {
	Key         string `yaml:"-"`
	Name        string `yaml:"name"`
	Alias       string `yaml:"alias"`
	Description string `yaml:"description"`

	JoinLock *lock.Lock `yaml:"join_lock"`
}

// Tables is the full set of prototype tables loaded from a content directory.
// Rebuilding and swapping a Tables value is always safe; it carries no
// runtime state.
type Tables struct {
	Rooms    map[string]*Prototype
	Items    map[string]*Prototype
	Channels map[string]*ChannelProto
}

type roomsFile struct {
	Rooms map[string]*Prototype `yaml:"rooms"`
}

type itemsFile struct {
	Items map[string]*Prototype `yaml:"items"`
}

type channelsFile struct {
	Channels map[string]*ChannelProto `yaml:"channels"`
}

// LoadContent reads rooms.yaml, items.yaml, and channels.yaml from dir,
// normalizes every prototype, and validates the result. Any inconsistency is
// a fatal content error: the caller is expected to refuse to start (or to
// discard a hot reload) when this returns an error.
func LoadContent(dir string) (*Tables, error) {
	t := &Tables{
		Rooms:    make(map[string]*Prototype),
		Items:    make(map[string]*Prototype),
		Channels: make(map[string]*ChannelProto),
	}

	var rf roomsFile
	if err := readYAML(filepath.Join(dir, "rooms.yaml"), &rf); err != nil {
		return nil, err
	}
	for key, p := range rf.Rooms {
		if p == nil {
			p = &Prototype{}
		}
		if err := p.finish(key, KindRoom); err != nil {
			return nil, err
		}
		t.Rooms[key] = p
	}

	var itf itemsFile
	if err := readYAML(filepath.Join(dir, "items.yaml"), &itf); err != nil {
		return nil, err
	}
	for key, p := range itf.Items {
		if p == nil {
			p = &Prototype{}
		}
		if err := p.finish(key, KindItem); err != nil {
			return nil, err
		}
		t.Items[key] = p
	}

	var cf channelsFile
	if err := readYAML(filepath.Join(dir, "channels.yaml"), &cf); err != nil {
		return nil, err
	}
	for key, c := range cf.Channels {
		if c == nil {
			c = &ChannelProto{}
		}
		c.Key = key
		if c.Name == "" {
			c.Name = key
		}
		t.Channels[key] = c
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// readYAML loads one content file; a missing file is an empty table, not an
// error, so small worlds can omit files.
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate enforces the fail-loud boot checks: dangling exits, dangling item
// start locations, duplicate channel aliases, malformed channel locks.
// Prototype-level lock and script validation already ran in finish.
func (t *Tables) Validate() error {
	for key, room := range t.Rooms {
		for dir, dest := range room.Exits {
			if _, ok := t.Rooms[dest]; !ok {
				return fmt.Errorf("room %q exit %q leads to unknown room %q", key, dir, dest)
			}
		}
	}

	for key, item := range t.Items {
		if item.Location == "" {
			continue
		}
		ref, err := ParseRef(item.Location)
		if err != nil {
			return fmt.Errorf("item %q location: %w", key, err)
		}
		if ref.Kind == KindRoom {
			if _, ok := t.Rooms[ref.ID]; !ok {
				return fmt.Errorf("item %q starts in unknown room %q", key, ref.ID)
			}
		}
	}

	seenAlias := make(map[string]string)
	for key, ch := range t.Channels {
		if ch.Alias != "" {
			if other, dup := seenAlias[ch.Alias]; dup {
				return fmt.Errorf("channels %q and %q share alias %q", other, key, ch.Alias)
			}
			seenAlias[ch.Alias] = key
		}
		if err := ch.JoinLock.Validate(); err != nil {
			return fmt.Errorf("channel %q: %w", key, err)
		}
	}
	return nil
}

// ValidateScripts checks every script reference in every prototype against
// the registry's known-name predicate. Run at boot after builtin scripts are
// registered.
func (t *Tables) ValidateScripts(known func(name string) bool) error {
	check := func(owner string, call ScriptCall) error {
		if call.Name != "" && !known(call.Name) {
			return fmt.Errorf("%s references unknown script %q", owner, call.Name)
		}
		return nil
	}
	for _, protos := range []map[string]*Prototype{t.Rooms, t.Items} {
		for key, p := range protos {
			owner := fmt.Sprintf("%s %q", p.Kind, key)
			for event, hooks := range p.Scripts {
				for _, h := range hooks {
					if err := check(owner+" scripts["+event+"]", h.Call); err != nil {
						return err
					}
				}
			}
			for i, ts := range p.TickScripts {
				if err := check(fmt.Sprintf("%s tick script %d", owner, i), ts.Call); err != nil {
					return err
				}
			}
			for i, ss := range p.ScheduledScripts {
				if err := check(fmt.Sprintf("%s scheduled script %d", owner, i), ss.Call); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// RoomKeys returns the room keys in sorted order, for deterministic sync.
func (t *Tables) RoomKeys() []string {
	keys := make([]string, 0, len(t.Rooms))
	for k := range t.Rooms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ItemKeys returns the item keys in sorted order.
func (t *Tables) ItemKeys() []string {
	keys := make([]string, 0, len(t.Items))
	for k := range t.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
