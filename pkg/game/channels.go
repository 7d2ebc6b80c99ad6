package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/emberfall-mud/emberfall/pkg/lock"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// ErrNoChannel is returned when a channel name or alias resolves to nothing.
var ErrNoChannel = errors.New("no such channel")

// Channels tracks chat channel membership. The channel definitions themselves
// are content; only the membership sets live here.
type Channels struct {
	w    *world.World
	eval *lock.Evaluator
	msg  *SessionMessenger

	mu      sync.RWMutex
	members map[string]map[string]bool // channel key -> character IDs
}

func NewChannels(w *world.World, eval *lock.Evaluator, msg *SessionMessenger) *Channels {
	return &Channels{w: w, eval: eval, msg: msg, members: make(map[string]map[string]bool)}
}

// resolve finds a channel by key or alias.
func (cs *Channels) resolve(name string) (*world.ChannelProto, bool) {
	tables := cs.w.Tables()
	if ch, ok := tables.Channels[name]; ok {
		return ch, true
	}
	for _, ch := range tables.Channels {
		if ch.Alias != "" && ch.Alias == name {
			return ch, true
		}
	}
	return nil, false
}

// Join adds a character to a channel after its join lock passes.
func (cs *Channels) Join(c *world.Character, name string) error {
	ch, ok := cs.resolve(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoChannel, name)
	}
	if !ch.JoinLock.IsZero() {
		passed, denial := cs.eval.Evaluate(cs.w.Subject(c), ch.JoinLock, "join")
		if !passed {
			return &ActionStoppedError{Message: denial}
		}
	}
	cs.mu.Lock()
	if cs.members[ch.Key] == nil {
		cs.members[ch.Key] = make(map[string]bool)
	}
	cs.members[ch.Key][c.Ref().ID] = true
	cs.mu.Unlock()
	return nil
}

// Leave removes a character from a channel.
func (cs *Channels) Leave(c *world.Character, name string) error {
	ch, ok := cs.resolve(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoChannel, name)
	}
	cs.mu.Lock()
	delete(cs.members[ch.Key], c.Ref().ID)
	cs.mu.Unlock()
	return nil
}

// IsMember reports channel membership by channel key.
func (cs *Channels) IsMember(c *world.Character, key string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.members[key][c.Ref().ID]
}

// Members returns a channel's member IDs, sorted.
func (cs *Channels) Members(key string) []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	ids := make([]string, 0, len(cs.members[key]))
	for id := range cs.members[key] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast sends a line to every connected member of a channel. The sender
// must be a member; disconnected members are skipped.
func (cs *Channels) Broadcast(from *world.Character, name, text string) error {
	ch, ok := cs.resolve(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoChannel, name)
	}
	if !cs.IsMember(from, ch.Key) {
		return &ActionStoppedError{Message: "You are not on that channel."}
	}
	line := fmt.Sprintf("[%s] %s: %s", ch.Name, from.Name, text)
	for _, id := range cs.Members(ch.Key) {
		member, ok := cs.w.Character(id)
		if !ok {
			continue
		}
		if err := cs.msg.SendToCharacter(member, line); err != nil && !errors.Is(err, ErrNotConnected) {
			return err
		}
	}
	return nil
}
