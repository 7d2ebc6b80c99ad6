// Package game wires the engine together: content tables, the live world,
// the script registry, the event hub, both state tiers, and the scheduler.
// It owns the canonical action path every player-facing mutation goes
// through: lock check, before hooks, mutation, after hooks.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/emberfall-mud/emberfall/pkg/event"
	"github.com/emberfall-mud/emberfall/pkg/lock"
	"github.com/emberfall-mud/emberfall/pkg/sched"
	"github.com/emberfall-mud/emberfall/pkg/script"
	"github.com/emberfall-mud/emberfall/pkg/state"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// ActionStoppedError reports an action stopped by a lock or a before-phase
// hook. Message is the player-facing denial text, already delivered to the
// actor's session.
type ActionStoppedError struct {
	Message string
}

func (e *ActionStoppedError) Error() string { return e.Message }

// Game is the assembled engine.
type Game struct {
	cfg Config

	W         *world.World
	Reg       *script.Registry
	Hub       *event.Hub
	Eval      *lock.Evaluator
	State     *state.Persistent
	Transient *state.Transient
	Store     *state.EntityStore
	Msg       *SessionMessenger
	Sched     *sched.Scheduler
	Channels  *Channels
	Metrics   *Metrics

	stopWatch   func()
	stopJanitor func()
}

// New loads content, restores persisted entities, and wires every subsystem.
// Content errors are fatal here: a world that fails validation never boots.
func New(cfg Config) (*Game, error) {
	tables, err := world.LoadContent(cfg.ContentDir)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	w := world.New(tables)
	if err := w.Sync(); err != nil {
		return nil, fmt.Errorf("syncing world: %w", err)
	}

	reg := script.NewRegistry()
	RegisterBuiltins(reg)
	if err := tables.ValidateScripts(reg.Known); err != nil {
		return nil, fmt.Errorf("validating content scripts: %w", err)
	}

	store, err := state.OpenEntityStore(cfg.WorldDBPath())
	if err != nil {
		return nil, err
	}
	transient, err := state.OpenTransient(cfg.TransientDBPath())
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := store.LoadInto(w); err != nil {
		store.Close()
		transient.Close()
		return nil, fmt.Errorf("restoring entities: %w", err)
	}

	var roles *lock.Roles
	if len(cfg.Roles) > 0 {
		roles = lock.NewRoles(cfg.Roles...)
	}

	g := &Game{
		cfg:       cfg,
		W:         w,
		Reg:       reg,
		Eval:      lock.NewEvaluator(roles),
		State:     state.NewPersistent(),
		Transient: transient,
		Store:     store,
	}
	g.Msg = NewSessionMessenger(w)
	g.Metrics = NewMetrics(g.Msg)
	g.Hub = event.New(reg, event.Deps{
		World:     w,
		Msg:       g.Msg,
		State:     g.State,
		Transient: transient,
	})
	g.Hub.Subscribe(g.Metrics.Observer())
	g.Channels = NewChannels(w, g.Eval, g.Msg)
	g.Sched = sched.New(w, reg, store, sched.Deps{
		Msg:       g.Msg,
		State:     g.State,
		Transient: transient,
	}, g.Msg, cfg.schedConfig())
	g.Sched.OnPulse = g.Metrics.Pulse
	g.Sched.OnCalendar = g.Metrics.Calendar
	return g, nil
}

// Start launches the scheduler, the transient janitor, and, when configured,
// the content watcher.
func (g *Game) Start() error {
	g.Sched.Start()
	g.stopJanitor = g.Transient.StartJanitor(g.cfg.JanitorInterval())
	if g.cfg.WatchContent {
		stop, err := g.W.Watch(g.cfg.ContentDir)
		if err != nil {
			return fmt.Errorf("watching content: %w", err)
		}
		g.stopWatch = stop
	}
	return nil
}

// Shutdown stops background work and flushes every dirty entity.
func (g *Game) Shutdown() {
	if g.stopWatch != nil {
		g.stopWatch()
	}
	if g.stopJanitor != nil {
		g.stopJanitor()
	}
	if g.Sched != nil {
		g.Sched.Shutdown()
	}
	if err := g.Store.SaveDirty(g.W); err != nil {
		log.Printf("GAME: final save: %v", err)
	}
	g.Transient.Close()
	g.Store.Close()
}

// DefaultRoom resolves the configured starting room, falling back to the
// first room key.
func (g *Game) DefaultRoom() (string, error) {
	if g.cfg.DefaultRoom != "" {
		return g.cfg.DefaultRoom, nil
	}
	keys := g.W.Tables().RoomKeys()
	if len(keys) == 0 {
		return "", errors.New("no rooms in content")
	}
	return keys[0], nil
}

// Connect attaches a session to a character, creating the character on first
// connect.
func (g *Game) Connect(id, name, role string, sink Sink) (*world.Character, error) {
	c, ok := g.W.Character(id)
	if !ok {
		roomKey, err := g.DefaultRoom()
		if err != nil {
			return nil, err
		}
		c, err = g.W.CreateCharacter(id, name, role, roomKey)
		if err != nil {
			return nil, err
		}
	}
	g.Msg.Attach(id, sink)
	return c, nil
}

// Disconnect detaches a character's session. The character and its state stay
// in the world.
func (g *Game) Disconnect(id string) {
	g.Msg.Detach(id)
}

// Action is one player-initiated operation routed through the canonical path.
type Action struct {
	Name   string // event name, also the default lock access type
	Actor  *world.Character
	Target world.Entity

	// AccessType overrides the lock access type when it differs from the
	// event name.
	AccessType string

	// Args is runtime context merged into each hook's call.
	Args map[string]any

	// Mutate applies the action's world change once the gates pass.
	Mutate func() error
}

// Perform runs the canonical action path: the target's lock, the before
// hooks, the mutation, the after hooks. Denials and cancellations are
// delivered to the actor and returned as *ActionStoppedError; mutation errors
// propagate untouched and skip the after phase.
func (g *Game) Perform(ctx context.Context, a Action) error {
	room, _ := g.W.RoomOf(a.Actor)

	if a.Target != nil {
		if proto := a.Target.Proto(); proto != nil && !proto.Lock.IsZero() {
			access := a.AccessType
			if access == "" {
				access = a.Name
			}
			passed, denial := g.Eval.Evaluate(g.W.Subject(a.Actor), proto.Lock, access)
			if !passed {
				g.tell(a.Actor, denial)
				return &ActionStoppedError{Message: denial}
			}
		}
	}

	inv := event.Invocation{Actor: a.Actor, Target: a.Target, Room: room, Args: a.Args}
	if res := g.Hub.Before(ctx, a.Name, inv); res.CancelAction {
		g.tell(a.Actor, res.Message)
		return &ActionStoppedError{Message: res.Message}
	}

	if a.Mutate != nil {
		if err := a.Mutate(); err != nil {
			log.Printf("GAME: %s performing %q: %v", a.Actor.Ref(), a.Name, err)
			g.tell(a.Actor, "Something went wrong.")
			return err
		}
	}

	g.Hub.After(ctx, a.Name, inv)
	return nil
}

// TakeItem picks an item up from the actor's room.
func (g *Game) TakeItem(ctx context.Context, actor *world.Character, itemID string) error {
	it, ok := g.W.Item(itemID)
	if !ok {
		return fmt.Errorf("no item %q", itemID)
	}
	if it.Location != world.RoomRef(actor.RoomKey) {
		return fmt.Errorf("%q is not here", itemID)
	}
	return g.Perform(ctx, Action{
		Name:   "get",
		Actor:  actor,
		Target: it,
		Mutate: func() error { return g.W.MoveItem(itemID, actor.Ref()) },
	})
}

// DropItem puts a held item down in the actor's room.
func (g *Game) DropItem(ctx context.Context, actor *world.Character, itemID string) error {
	it, ok := g.W.Item(itemID)
	if !ok {
		return fmt.Errorf("no item %q", itemID)
	}
	if it.Location != actor.Ref() {
		return fmt.Errorf("you are not holding %q", itemID)
	}
	return g.Perform(ctx, Action{
		Name:   "drop",
		Actor:  actor,
		Target: it,
		Mutate: func() error { return g.W.MoveItem(itemID, world.RoomRef(actor.RoomKey)) },
	})
}

// Move walks the actor through an exit. The destination room's lock is
// checked under the "enter" access type; leave hooks on the old room and
// enter hooks on the new one both get a veto.
func (g *Game) Move(ctx context.Context, actor *world.Character, direction string) error {
	from, ok := g.W.Room(actor.RoomKey)
	if !ok {
		return fmt.Errorf("character %q is nowhere", actor.Ref().ID)
	}
	destKey, ok := from.Proto().Exits[direction]
	if !ok {
		return fmt.Errorf("no exit %q", direction)
	}
	dest, ok := g.W.Room(destKey)
	if !ok {
		return fmt.Errorf("exit %q leads nowhere", direction)
	}

	if !dest.Proto().Lock.IsZero() {
		passed, denial := g.Eval.Evaluate(g.W.Subject(actor), dest.Proto().Lock, "enter")
		if !passed {
			g.tell(actor, denial)
			return &ActionStoppedError{Message: denial}
		}
	}

	args := map[string]any{"direction": direction, "from": from.Ref().ID, "to": destKey}
	leave := event.Invocation{Actor: actor, Target: from, Room: from, Args: args}
	if res := g.Hub.Before(ctx, "leave", leave); res.CancelAction {
		g.tell(actor, res.Message)
		return &ActionStoppedError{Message: res.Message}
	}
	enter := event.Invocation{Actor: actor, Target: dest, Room: dest, Args: args}
	if res := g.Hub.Before(ctx, "enter", enter); res.CancelAction {
		g.tell(actor, res.Message)
		return &ActionStoppedError{Message: res.Message}
	}

	if err := g.W.MoveCharacter(actor.Ref().ID, destKey); err != nil {
		return err
	}

	g.Hub.After(ctx, "leave", leave)
	g.Hub.After(ctx, "enter", enter)
	return nil
}

// CommandSets returns the command sets granted by the items the character
// holds, deduplicated and sorted.
func (g *Game) CommandSets(c *world.Character) []string {
	seen := make(map[string]bool)
	var sets []string
	for _, it := range g.W.ItemsHeldBy(c.Ref().ID) {
		for _, s := range it.Proto().GrantsCommandSets {
			if !seen[s] {
				seen[s] = true
				sets = append(sets, s)
			}
		}
	}
	sort.Strings(sets)
	return sets
}

// tell delivers a line to the actor, ignoring a missing session.
func (g *Game) tell(c *world.Character, text string) {
	if c == nil || text == "" {
		return
	}
	if err := g.Msg.SendToCharacter(c, text); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("GAME: telling %s: %v", c.Ref(), err)
	}
}
