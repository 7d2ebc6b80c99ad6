// Package event implements the trigger hub that runs entity-declared script
// hooks around game actions. Every action fires a before phase, where a hook
// may cancel it, and an after phase, which is purely reactive.
package event

import (
	"context"
	"log"
	"sync"

	"github.com/emberfall-mud/emberfall/pkg/script"
	"github.com/emberfall-mud/emberfall/pkg/state"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// DefaultCancelMessage is shown when a before-phase hook cancels an action
// without declaring its own message.
const DefaultCancelMessage = "Something prevents you."

// Result is the outcome of a trigger phase. CancelAction is only ever set by
// a before phase; an after phase cannot stop anything.
type Result struct {
	CancelAction bool
	Message      string
}

// Invocation names the participants of one triggered action. Args carries
// runtime context (direction of movement, amount, and so on) merged into each
// hook's call; content-declared arguments win on collision.
type Invocation struct {
	Actor  *world.Character
	Target world.Entity
	Room   *world.Room
	Args   map[string]any
}

// Notice describes one executed hook, delivered to observers. Used for
// metrics; observers must not block.
type Notice struct {
	Event    string
	Phase    string
	Target   world.Ref
	Script   string
	Canceled bool
	Err      error
}

// Observer receives a Notice after every hook execution.
type Observer func(Notice)

// GlobalHook runs ahead of the target's own hooks on every trigger. Global
// hooks observe; they cannot cancel and their panics or side effects never
// reach the action path.
type GlobalHook func(ctx context.Context, eventName, phase string, inv Invocation)

// Deps are the ambient objects handed to every executed script.
type Deps struct {
	World     *world.World
	Msg       script.Messenger
	State     *state.Persistent
	Transient *state.Transient
}

// Hub resolves an event against the target's prototype hooks and executes
// them in priority order through the script registry.
type Hub struct {
	reg  *script.Registry
	deps Deps

	mu        sync.RWMutex
	observers []Observer
	globals   []GlobalHook
}

// New creates a hub backed by the given registry.
func New(reg *script.Registry, deps Deps) *Hub {
	return &Hub{reg: reg, deps: deps}
}

// Subscribe registers an observer for hook executions.
func (h *Hub) Subscribe(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, obs)
}

// AddGlobal registers a hook that runs first on every trigger.
func (h *Hub) AddGlobal(fn GlobalHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globals = append(h.globals, fn)
}

// Before runs the before phase of an event. A hook returning false cancels
// the action and short-circuits the remaining hooks; a hook that errors is
// logged and skipped, it never cancels.
func (h *Hub) Before(ctx context.Context, eventName string, inv Invocation) Result {
	return h.trigger(ctx, eventName, world.PhaseBefore, inv)
}

// After runs the after phase of an event. Hook errors are isolated: each is
// logged and the rest still run.
func (h *Hub) After(ctx context.Context, eventName string, inv Invocation) {
	h.trigger(ctx, eventName, world.PhaseAfter, inv)
}

func (h *Hub) trigger(ctx context.Context, eventName, phase string, inv Invocation) Result {
	if inv.Target == nil {
		return Result{}
	}
	h.runGlobals(ctx, eventName, phase, inv)

	hooks := inv.Target.Proto().HooksFor(eventName, phase)
	if len(hooks) == 0 {
		return Result{}
	}

	env := &script.Env{
		Actor:     inv.Actor,
		Target:    inv.Target,
		Room:      inv.Room,
		World:     h.deps.World,
		Msg:       h.deps.Msg,
		State:     h.deps.State,
		Transient: h.deps.Transient,
	}

	for _, hk := range hooks {
		call := hk.Call
		if len(inv.Args) > 0 {
			call.Args = mergeArgs(inv.Args, call.Args)
		}

		out, err := h.reg.Execute(ctx, call, env)
		if err != nil {
			// A broken hook never blocks the action; the failure is the
			// content author's problem, not the player's.
			log.Printf("EVENT: %s/%s hook %q on %s: %v",
				eventName, phase, call.Name, inv.Target.Ref(), err)
			h.notify(Notice{Event: eventName, Phase: phase, Target: inv.Target.Ref(),
				Script: call.Name, Err: err})
			continue
		}

		canceled := false
		if phase == world.PhaseBefore {
			if b, ok := out.(bool); ok && !b {
				canceled = true
			}
		}
		h.notify(Notice{Event: eventName, Phase: phase, Target: inv.Target.Ref(),
			Script: call.Name, Canceled: canceled})

		if canceled {
			msg := hk.CancelMessage
			if msg == "" {
				msg = DefaultCancelMessage
			}
			return Result{CancelAction: true, Message: msg}
		}
	}
	return Result{}
}

func (h *Hub) runGlobals(ctx context.Context, eventName, phase string, inv Invocation) {
	h.mu.RLock()
	globals := h.globals
	h.mu.RUnlock()
	for _, fn := range globals {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("EVENT: panic in global hook for %s/%s: %v", eventName, phase, r)
				}
			}()
			fn(ctx, eventName, phase, inv)
		}()
	}
}

func (h *Hub) notify(n Notice) {
	h.mu.RLock()
	obs := h.observers
	h.mu.RUnlock()
	for _, o := range obs {
		o(n)
	}
}

// mergeArgs overlays content-declared arguments on runtime ones.
func mergeArgs(runtime, declared map[string]any) map[string]any {
	merged := make(map[string]any, len(runtime)+len(declared))
	for k, v := range runtime {
		merged[k] = v
	}
	for k, v := range declared {
		merged[k] = v
	}
	return merged
}
