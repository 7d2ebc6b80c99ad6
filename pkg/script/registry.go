// Package script implements the global-script registry: named Go functions
// that content references through validated ScriptCall records. The registry
// is closed: a script reference resolves against registered names only and
// is never evaluated as code.
package script

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/emberfall-mud/emberfall/pkg/state"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

// ErrUnknownScript and ErrBadParams are the validation failures Execute can
// return before the script function runs. A call that fails validation never
// partially executes.
var (
	ErrUnknownScript = errors.New("unknown script")
	ErrBadParams     = errors.New("invalid script parameters")
)

// ParamKind declares the expected type of one script parameter.
type ParamKind string

const (
	ParamString ParamKind = "string"
	ParamInt    ParamKind = "int"
	ParamFloat  ParamKind = "float"
	ParamBool   ParamKind = "bool"
)

// Params maps parameter names to their expected kinds. Every declared
// parameter is required.
type Params map[string]ParamKind

// Messenger is the outbound messaging boundary scripts write through.
// Failures are the caller's to log; scripts treat sends as best-effort.
type Messenger interface {
	SendToCharacter(c *world.Character, text string) error
	SendToRoom(room *world.Room, text string, exclude *world.Character) error
}

// Env carries the ambient objects a script runs against, merged with the
// call's own arguments at invocation time.
type Env struct {
	Actor     *world.Character // may be nil for global scheduled scripts
	Target    world.Entity
	Room      *world.Room
	World     *world.World
	Msg       Messenger
	State     *state.Persistent
	Transient *state.Transient
}

// Func is a registered global script. Returning the boolean false is the
// cancellation sentinel in BEFORE-phase event execution; any other return
// value is informational.
type Func func(ctx context.Context, env *Env, params map[string]any) (any, error)

type entry struct {
	fn          Func
	params      Params
	description string
}

// Registry holds the named global scripts content can reference.
type Registry struct {
	mu      sync.RWMutex
	scripts map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scripts: make(map[string]*entry)}
}

// Register adds a named script. Re-registering an existing name overwrites
// the previous definition; content authors are expected to avoid collisions,
// so the overwrite is logged rather than rejected.
func (r *Registry) Register(name string, fn Func, params Params, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.scripts[name]; exists {
		log.Printf("SCRIPT: re-registering %q, previous definition replaced", name)
	}
	r.scripts[name] = &entry{fn: fn, params: params, description: description}
}

// Known reports whether a script name is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.scripts[name]
	return ok
}

// Names returns registered script names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scripts))
	for n := range r.scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe returns a script's registered description.
func (r *Registry) Describe(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.scripts[name]
	if !ok {
		return "", false
	}
	return e.description, true
}

// Execute validates the call's parameters against the script's declared
// Params and invokes it. Validation failures reject the call before the
// function runs; errors from the function body itself are logged and
// propagated, never swallowed.
func (r *Registry) Execute(ctx context.Context, call world.ScriptCall, env *Env) (any, error) {
	r.mu.RLock()
	e, ok := r.scripts[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScript, call.Name)
	}

	if err := validateParams(call, e.params); err != nil {
		return nil, err
	}

	result, err := e.fn(ctx, env, call.Args)
	if err != nil {
		log.Printf("SCRIPT: %q failed: %v", call.Name, err)
		return result, err
	}
	return result, nil
}

func validateParams(call world.ScriptCall, declared Params) error {
	for name, kind := range declared {
		v, present := call.Args[name]
		if !present {
			return fmt.Errorf("%w: %q missing parameter %q", ErrBadParams, call.Name, name)
		}
		if !kindMatches(kind, v) {
			return fmt.Errorf("%w: %q parameter %q: want %s, got %T",
				ErrBadParams, call.Name, name, kind, v)
		}
	}
	for name := range call.Args {
		if _, ok := declared[name]; !ok {
			log.Printf("SCRIPT: %q called with unexpected parameter %q (ignored)", call.Name, name)
		}
	}
	return nil
}

func kindMatches(kind ParamKind, v any) bool {
	switch kind {
	case ParamString:
		_, ok := v.(string)
		return ok
	case ParamInt:
		switch v.(type) {
		case int, int64:
			return true
		}
		return false
	case ParamFloat:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case ParamBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// IntArg and StringArg are convenience accessors for script bodies; the
// registry has already validated presence and type.
func IntArg(params map[string]any, name string) int {
	switch n := params[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func StringArg(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return s
}
