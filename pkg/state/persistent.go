// Package state implements the dual-tier per-entity key/value store:
// a persistent tier backed by each entity's durable state blob (saved to
// bbolt), and a transient tier backed by an expiring sqlite table used for
// cooldowns and other time-limited values.
package state

import (
	"log"

	"github.com/emberfall-mud/emberfall/pkg/world"
)

// Persistent operates on an entity's durable state blob. The blob does its
// own locking and dirty marking, so the tier stays a thin accessor shared by
// the command path and the scheduler loops.
type Persistent struct{}

// NewPersistent returns the persistent-tier accessor.
func NewPersistent() *Persistent { return &Persistent{} }

// Get returns the value for key, or def when absent.
func (p *Persistent) Get(e world.Entity, key string, def any) any {
	if v, ok := e.State().Get(key); ok {
		return v
	}
	return def
}

// Set stores a value and marks the blob dirty.
func (p *Persistent) Set(e world.Entity, key string, value any) {
	e.State().Set(key, value)
}

// Delete removes a key; the blob only goes dirty when the key existed.
func (p *Persistent) Delete(e world.Entity, key string) {
	e.State().Delete(key)
}

// Clear removes every key; the blob only goes dirty when it held any.
func (p *Persistent) Clear(e world.Entity) {
	e.State().Clear()
}

// Increment adds amount to an integer-valued key and returns the new value.
// A missing or non-numeric current value counts as zero.
func (p *Persistent) Increment(e world.Entity, key string, amount int) int {
	next := asInt(p.Get(e, key, 0)) + amount
	p.Set(e, key, next)
	return next
}

// Decrement subtracts amount from an integer-valued key, clamping to
// minValue when provided, and returns the new value.
func (p *Persistent) Decrement(e world.Entity, key string, amount int, minValue *int) int {
	next := asInt(p.Get(e, key, 0)) - amount
	if minValue != nil && next < *minValue {
		next = *minValue
	}
	p.Set(e, key, next)
	return next
}

// asInt coerces the numeric shapes a JSON round-trip can produce.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		log.Printf("STATE: non-numeric value %T in counter, treating as 0", v)
		return 0
	}
}
