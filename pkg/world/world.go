package world

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/emberfall-mud/emberfall/pkg/lock"
)

// World holds the live entity instances and the prototype tables they were
// synchronized against. Instances carry identity and mutable state; the
// tables are immutable content.
type World struct {
	mu     sync.RWMutex
	tables *Tables

	chars map[string]*Character
	items map[string]*Item
	rooms map[string]*Room
}

// New creates an empty world over the given prototype tables.
func New(tables *Tables) *World {
	return &World{
		tables: tables,
		chars:  make(map[string]*Character),
		items:  make(map[string]*Item),
		rooms:  make(map[string]*Room),
	}
}

// Tables returns the current prototype tables.
func (w *World) Tables() *Tables {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tables
}

// SetTables swaps in freshly loaded prototype tables (hot reload) and
// re-points existing instances at their new prototypes. Instances whose
// prototype disappeared keep the old one and are logged.
func (w *World) SetTables(tables *Tables) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tables = tables
	for key, r := range w.rooms {
		if p, ok := tables.Rooms[key]; ok {
			r.proto = p
		} else {
			log.Printf("WORLD: room %q no longer in content tables, keeping stale prototype", key)
		}
	}
	for id, it := range w.items {
		if p, ok := tables.Items[it.proto.Key]; ok {
			it.proto = p
		} else {
			log.Printf("WORLD: item %q prototype %q gone, keeping stale prototype", id, it.proto.Key)
		}
	}
}

// Sync reconciles live state against the prototype tables: every room
// prototype gets an instance, and every item prototype without a live
// instance is spawned at its declared start location. Existing instances
// keep their persistent state untouched.
func (w *World) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, key := range w.tables.RoomKeys() {
		if _, ok := w.rooms[key]; ok {
			continue
		}
		w.rooms[key] = &Room{base: newBase(RoomRef(key), w.tables.Rooms[key])}
	}

	for _, key := range w.tables.ItemKeys() {
		if _, ok := w.items[key]; ok {
			continue
		}
		proto := w.tables.Items[key]
		loc := Ref{}
		if proto.Location != "" {
			ref, err := ParseRef(proto.Location)
			if err != nil {
				return fmt.Errorf("sync item %q: %w", key, err)
			}
			loc = ref
		}
		w.items[key] = &Item{base: newBase(ItemRef(key), proto), Location: loc}
	}
	return nil
}

// CreateCharacter spawns a character instance. Characters have no prototype
// table; they get a minimal synthetic prototype carrying only their name.
func (w *World) CreateCharacter(id, name, role, roomKey string) (*Character, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.chars[id]; exists {
		return nil, fmt.Errorf("character %q already exists", id)
	}
	if _, ok := w.rooms[roomKey]; !ok {
		return nil, fmt.Errorf("character %q starting room %q does not exist", id, roomKey)
	}
	c := &Character{
		base:    newBase(CharRef(id), &Prototype{Key: id, Kind: KindCharacter, Name: name}),
		Name:    name,
		RoleVal: role,
		RoomKey: roomKey,
	}
	w.chars[id] = c
	return c, nil
}

// DeleteCharacter removes a character; its state blobs die with it.
func (w *World) DeleteCharacter(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.chars, id)
}

// Character, Item, and Room look up live instances by ID.
func (w *World) Character(id string) (*Character, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.chars[id]
	return c, ok
}

func (w *World) Item(id string) (*Item, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	it, ok := w.items[id]
	return it, ok
}

func (w *World) Room(key string) (*Room, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.rooms[key]
	return r, ok
}

// Entity resolves a ref to a live instance.
func (w *World) Entity(ref Ref) (Entity, bool) {
	switch ref.Kind {
	case KindCharacter:
		return w.Character(ref.ID)
	case KindItem:
		return w.Item(ref.ID)
	case KindRoom:
		return w.Room(ref.ID)
	}
	return nil, false
}

// Entities returns every live instance, rooms then items then characters,
// each group in sorted ID order.
func (w *World) Entities() []Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []Entity
	for _, k := range sortedKeys(w.rooms) {
		out = append(out, w.rooms[k])
	}
	for _, k := range sortedKeys(w.items) {
		out = append(out, w.items[k])
	}
	for _, k := range sortedKeys(w.chars) {
		out = append(out, w.chars[k])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CharactersInRoom returns the characters currently in a room, sorted by ID.
func (w *World) CharactersInRoom(roomKey string) []*Character {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Character
	for _, k := range sortedKeys(w.chars) {
		if w.chars[k].RoomKey == roomKey {
			out = append(out, w.chars[k])
		}
	}
	return out
}

// RoomOf resolves an entity's spatial context: a room is its own context, a
// character's is the room it stands in, and an item's is the room it lies in
// or the room of whoever holds it.
func (w *World) RoomOf(e Entity) (*Room, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.roomOfLocked(e)
}

func (w *World) roomOfLocked(e Entity) (*Room, bool) {
	switch v := e.(type) {
	case *Room:
		return v, true
	case *Character:
		r, ok := w.rooms[v.RoomKey]
		return r, ok
	case *Item:
		switch v.Location.Kind {
		case KindRoom:
			r, ok := w.rooms[v.Location.ID]
			return r, ok
		case KindCharacter:
			if holder, ok := w.chars[v.Location.ID]; ok {
				r, ok := w.rooms[holder.RoomKey]
				return r, ok
			}
		}
	}
	return nil, false
}

// MoveItem relocates an item to a room or a character's inventory.
func (w *World) MoveItem(itemID string, to Ref) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	it, ok := w.items[itemID]
	if !ok {
		return fmt.Errorf("no item %q", itemID)
	}
	switch to.Kind {
	case KindRoom:
		if _, ok := w.rooms[to.ID]; !ok {
			return fmt.Errorf("no room %q", to.ID)
		}
	case KindCharacter:
		if _, ok := w.chars[to.ID]; !ok {
			return fmt.Errorf("no character %q", to.ID)
		}
	default:
		return fmt.Errorf("items cannot be placed in %q", to.Kind)
	}
	it.Location = to
	return nil
}

// MoveCharacter relocates a character to another room.
func (w *World) MoveCharacter(charID, roomKey string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.chars[charID]
	if !ok {
		return fmt.Errorf("no character %q", charID)
	}
	if _, ok := w.rooms[roomKey]; !ok {
		return fmt.Errorf("no room %q", roomKey)
	}
	c.RoomKey = roomKey
	return nil
}

// ItemsHeldBy returns the items in a character's inventory, sorted by ID.
func (w *World) ItemsHeldBy(charID string) []*Item {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Item
	for _, k := range sortedKeys(w.items) {
		it := w.items[k]
		if it.Location.Kind == KindCharacter && it.Location.ID == charID {
			out = append(out, it)
		}
	}
	return out
}

// ItemsInRoom returns the items lying in a room, sorted by ID.
func (w *World) ItemsInRoom(roomKey string) []*Item {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Item
	for _, k := range sortedKeys(w.items) {
		it := w.items[k]
		if it.Location.Kind == KindRoom && it.Location.ID == roomKey {
			out = append(out, it)
		}
	}
	return out
}

// TickEntities returns the live entities whose prototype declares tick
// scripts.
func (w *World) TickEntities() []Entity {
	var out []Entity
	for _, e := range w.Entities() {
		if len(e.Proto().TickScripts) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// ScheduledEntities returns the live entities whose prototype declares
// calendar scripts.
func (w *World) ScheduledEntities() []Entity {
	var out []Entity
	for _, e := range w.Entities() {
		if len(e.Proto().ScheduledScripts) > 0 {
			out = append(out, e)
		}
	}
	return out
}

// DirtyEntities returns the instances whose state or tracking blob has
// unsaved mutations.
func (w *World) DirtyEntities() []Entity {
	var out []Entity
	for _, e := range w.Entities() {
		if e.State().Dirty() || e.Tracking().Dirty() {
			out = append(out, e)
		}
	}
	return out
}

// subjectView adapts a character to the lock evaluator's read-only Subject.
type subjectView struct {
	w *World
	c *Character
}

// Subject returns the lock-evaluation view of a character.
func (w *World) Subject(c *Character) lock.Subject {
	return subjectView{w: w, c: c}
}

func (s subjectView) Role() string { return s.c.RoleVal }

func (s subjectView) HasItem(key string) bool {
	for _, it := range s.w.ItemsHeldBy(s.c.Ref().ID) {
		if it.Proto().Key == key {
			return true
		}
	}
	return false
}

func (s subjectView) HasItemCategory(category string) bool {
	for _, it := range s.w.ItemsHeldBy(s.c.Ref().ID) {
		if it.Proto().Category == category {
			return true
		}
	}
	return false
}

func (s subjectView) ItemCount() int {
	return len(s.w.ItemsHeldBy(s.c.Ref().ID))
}

func (s subjectView) InRoom(key string) bool {
	return s.c.RoomKey == key
}
