package world

import "sync"

// StateBlob is an entity's durable key/value state. The command path mutates
// it while the scheduler loops read and save it, so all access goes through
// the blob's own lock; the map is never exposed directly. Every mutation
// marks the blob dirty for the persistence layer's change tracking.
type StateBlob struct {
	mu     sync.Mutex
	values map[string]any
	dirty  bool
}

// NewStateBlob returns an empty blob.
func NewStateBlob() *StateBlob {
	return &StateBlob{values: make(map[string]any)}
}

// Get returns the value for key and whether it is present.
func (b *StateBlob) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok
}

// Set stores a value and marks the blob dirty.
func (b *StateBlob) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.values == nil {
		b.values = make(map[string]any)
	}
	b.values[key] = value
	b.dirty = true
}

// Delete removes a key, marking the blob dirty only when it was present.
func (b *StateBlob) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[key]; !ok {
		return
	}
	delete(b.values, key)
	b.dirty = true
}

// Clear removes every key, marking the blob dirty only when it held any.
func (b *StateBlob) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.values) == 0 {
		return
	}
	b.values = make(map[string]any)
	b.dirty = true
}

// Snapshot returns a shallow copy safe to serialize while other goroutines
// keep mutating the blob.
func (b *StateBlob) Snapshot() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.values) == 0 {
		return nil
	}
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Replace installs restored values wholesale and leaves the blob clean.
func (b *StateBlob) Replace(values map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = values
	b.dirty = false
}

func (b *StateBlob) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

func (b *StateBlob) ClearDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = false
}

// TrackRecord is the scheduler's per-script bookkeeping. LastExecutedTick is
// monotonic; LastFiredUnix records the matching instant a calendar script
// last fired for.
type TrackRecord struct {
	LastExecutedTick uint64 `json:"last_executed_tick"`
	HasExecuted      bool   `json:"has_executed"`
	LastFiredUnix    int64  `json:"last_fired_unix,omitempty"`
}

// TrackingBlob holds tracking records keyed by a stable per-script key
// ("tick:<index>" or "cal:<index>"). The tick and calendar loops run on
// separate goroutines and may update the same blob, so access is locked the
// same way as StateBlob.
type TrackingBlob struct {
	mu      sync.Mutex
	records map[string]TrackRecord
	dirty   bool
}

// NewTrackingBlob returns an empty tracking blob.
func NewTrackingBlob() *TrackingBlob {
	return &TrackingBlob{records: make(map[string]TrackRecord)}
}

// Record returns the tracking record for a script key; absence reads as the
// zero record (never executed).
func (b *TrackingBlob) Record(key string) TrackRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[key]
}

// Put stores a tracking record and marks the blob dirty. LastExecutedTick
// never moves backwards.
func (b *TrackingBlob) Put(key string, rec TrackRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.records == nil {
		b.records = make(map[string]TrackRecord)
	}
	if prev, ok := b.records[key]; ok && rec.LastExecutedTick < prev.LastExecutedTick {
		rec.LastExecutedTick = prev.LastExecutedTick
	}
	b.records[key] = rec
	b.dirty = true
}

// Snapshot returns a copy safe to serialize while the scheduler keeps
// writing records.
func (b *TrackingBlob) Snapshot() map[string]TrackRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return nil
	}
	out := make(map[string]TrackRecord, len(b.records))
	for k, v := range b.records {
		out[k] = v
	}
	return out
}

// Replace installs restored records wholesale and leaves the blob clean.
func (b *TrackingBlob) Replace(records map[string]TrackRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = records
	b.dirty = false
}

func (b *TrackingBlob) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

func (b *TrackingBlob) ClearDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = false
}

// Entity is the capability interface shared by characters, items, and rooms.
// Scripts and the scheduler dispatch on these capabilities, never on the
// concrete type.
type Entity interface {
	Ref() Ref
	Proto() *Prototype
	State() *StateBlob
	Tracking() *TrackingBlob
}

// base carries the fields every entity kind shares.
type base struct {
	ref      Ref
	proto    *Prototype
	state    *StateBlob
	tracking *TrackingBlob
}

func newBase(ref Ref, proto *Prototype) base {
	return base{ref: ref, proto: proto, state: NewStateBlob(), tracking: NewTrackingBlob()}
}

func (b *base) Ref() Ref                { return b.ref }
func (b *base) Proto() *Prototype       { return b.proto }
func (b *base) State() *StateBlob       { return b.state }
func (b *base) Tracking() *TrackingBlob { return b.tracking }

// Character is a player-controlled entity.
type Character struct {
	base
	Name    string
	RoleVal string // role name in the lock hierarchy
	RoomKey string
}

// Room is a location entity.
type Room struct {
	base
}

// Item is a carryable entity. Location is either a room ref or the ref of
// the character holding it.
type Item struct {
	base
	Location Ref
}
