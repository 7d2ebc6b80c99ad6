package state

import (
	"encoding/json"
	"fmt"
	"log"

	bbolt "go.etcd.io/bbolt"

	"github.com/emberfall-mud/emberfall/pkg/world"
)

var bucketEntities = []byte("entities")

// EntityStore persists entity instances and their state blobs to bbolt. A
// batch save maps to one bbolt update transaction: everything in the batch
// commits or nothing does.
type EntityStore struct {
	bolt *bbolt.DB
}

// entityRecord is the stored form of one entity instance. The state and
// tracking blobs are stored verbatim; the persistence layer treats them as
// opaque.
type entityRecord struct {
	ProtoKey string                       `json:"proto_key"`
	Name     string                       `json:"name,omitempty"`
	Role     string                       `json:"role,omitempty"`
	RoomKey  string                       `json:"room_key,omitempty"`
	Location string                       `json:"location,omitempty"`
	State    map[string]any               `json:"state,omitempty"`
	Tracking map[string]world.TrackRecord `json:"tracking,omitempty"`
}

// OpenEntityStore opens or creates the bbolt file and ensures buckets exist.
func OpenEntityStore(path string) (*EntityStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntities)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create buckets: %w", err)
	}
	return &EntityStore{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *EntityStore) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// SaveEntities writes a batch of entities in a single transaction and clears
// their dirty flags on commit.
func (s *EntityStore) SaveEntities(entities []world.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntities)
		for _, e := range entities {
			data, err := json.Marshal(recordFor(e))
			if err != nil {
				return fmt.Errorf("state: encode %s: %w", e.Ref(), err)
			}
			if err := b.Put([]byte(e.Ref().String()), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range entities {
		e.State().ClearDirty()
		e.Tracking().ClearDirty()
	}
	return nil
}

// SaveDirty persists every entity with unsaved mutations.
func (s *EntityStore) SaveDirty(w *world.World) error {
	return s.SaveEntities(w.DirtyEntities())
}

// DeleteEntity removes an entity's stored record; its state dies with it.
func (s *EntityStore) DeleteEntity(ref world.Ref) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntities).Delete([]byte(ref.String()))
	})
}

func recordFor(e world.Entity) entityRecord {
	// Snapshots, not the live maps: the scheduler loops may mutate the
	// blobs while this record is being marshalled.
	rec := entityRecord{
		ProtoKey: e.Proto().Key,
		State:    e.State().Snapshot(),
		Tracking: e.Tracking().Snapshot(),
	}
	switch v := e.(type) {
	case *world.Character:
		rec.Name = v.Name
		rec.Role = v.RoleVal
		rec.RoomKey = v.RoomKey
	case *world.Item:
		if !v.Location.IsZero() {
			rec.Location = v.Location.String()
		}
	}
	return rec
}

// LoadInto restores persisted instances into a freshly synced world.
// Characters are recreated; rooms and items already exist from Sync and get
// their blobs and locations restored. Records for entities whose prototype
// vanished from content are logged and skipped.
func (s *EntityStore) LoadInto(w *world.World) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntities).ForEach(func(k, v []byte) error {
			ref, err := world.ParseRef(string(k))
			if err != nil {
				log.Printf("STATE: skipping bad entity key %q: %v", k, err)
				return nil
			}
			var rec entityRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				log.Printf("STATE: skipping undecodable record %s: %v", ref, err)
				return nil
			}
			if err := restore(w, ref, rec); err != nil {
				log.Printf("STATE: skipping %s: %v", ref, err)
			}
			return nil
		})
	})
}

func restore(w *world.World, ref world.Ref, rec entityRecord) error {
	var e world.Entity
	switch ref.Kind {
	case world.KindCharacter:
		c, err := w.CreateCharacter(ref.ID, rec.Name, rec.Role, rec.RoomKey)
		if err != nil {
			return err
		}
		e = c
	case world.KindItem:
		it, ok := w.Item(ref.ID)
		if !ok {
			return fmt.Errorf("item prototype %q gone from content", rec.ProtoKey)
		}
		if rec.Location != "" {
			loc, err := world.ParseRef(rec.Location)
			if err != nil {
				return err
			}
			it.Location = loc
		}
		e = it
	case world.KindRoom:
		r, ok := w.Room(ref.ID)
		if !ok {
			return fmt.Errorf("room %q gone from content", ref.ID)
		}
		e = r
	default:
		return fmt.Errorf("unknown kind %q", ref.Kind)
	}

	if rec.State != nil {
		e.State().Replace(rec.State)
	}
	if rec.Tracking != nil {
		e.Tracking().Replace(rec.Tracking)
	}
	e.State().ClearDirty()
	e.Tracking().ClearDirty()
	return nil
}
