// Package world holds the entity and prototype model: immutable content
// templates loaded from YAML tables, and the live stateful instances the
// engine mutates at runtime.
package world

import (
	"fmt"
	"strings"
)

// Kind classifies entities.
type Kind string

const (
	KindCharacter Kind = "character"
	KindItem      Kind = "item"
	KindRoom      Kind = "room"
)

// Ref is a stable entity identifier: kind plus instance ID.
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// ParseRef parses "kind:id" back into a Ref.
func ParseRef(s string) (Ref, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || kind == "" || id == "" {
		return Ref{}, fmt.Errorf("bad entity ref %q", s)
	}
	switch Kind(kind) {
	case KindCharacter, KindItem, KindRoom:
		return Ref{Kind: Kind(kind), ID: id}, nil
	}
	return Ref{}, fmt.Errorf("bad entity kind %q", kind)
}

// CharRef, ItemRef, and RoomRef are shorthand constructors.
func CharRef(id string) Ref { return Ref{Kind: KindCharacter, ID: id} }
func ItemRef(id string) Ref { return Ref{Kind: KindItem, ID: id} }
func RoomRef(id string) Ref { return Ref{Kind: KindRoom, ID: id} }
