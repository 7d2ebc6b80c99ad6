package game

import (
	"errors"
	"sync"

	"github.com/emberfall-mud/emberfall/pkg/world"
)

// ErrNotConnected is returned when a message targets a character with no
// attached session.
var ErrNotConnected = errors.New("character is not connected")

// Sink delivers one line of output to a connected session. Transport is the
// embedding application's concern; the engine only ever calls the sink.
type Sink func(text string)

// SessionMessenger routes outbound messages to attached session sinks. It
// doubles as the scheduler's presence source: attached means online.
type SessionMessenger struct {
	w *world.World

	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewSessionMessenger(w *world.World) *SessionMessenger {
	return &SessionMessenger{w: w, sinks: make(map[string]Sink)}
}

// Attach binds a session sink to a character.
func (m *SessionMessenger) Attach(charID string, sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks[charID] = sink
}

// Detach removes a character's session sink.
func (m *SessionMessenger) Detach(charID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sinks, charID)
}

// Online reports whether a character has an attached session.
func (m *SessionMessenger) Online(ref world.Ref) bool {
	if ref.Kind != world.KindCharacter {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sinks[ref.ID]
	return ok
}

// OnlineCount returns the number of attached sessions.
func (m *SessionMessenger) OnlineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// SendToCharacter delivers a line to one character's session.
func (m *SessionMessenger) SendToCharacter(c *world.Character, text string) error {
	m.mu.RLock()
	sink, ok := m.sinks[c.Ref().ID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	sink(text)
	return nil
}

// SendToRoom delivers a line to every connected character in a room, minus
// the excluded one. Disconnected occupants are silently skipped.
func (m *SessionMessenger) SendToRoom(room *world.Room, text string, exclude *world.Character) error {
	occupants := m.w.CharactersInRoom(room.Ref().ID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range occupants {
		if exclude != nil && c.Ref() == exclude.Ref() {
			continue
		}
		if sink, ok := m.sinks[c.Ref().ID]; ok {
			sink(text)
		}
	}
	return nil
}
