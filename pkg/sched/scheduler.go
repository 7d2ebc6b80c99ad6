// Package sched drives proactive entity behavior: a coarse global tick for
// interval scripts and a cron-style calendar for wall-clock scripts. Both run
// through the same script registry as event hooks.
package sched

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/emberfall-mud/emberfall/pkg/script"
	"github.com/emberfall-mud/emberfall/pkg/state"
	"github.com/emberfall-mud/emberfall/pkg/world"
)

const scriptTimeout = 10 * time.Second

// Config holds the scheduler's cadences. Zero values take the defaults.
type Config struct {
	TickInterval     time.Duration // global pulse, default 3s
	DueCheckInterval time.Duration // calendar due scan, default 1m
	ReloadInterval   time.Duration // calendar cache rebuild, default 5m
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 3 * time.Second
	}
	if c.DueCheckInterval <= 0 {
		c.DueCheckInterval = time.Minute
	}
	if c.ReloadInterval <= 0 {
		c.ReloadInterval = 5 * time.Minute
	}
	return c
}

// Presence answers whether a character is currently online. Ambient-category
// scripts are skipped for entities nobody is around to see.
type Presence interface {
	Online(ref world.Ref) bool
}

// Deps are the ambient objects handed to scheduled scripts.
type Deps struct {
	Msg       script.Messenger
	State     *state.Persistent
	Transient *state.Transient
}

// Scheduler owns the tick counter and the compiled calendar cache. The tick
// counter is per-process; interval discipline is enforced through each
// entity's tracking records, which do persist.
type Scheduler struct {
	cfg      Config
	w        *world.World
	reg      *script.Registry
	store    *state.EntityStore // nil disables post-pulse saves
	deps     Deps
	presence Presence

	mu   sync.Mutex
	tick uint64
	cal  []calEntry

	now  func() time.Time // test hook
	stop chan struct{}
	wg   sync.WaitGroup

	// Optional stats hooks, set before Start.
	OnPulse    func(tick uint64, ran int)
	OnCalendar func(ran int)
}

// New creates a scheduler over the given world.
func New(w *world.World, reg *script.Registry, store *state.EntityStore, deps Deps, presence Presence, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		w:        w,
		reg:      reg,
		store:    store,
		deps:     deps,
		presence: presence,
		now:      time.Now,
	}
}

// Start builds the calendar cache and launches the tick, due-check, and
// cache-rebuild loops.
func (s *Scheduler) Start() {
	s.rebuildCalendar()
	s.stop = make(chan struct{})
	s.wg.Add(3)
	go s.loop(s.cfg.TickInterval, func() {
		ran := s.pulse()
		if s.OnPulse != nil {
			s.OnPulse(s.currentTick(), ran)
		}
		s.saveDirty()
	})
	go s.loop(s.cfg.DueCheckInterval, func() {
		ran := s.calendarPass()
		if s.OnCalendar != nil {
			s.OnCalendar(ran)
		}
		s.saveDirty()
	})
	go s.loop(s.cfg.ReloadInterval, s.rebuildCalendar)
	log.Printf("SCHED: started (tick %s, due check %s)", s.cfg.TickInterval, s.cfg.DueCheckInterval)
}

// Shutdown stops the loops, waits for in-flight passes, and flushes dirty
// entities.
func (s *Scheduler) Shutdown() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.saveDirty()
	log.Printf("SCHED: stopped at tick %d", s.currentTick())
}

func (s *Scheduler) loop(interval time.Duration, fn func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Scheduler) currentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// pulse advances the tick and runs every due interval script. A script is
// due once a full interval has elapsed since its last execution, counting
// from tick zero for scripts that have never run; one-shot scripts never run
// twice. A due script runs once per character present in the entity's room;
// with nobody present it stays pending and is retried next pulse.
func (s *Scheduler) pulse() int {
	s.mu.Lock()
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	ran := 0
	for _, e := range s.w.TickEntities() {
		for i, ts := range e.Proto().TickScripts {
			if ts.IntervalTicks == 0 || ts.Call.Name == "" {
				continue
			}
			key := fmt.Sprintf("tick:%d", i)
			rec := e.Tracking().Record(key)
			if rec.HasExecuted && !ts.Permanent {
				continue
			}
			// A never-executed record reads as tick zero, so a fresh
			// script first comes due a full interval after boot.
			if tick-rec.LastExecutedTick < ts.IntervalTicks {
				continue
			}
			chars, room, ok := s.audience(e, ts.Category)
			if !ok || len(chars) == 0 {
				continue
			}
			// Mark executed before running so a failing script cannot
			// re-fire every pulse.
			e.Tracking().Put(key, world.TrackRecord{
				LastExecutedTick: tick,
				HasExecuted:      true,
				LastFiredUnix:    rec.LastFiredUnix,
			})
			for _, c := range chars {
				s.runScript(e, room, c, ts.Call)
				ran++
			}
		}
	}
	return ran
}

// audience resolves a proactive script's spatial context: the entity's room
// and the characters present there. Ambient-category scripts are further
// filtered to characters who are online.
func (s *Scheduler) audience(e world.Entity, category string) ([]*world.Character, *world.Room, bool) {
	room, ok := s.w.RoomOf(e)
	if !ok {
		return nil, nil, false
	}
	chars := s.w.CharactersInRoom(room.Ref().ID)
	if category == world.CategoryAmbient && s.presence != nil {
		var online []*world.Character
		for _, c := range chars {
			if s.presence.Online(c.Ref()) {
				online = append(online, c)
			}
		}
		chars = online
	}
	return chars, room, true
}

// runScript executes one script invocation with panic containment.
func (s *Scheduler) runScript(e world.Entity, room *world.Room, actor *world.Character, call world.ScriptCall) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("SCHED: panic in script %q on %s: %v", call.Name, e.Ref(), r)
		}
	}()
	env := &script.Env{
		Actor:     actor,
		Target:    e,
		Room:      room,
		World:     s.w,
		Msg:       s.deps.Msg,
		State:     s.deps.State,
		Transient: s.deps.Transient,
	}
	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()
	if _, err := s.reg.Execute(ctx, call, env); err != nil {
		log.Printf("SCHED: script %q on %s: %v", call.Name, e.Ref(), err)
	}
}

func (s *Scheduler) saveDirty() {
	if s.store == nil {
		return
	}
	if err := s.store.SaveDirty(s.w); err != nil {
		log.Printf("SCHED: saving dirty entities: %v", err)
	}
}
