package sched

import (
	"fmt"
	"log"

	cron "github.com/robfig/cron/v3"

	"github.com/emberfall-mud/emberfall/pkg/world"
)

// calEntry is one compiled calendar declaration, resolved back to its entity
// by ref at pass time so hot reloads and deletions are honored.
type calEntry struct {
	ref   world.Ref
	key   string // tracking key, "cal:<index>"
	decl  world.ScheduledScript
	sched cron.Schedule
}

// rebuildCalendar recompiles every scheduled-script declaration into the
// cache. A declaration with an unparseable expression is logged and dropped
// rather than failing the whole rebuild.
func (s *Scheduler) rebuildCalendar() {
	var entries []calEntry
	for _, e := range s.w.ScheduledEntities() {
		for i, ss := range e.Proto().ScheduledScripts {
			compiled, err := cron.ParseStandard(ss.Schedule)
			if err != nil {
				log.Printf("SCHED: %s scheduled script %d: bad expression %q: %v",
					e.Ref(), i, ss.Schedule, err)
				continue
			}
			entries = append(entries, calEntry{
				ref:   e.Ref(),
				key:   fmt.Sprintf("cal:%d", i),
				decl:  ss,
				sched: compiled,
			})
		}
	}
	s.mu.Lock()
	s.cal = entries
	s.mu.Unlock()
	log.Printf("SCHED: calendar cache rebuilt, %d entries", len(entries))
}

// calendarPass fires every due calendar script. A declaration is due when its
// most recent matching instant falls inside the lookback window ending now;
// the instant is recorded so overlapping passes cannot fire it twice. Global
// scripts run once with entity and room context; the rest run once per
// character present, with the ambient filter.
func (s *Scheduler) calendarPass() int {
	now := s.now()
	s.mu.Lock()
	entries := s.cal
	s.mu.Unlock()

	ran := 0
	for _, ce := range entries {
		e, ok := s.w.Entity(ce.ref)
		if !ok {
			continue
		}
		rec := e.Tracking().Record(ce.key)
		if rec.HasExecuted && !ce.decl.Permanent {
			continue
		}
		fire := ce.sched.Next(now.Add(-s.cfg.DueCheckInterval))
		if fire.After(now) {
			continue
		}
		if rec.LastFiredUnix == fire.Unix() {
			continue
		}

		var chars []*world.Character
		var room *world.Room
		if ce.decl.Global {
			room, _ = s.w.RoomOf(e)
			chars = []*world.Character{nil}
		} else {
			var ok bool
			chars, room, ok = s.audience(e, ce.decl.Category)
			if !ok || len(chars) == 0 {
				continue
			}
		}

		e.Tracking().Put(ce.key, world.TrackRecord{
			LastExecutedTick: s.currentTick(),
			HasExecuted:      true,
			LastFiredUnix:    fire.Unix(),
		})
		for _, c := range chars {
			s.runScript(e, room, c, ce.decl.Call)
			ran++
		}
	}
	return ran
}
