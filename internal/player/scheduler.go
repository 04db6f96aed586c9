package player

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDisconnectDelay is how long an idle guild keeps its voice session.
const DefaultDisconnectDelay = 5 * time.Minute

type pendingLeave struct {
	id    uint64
	timer *time.Timer
}

// Scheduler holds at most one deferred leave per guild.
type Scheduler struct {
	delay time.Duration

	mu     sync.Mutex
	nextID uint64
	timers map[string]*pendingLeave
}

func NewScheduler(delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultDisconnectDelay
	}
	return &Scheduler{delay: delay, timers: make(map[string]*pendingLeave)}
}

func (s *Scheduler) Delay() time.Duration { return s.delay }

// Arm schedules action for guildID after the default delay, replacing any
// timer already armed for that guild.
func (s *Scheduler) Arm(guildID string, action func()) {
	s.ArmAfter(guildID, s.delay, action)
}

func (s *Scheduler) ArmAfter(guildID string, d time.Duration, action func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[guildID]; ok {
		old.timer.Stop()
	}
	s.nextID++
	id := s.nextID
	p := &pendingLeave{id: id}
	p.timer = time.AfterFunc(d, func() { s.fire(guildID, id, action) })
	s.timers[guildID] = p
	slog.Debug("auto-disconnect armed", "guildID", guildID, "after", d)
}

// Cancel disarms the guild's timer. It has no effect on an action that has
// already started.
func (s *Scheduler) Cancel(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.timers[guildID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.timers, guildID)
	slog.Debug("auto-disconnect cancelled", "guildID", guildID)
	return true
}

func (s *Scheduler) Armed(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[guildID]
	return ok
}

func (s *Scheduler) fire(guildID string, id uint64, action func()) {
	s.mu.Lock()
	p, ok := s.timers[guildID]
	if !ok || p.id != id {
		// lost to a re-arm or cancel
		s.mu.Unlock()
		return
	}
	delete(s.timers, guildID)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("auto-disconnect panic", "guildID", guildID, "panic", r)
		}
	}()
	action()
}
