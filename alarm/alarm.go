// Package alarm implements the periodic alarm service (§4.3, C3): named
// one-shot and periodic timers, cancellable at any time, whose callbacks
// are all delivered on a single handler goroutine so callers never need to
// synchronize against a fire racing a cancel.
package alarm

import (
	"sync"
	"time"
)

// Token names a scheduled timer. Callers pick their own namespace (e.g. an
// AdvertiserID, or a peer address + mode index).
type Token string

// Func is invoked on the service's single handler goroutine when a token
// fires.
type Func func(token Token)

type entry struct {
	inUse bool
	timer *time.Timer
	seq   uint64
}

// Service owns a set of named timers and a single worker goroutine that
// delivers every fire callback, matching the "main handler" execution
// model of §5.
type Service struct {
	mu      sync.Mutex
	entries map[Token]*entry
	seq     uint64

	work chan func()
	done chan struct{}
	once sync.Once

	onFire Func
}

// New starts a Service whose fires are delivered to onFire.
func New(onFire Func) *Service {
	s := &Service{
		entries: make(map[Token]*entry),
		work:    make(chan func(), 64),
		done:    make(chan struct{}),
		onFire:  onFire,
	}
	go s.loop()
	return s
}

func (s *Service) loop() {
	for {
		select {
		case fn := <-s.work:
			fn()
		case <-s.done:
			return
		}
	}
}

// Schedule cancels any existing scheduling of token and enrolls a new
// one-shot firing after delay.
func (s *Service) Schedule(token Token, delay time.Duration) {
	s.schedule(token, delay, false)
}

// SchedulePeriodic behaves like Schedule, but token re-arms itself at the
// same period after every fire until Cancel is called. Used for address
// rotation, which re-schedules itself each cycle (§4.6 "Re-schedule the
// alarm").
func (s *Service) SchedulePeriodic(token Token, period time.Duration) {
	s.schedule(token, period, true)
}

func (s *Service) schedule(token Token, delay time.Duration, periodic bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[token]; ok && e.timer != nil {
		e.timer.Stop()
	}
	s.seq++
	mySeq := s.seq
	e := &entry{inUse: true, seq: mySeq}
	s.entries[token] = e

	var arm func()
	arm = func() {
		e.timer = time.AfterFunc(delay, func() {
			select {
			case s.work <- func() { s.fire(token, e, mySeq, periodic, arm) }:
			case <-s.done:
			}
		})
	}
	arm()
}

// fire runs on the single handler goroutine. A cancelled-but-in-flight
// timer sees its entry gone (or superseded by a later seq) and is a no-op,
// which is what makes Cancel safe against a fire that already queued.
func (s *Service) fire(token Token, e *entry, seq uint64, periodic bool, rearm func()) {
	s.mu.Lock()
	cur, ok := s.entries[token]
	shouldFire := ok && cur == e && cur.inUse && cur.seq == seq
	s.mu.Unlock()
	if !shouldFire {
		return
	}

	if s.onFire != nil {
		s.onFire(token)
	}

	s.mu.Lock()
	stillCurrent := s.entries[token] == e
	if !periodic && stillCurrent {
		delete(s.entries, token)
	}
	s.mu.Unlock()

	if periodic && stillCurrent {
		rearm()
	}
}

// Cancel is idempotent and safe even if token was never scheduled.
func (s *Service) Cancel(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.inUse = false
	delete(s.entries, token)
}

// Scheduled reports whether token currently has a live timer.
func (s *Service) Scheduled(token Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	return ok && e.inUse
}

// Stop shuts the service down; no further callbacks fire.
func (s *Service) Stop() {
	s.once.Do(func() { close(s.done) })
}
