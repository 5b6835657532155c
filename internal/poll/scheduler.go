package poll

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs fn every d until the returned stop func is called. fn must
// not be invoked synchronously from Every.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

// CronScheduler shares one cron runner between all hooks.
type CronScheduler struct {
	c    *cron.Cron
	once sync.Once
}

func NewCronScheduler() *CronScheduler {
	return &CronScheduler{c: cron.New()}
}

func (s *CronScheduler) Every(d time.Duration, fn func()) func() {
	s.once.Do(s.c.Start)
	id := s.c.Schedule(cron.Every(d), cron.FuncJob(fn))
	return func() { s.c.Remove(id) }
}

// Stop halts the runner. The returned context is done once running jobs
// have returned.
func (s *CronScheduler) Stop() context.Context {
	return s.c.Stop()
}

// ManualScheduler fires only when Tick is called.
type ManualScheduler struct {
	mu      sync.Mutex
	next    int
	entries map[int]func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{entries: make(map[int]func())}
}

func (m *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.entries[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
	}
}

// Tick runs every registered func once on the calling goroutine.
func (m *ManualScheduler) Tick() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.entries))
	for _, fn := range m.entries {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *ManualScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
