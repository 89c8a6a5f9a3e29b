package app

import (
	"strings"
	"sync"
	"time"
)

// Stopper is the part of *time.Timer the services rely on.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules fn after d. Tests replace it to drive deadlines by hand.
type AfterFunc func(d time.Duration, fn func()) Stopper

func realAfterFunc(d time.Duration, fn func()) Stopper {
	return time.AfterFunc(d, fn)
}

// timerSet owns the pending deadlines of one session. Scheduling a key replaces its previous
// timer; stopping the set discards every pending timer and refuses new ones.
type timerSet struct {
	after AfterFunc

	mu      sync.Mutex
	timers  map[string]Stopper
	stopped bool
}

func newTimerSet(after AfterFunc) *timerSet {
	if after == nil {
		after = realAfterFunc
	}
	return &timerSet{after: after, timers: make(map[string]Stopper)}
}

func (t *timerSet) schedule(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if prev, ok := t.timers[key]; ok {
		prev.Stop()
	}
	if d < 0 {
		d = 0
	}
	t.timers[key] = t.after(d, fn)
}

func (t *timerSet) cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.timers[key]; ok {
		prev.Stop()
		delete(t.timers, key)
	}
}

func (t *timerSet) cancelPrefix(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		if strings.HasPrefix(key, prefix) {
			timer.Stop()
			delete(t.timers, key)
		}
	}
}

func (t *timerSet) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
	t.stopped = true
}

func (t *timerSet) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
