package app_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
)

// manualTimers stands in for time.AfterFunc; tests fire deadlines explicitly.
type manualTimers struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	owner *manualTimers
	d     time.Duration
	fn    func()
	done  bool
}

func (m *manualTimers) after(d time.Duration, fn func()) app.Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{owner: m, d: d, fn: fn}
	m.pending = append(m.pending, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// fire runs every armed timer scheduled with duration d (any duration when d is 0).
func (m *manualTimers) fire(d time.Duration) int {
	m.mu.Lock()
	var due []*manualTimer
	for _, t := range m.pending {
		if !t.done && (d == 0 || t.d == d) {
			t.done = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (m *manualTimers) armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if !t.done {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type liveFixture struct {
	service *app.LiveService
	store   *memory.LiveSessionStore
	audit   *memory.AuditLog
	hub     *app.Hub
	timers  *manualTimers
	clock   *testClock
}

func newLiveFixture(t *testing.T, questions int) *liveFixture {
	t.Helper()
	cfg := app.DefaultLiveConfig()
	cfg.Countdown = 0

	f := &liveFixture{
		store:  memory.NewLiveSessionStore(),
		audit:  memory.NewAuditLog(),
		hub:    app.NewHub(),
		timers: &manualTimers{},
		clock:  newTestClock(),
	}
	banks := memory.NewBankRepository(memory.NewStaticBankLoader(map[string]domain.ItemBank{
		"default": testBank(questions),
	}), time.Minute)
	f.service = app.NewLiveService(f.store, banks, f.audit, app.NewLocalBus(f.hub), cfg,
		app.WithClock(f.clock.Now), app.WithAfterFunc(f.timers.after))
	return f
}

// testBank spreads n questions across the three levels; option 0 is always correct.
func testBank(n int) domain.ItemBank {
	base := map[domain.Level]float64{domain.LevelBase: 0, domain.LevelMedio: 1.5, domain.LevelAvanzato: 2.5}
	bank := domain.ItemBank{ID: "default"}
	for i := 0; i < n; i++ {
		level := domain.Levels[i%len(domain.Levels)]
		bank.Questions = append(bank.Questions, domain.Question{
			ID:              fmt.Sprintf("q%02d", i),
			Topic:           "Reti",
			Level:           level,
			Difficulty:      base[level] + float64(i%7)/10,
			Prompt:          fmt.Sprintf("Domanda %d", i),
			Options:         []string{"giusta", "sbagliata", "altra"},
			AnswerIndex:     0,
			ExplainBrief:    "breve",
			ExplainDetailed: "dettagliata",
		})
	}
	return bank
}

func intPtr(v int) *int { return &v }
