package adaptive

import (
	"testing"

	"quiz-live-service/internal/domain"
)

func q(id, topic string, level domain.Level, difficulty float64) domain.Question {
	return domain.Question{ID: id, Topic: topic, Level: level, Difficulty: difficulty, Options: []string{"a", "b"}}
}

func testBank() domain.ItemBank {
	return domain.ItemBank{ID: "test", Questions: []domain.Question{
		q("b1", "reti", domain.LevelBase, 1),
		q("b2", "reti", domain.LevelBase, 0.5),
		q("b3", "hardware", domain.LevelBase, 0),
		q("m1", "reti", domain.LevelMedio, 2),
		q("a1", "reti", domain.LevelAvanzato, 3),
	}}
}

func TestNextPicksClosestDifficultyAtLevel(t *testing.T) {
	s := NewSelector(50)
	state := domain.AbilityState{Theta: 0.4, Level: domain.LevelBase}

	got, ok := s.Next(testBank(), state, nil)
	if !ok {
		t.Fatalf("expected a question")
	}
	if got.ID != "b2" {
		t.Fatalf("expected b2, got %s", got.ID)
	}
}

func TestNextTiesKeepBankOrder(t *testing.T) {
	s := NewSelector(50)
	bank := domain.ItemBank{Questions: []domain.Question{
		q("x", "t", domain.LevelBase, 1),
		q("y", "t", domain.LevelBase, -1),
	}}
	for i := 0; i < 5; i++ {
		got, _ := s.Next(bank, domain.AbilityState{Theta: 0, Level: domain.LevelBase}, nil)
		if got.ID != "x" {
			t.Fatalf("expected stable tie-break on x, got %s", got.ID)
		}
	}
}

func TestNextNeverRepeats(t *testing.T) {
	s := NewSelector(50)
	bank := testBank()
	seen := map[string]struct{}{}
	state := domain.AbilityState{Theta: 0, Level: domain.LevelBase}

	for i := 0; i < len(bank.Questions); i++ {
		got, ok := s.Next(bank, state, seen)
		if !ok {
			t.Fatalf("bank exhausted early at %d", i)
		}
		if _, dup := seen[got.ID]; dup {
			t.Fatalf("question %s served twice", got.ID)
		}
		seen[got.ID] = struct{}{}
		state.TotalServed++
	}
	if _, ok := s.Next(bank, state, seen); ok {
		t.Fatalf("expected exhaustion once every question was seen")
	}
}

func TestNextFallsBackToAdjacentLevels(t *testing.T) {
	s := NewSelector(50)
	bank := domain.ItemBank{Questions: []domain.Question{
		q("b", "t", domain.LevelBase, 1),
		q("a", "t", domain.LevelAvanzato, 3),
	}}
	state := domain.AbilityState{Theta: 2.6, Level: domain.LevelMedio}

	got, ok := s.Next(bank, state, nil)
	if !ok {
		t.Fatalf("expected fallback question")
	}
	if got.ID != "a" {
		t.Fatalf("expected closest of both neighbours (a), got %s", got.ID)
	}
}

func TestNextPrefersStickyTopic(t *testing.T) {
	s := NewSelector(50)
	state := domain.AbilityState{Theta: 0, Level: domain.LevelBase, Topic: "reti"}

	got, _ := s.Next(testBank(), state, nil)
	if got.ID != "b2" {
		t.Fatalf("expected reti question b2, got %s", got.ID)
	}

	state.Topic = "sconosciuto"
	got, _ = s.Next(testBank(), state, nil)
	if got.ID != "b3" {
		t.Fatalf("expected closest difficulty b3 when topic unknown, got %s", got.ID)
	}
}

func TestNextStopsAtCap(t *testing.T) {
	s := NewSelector(2)
	state := domain.AbilityState{Level: domain.LevelBase, TotalServed: 2}
	if _, ok := s.Next(testBank(), state, nil); ok {
		t.Fatalf("expected exhaustion at cap")
	}
	if !s.CapReached(state) {
		t.Fatalf("expected cap reached")
	}
}
