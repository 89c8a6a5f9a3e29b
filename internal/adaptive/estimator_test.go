package adaptive

import (
	"math"
	"testing"

	"quiz-live-service/internal/domain"
)

func TestUpdateMovesThetaByCorrectness(t *testing.T) {
	e := NewEstimator(DefaultParams())
	state := e.Initial()

	up := e.Update(state, true, 1)
	if up.Theta <= state.Theta {
		t.Fatalf("expected theta to increase, got %v", up.Theta)
	}
	down := e.Update(state, false, 1)
	if down.Theta >= state.Theta {
		t.Fatalf("expected theta to decrease, got %v", down.Theta)
	}
	if up.TotalServed != 1 || down.TotalServed != 1 {
		t.Fatalf("expected total served 1, got %d and %d", up.TotalServed, down.TotalServed)
	}
	if up.Correct != 1 || down.Correct != 0 {
		t.Fatalf("unexpected correct counters %d / %d", up.Correct, down.Correct)
	}
}

func TestUpdateStepGrowsWithMismatch(t *testing.T) {
	e := NewEstimator(DefaultParams())
	state := domain.AbilityState{Theta: 1, Level: domain.LevelMedio}

	near := e.Update(state, true, 1).Theta - state.Theta
	far := e.Update(state, true, 3).Theta - state.Theta
	if math.Abs(near-0.3) > 1e-9 {
		t.Fatalf("expected base step on matched item, got %v", near)
	}
	if far <= near {
		t.Fatalf("expected larger step on mismatched item, near=%v far=%v", near, far)
	}
	if far > 0.8 {
		t.Fatalf("step exceeded max: %v", far)
	}
}

func TestUpdateClampsTheta(t *testing.T) {
	e := NewEstimator(DefaultParams())
	state := e.Initial()
	for i := 0; i < 100; i++ {
		state = e.Update(state, true, 1)
	}
	if state.Theta != 6 {
		t.Fatalf("expected theta clamped to 6, got %v", state.Theta)
	}
	for i := 0; i < 100; i++ {
		state = e.Update(state, false, 1)
	}
	if state.Theta != -3 {
		t.Fatalf("expected theta clamped to -3, got %v", state.Theta)
	}
}

func TestLevelMonotonic(t *testing.T) {
	e := NewEstimator(DefaultParams())
	prev := -1
	for theta := -3.0; theta <= 6.0; theta += 0.05 {
		rank := e.Level(theta).Rank()
		if rank < prev {
			t.Fatalf("level decreased at theta %v", theta)
		}
		prev = rank
	}

	cases := []struct {
		theta float64
		want  domain.Level
	}{
		{0, domain.LevelBase},
		{0.99, domain.LevelBase},
		{1, domain.LevelMedio},
		{1.99, domain.LevelMedio},
		{2, domain.LevelAvanzato},
	}
	for _, tc := range cases {
		if got := e.Level(tc.theta); got != tc.want {
			t.Fatalf("theta %v: expected %s, got %s", tc.theta, tc.want, got)
		}
	}
}

func TestNewEstimatorNormalizesParams(t *testing.T) {
	e := NewEstimator(Params{Min: 5, Max: -5, BaseStep: 0.5, MaxStep: 0.1, Medio: 2, Avanzato: 1})
	p := e.Params()
	if p.Min != -5 || p.Max != 5 {
		t.Fatalf("expected swapped range, got %v..%v", p.Min, p.Max)
	}
	if p.MaxStep != 0.5 {
		t.Fatalf("expected max step raised to base step, got %v", p.MaxStep)
	}
	if p.Avanzato != 2 {
		t.Fatalf("expected avanzato raised to medio, got %v", p.Avanzato)
	}
}
