package adaptive

import (
	"math"

	"quiz-live-service/internal/domain"
)

// Params configures the ability estimator. Difficulty and theta share one scale.
type Params struct {
	Initial  float64
	Min      float64
	Max      float64
	BaseStep float64
	MaxStep  float64
	// Thresholds on theta: below Medio is base, below Avanzato is medio, anything else avanzato.
	Medio    float64
	Avanzato float64
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return Params{
		Initial:  0,
		Min:      -3,
		Max:      6,
		BaseStep: 0.3,
		MaxStep:  0.8,
		Medio:    1.0,
		Avanzato: 2.0,
	}
}

// Estimator updates ability state after graded answers. It is pure and safe for concurrent use.
type Estimator struct {
	p Params
}

// NewEstimator normalizes params so that Min <= Max and BaseStep <= MaxStep.
func NewEstimator(p Params) *Estimator {
	if p.Min > p.Max {
		p.Min, p.Max = p.Max, p.Min
	}
	if p.BaseStep < 0 {
		p.BaseStep = 0
	}
	if p.MaxStep < p.BaseStep {
		p.MaxStep = p.BaseStep
	}
	if p.Avanzato < p.Medio {
		p.Avanzato = p.Medio
	}
	return &Estimator{p: p}
}

// Params returns the normalized configuration.
func (e *Estimator) Params() Params { return e.p }

// Initial returns the state of a participant who has not answered yet.
func (e *Estimator) Initial() domain.AbilityState {
	theta := e.clamp(e.p.Initial)
	return domain.AbilityState{Theta: theta, Level: e.Level(theta)}
}

// Update grades one answer: theta moves up when correct and down otherwise. The step grows
// with |theta - difficulty| from BaseStep towards MaxStep, so a mismatched item moves the
// estimate further than one already close to the participant's ability.
func (e *Estimator) Update(state domain.AbilityState, correct bool, difficulty float64) domain.AbilityState {
	gap := math.Abs(state.Theta - difficulty)
	step := e.p.BaseStep + (e.p.MaxStep-e.p.BaseStep)*(1-math.Exp(-gap))

	next := state
	if correct {
		next.Theta = e.clamp(state.Theta + step)
		next.Correct++
	} else {
		next.Theta = e.clamp(state.Theta - step)
	}
	next.TotalServed++
	next.Level = e.Level(next.Theta)
	return next
}

// Level maps theta to a band using the configured cut points.
func (e *Estimator) Level(theta float64) domain.Level {
	switch {
	case theta < e.p.Medio:
		return domain.LevelBase
	case theta < e.p.Avanzato:
		return domain.LevelMedio
	default:
		return domain.LevelAvanzato
	}
}

func (e *Estimator) clamp(theta float64) float64 {
	return math.Max(e.p.Min, math.Min(e.p.Max, theta))
}
