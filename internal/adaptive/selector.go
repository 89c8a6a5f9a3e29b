package adaptive

import (
	"math"

	"quiz-live-service/internal/domain"
)

// Selector picks the next question for a participant.
type Selector struct {
	limit int
}

// NewSelector returns a selector enforcing the given question cap. A non-positive cap disables it.
func NewSelector(limit int) *Selector {
	return &Selector{limit: limit}
}

// Cap is the configured number of questions per participant.
func (s *Selector) Cap() int { return s.limit }

// CapReached reports whether the participant already answered the maximum number of questions.
func (s *Selector) CapReached(state domain.AbilityState) bool {
	return s.limit > 0 && state.TotalServed >= s.limit
}

// Next returns the question to serve, or false when the round is exhausted.
//
// Candidates come from the participant's level first, then from the nearest non-empty levels
// (both neighbours at equal distance are pooled). Questions in seen are never returned. Inside
// the group, the participant's sticky topic is preferred; among those the difficulty closest to
// theta wins and ties keep bank order.
func (s *Selector) Next(bank domain.ItemBank, state domain.AbilityState, seen map[string]struct{}) (domain.Question, bool) {
	if s.CapReached(state) {
		return domain.Question{}, false
	}

	byRank := make([][]int, len(domain.Levels))
	for i, q := range bank.Questions {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		rank := q.Level.Rank()
		if rank < 0 {
			continue
		}
		byRank[rank] = append(byRank[rank], i)
	}

	current := state.Level.Rank()
	if current < 0 {
		current = 0
	}

	for dist := 0; dist < len(domain.Levels); dist++ {
		var group []int
		if dist == 0 {
			group = append(group, byRank[current]...)
		} else {
			if lo := current - dist; lo >= 0 {
				group = append(group, byRank[lo]...)
			}
			if hi := current + dist; hi < len(byRank) {
				group = append(group, byRank[hi]...)
			}
		}
		if len(group) == 0 {
			continue
		}
		idx := closest(bank.Questions, preferTopic(bank.Questions, group, state.Topic), state.Theta)
		return bank.Questions[idx], true
	}
	return domain.Question{}, false
}

func preferTopic(questions []domain.Question, group []int, topic string) []int {
	if topic == "" {
		return group
	}
	sticky := make([]int, 0, len(group))
	for _, i := range group {
		if questions[i].Topic == topic {
			sticky = append(sticky, i)
		}
	}
	if len(sticky) == 0 {
		return group
	}
	return sticky
}

// closest returns the candidate with minimal |difficulty - theta|, preferring the lowest bank index.
func closest(questions []domain.Question, candidates []int, theta float64) int {
	best := candidates[0]
	bestGap := math.Abs(questions[best].Difficulty - theta)
	for _, i := range candidates[1:] {
		gap := math.Abs(questions[i].Difficulty - theta)
		if gap < bestGap || (gap == bestGap && i < best) {
			best, bestGap = i, gap
		}
	}
	return best
}
