package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"quiz-live-service/internal/domain"
)

// NextQuestion returns the participant's pending question, selecting a new one only when none
// is outstanding. Retrying without answering returns the same question.
func (s *LiveService) NextQuestion(ctx context.Context, code, participantID string) (domain.NextQuestion, error) {
	session, ok := s.sessions.ByCode(code)
	if !ok {
		return domain.NextQuestion{}, domain.ErrSessionNotFound
	}
	bank, err := s.banks.GetBank(ctx, session.Snapshot().BankID)
	if err != nil {
		return domain.NextQuestion{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.info.Status != domain.StatusRunning || !session.roundOpen {
		return domain.NextQuestion{}, domain.ErrSessionNotRunning
	}
	if _, ok := session.participants[participantID]; !ok {
		return domain.NextQuestion{}, domain.ErrParticipantNotFound
	}
	return s.serveLocked(session, participantID, bank, s.now()), nil
}

// SubmitAnswer grades the pending question. Redelivering the answer of the last graded question
// returns the stored result; a different answer to it fails with domain.ErrAlreadyAnswered.
func (s *LiveService) SubmitAnswer(ctx context.Context, code, participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	session, ok := s.sessions.ByCode(code)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}
	bank, err := s.banks.GetBank(ctx, session.Snapshot().BankID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	session.mu.Lock()
	if session.info.Status != domain.StatusRunning {
		session.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrSessionNotRunning
	}
	p, ok := session.participants[participantID]
	if !ok {
		session.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}

	targetsLast := p.last != nil && (p.pending == nil || (sub.QuestionID != "" && sub.QuestionID == p.last.question.ID))
	if targetsLast {
		last := p.last
		session.mu.Unlock()
		if sub.QuestionID != "" && sub.QuestionID != last.question.ID {
			return domain.AnswerResult{}, domain.ErrNoPendingQuestion
		}
		if sameAnswer(last.answerIndex, sub.AnswerIndex) {
			return last.result, nil
		}
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}
	if p.pending == nil {
		session.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrNoPendingQuestion
	}
	if sub.QuestionID != "" && sub.QuestionID != p.pending.question.ID {
		session.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrInvalidInput
	}
	if sub.AnswerIndex != nil && (*sub.AnswerIndex < 0 || *sub.AnswerIndex >= len(p.pending.question.Options)) {
		session.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrInvalidInput
	}

	now := s.now()
	result, record, events := s.gradeLocked(session, p, bank, sub, now)
	session.mu.Unlock()

	s.publish(ctx, s.bus, events)
	s.appendAnswer(ctx, record)
	return result, nil
}

// ExpireQuestion grades a still-pending question as timed out. Stale deadlines are ignored.
func (s *LiveService) ExpireQuestion(ctx context.Context, liveID, participantID, questionID string) {
	session, ok := s.sessions.Get(liveID)
	if !ok {
		return
	}
	bank, err := s.banks.GetBank(ctx, session.Snapshot().BankID)
	if err != nil {
		s.log.Error("expire question: load bank", "live_id", liveID, "error", err)
		return
	}

	session.mu.Lock()
	p, ok := session.participants[participantID]
	if !ok || session.info.Status != domain.StatusRunning || p.pending == nil || p.pending.question.ID != questionID {
		session.mu.Unlock()
		return
	}
	now := s.now()
	result, record, events := s.gradeLocked(session, p, bank, domain.AnswerSubmission{QuestionID: questionID}, now)
	events = append(events, session.event(domain.EventAnswerTimeout, participantID, result, now))
	session.mu.Unlock()

	s.log.Debug("question expired", "live_id", liveID, "participant_id", participantID, "question_id", questionID)
	s.publish(ctx, s.bus, events)
	s.appendAnswer(ctx, record)
}

// Explanation returns both explanations of the participant's last graded question.
func (s *LiveService) Explanation(_ context.Context, code, participantID string) (domain.Explanation, error) {
	session, ok := s.sessions.ByCode(code)
	if !ok {
		return domain.Explanation{}, domain.ErrSessionNotFound
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	p, ok := session.participants[participantID]
	if !ok {
		return domain.Explanation{}, domain.ErrParticipantNotFound
	}
	if p.last == nil {
		return domain.Explanation{}, domain.ErrNoPendingQuestion
	}
	q := p.last.question
	return domain.Explanation{QuestionID: q.ID, Brief: q.ExplainBrief, Detailed: q.ExplainDetailed}, nil
}

// serveLocked returns the pending question or selects and arms a new one.
func (s *LiveService) serveLocked(session *LiveSession, participantID string, bank domain.ItemBank, now time.Time) domain.NextQuestion {
	p := session.participants[participantID]
	timer := int(s.cfg.QuestionTimer / time.Second)
	if p.pending != nil {
		view := p.pending.question.View()
		return domain.NextQuestion{Question: &view, QuestionNumber: p.pending.number, TimerSeconds: timer, Deadline: p.pending.deadline}
	}
	if p.finished {
		return domain.NextQuestion{Exhausted: true}
	}
	q, ok := s.selector.Next(bank, p.ability, p.seen)
	if !ok {
		p.finished = true
		s.log.Info("quiz exhausted", "live_id", session.info.LiveID, "participant_id", participantID, "total_served", p.ability.TotalServed)
		return domain.NextQuestion{Exhausted: true}
	}
	p.seen[q.ID] = struct{}{}
	if p.ability.Topic == "" {
		p.ability.Topic = q.Topic
	}
	p.pending = &pendingQuestion{
		question: q,
		number:   p.ability.TotalServed + 1,
		deadline: now.Add(s.cfg.QuestionTimer),
	}
	s.armQuestionTimerLocked(session, participantID, p.pending)
	s.metrics.QuestionServed()

	view := q.View()
	return domain.NextQuestion{Question: &view, QuestionNumber: p.pending.number, TimerSeconds: timer, Deadline: p.pending.deadline}
}

func (s *LiveService) armQuestionTimerLocked(session *LiveSession, participantID string, pending *pendingQuestion) {
	liveID := session.info.LiveID
	questionID := pending.question.ID
	d := pending.deadline.Sub(s.now())
	session.timers.schedule(questionTimerKey(participantID), d, func() {
		s.ExpireQuestion(context.Background(), liveID, participantID, questionID)
	})
}

// gradeLocked applies one answer to the participant's state and returns the result, its audit
// record and the events to publish.
func (s *LiveService) gradeLocked(session *LiveSession, p *participantState, bank domain.ItemBank, sub domain.AnswerSubmission, now time.Time) (domain.AnswerResult, domain.AnsweredRecord, []domain.Event) {
	pending := p.pending
	q := pending.question

	timedOut := sub.AnswerIndex == nil ||
		time.Duration(sub.ElapsedMs)*time.Millisecond > s.cfg.QuestionTimer ||
		now.After(pending.deadline)
	correct := !timedOut && *sub.AnswerIndex == q.AnswerIndex

	p.ability = s.estimator.Update(p.ability, correct, q.Difficulty)
	p.pending = nil
	session.timers.cancel(questionTimerKey(p.info.ParticipantID))

	if _, more := s.selector.Next(bank, p.ability, p.seen); !more {
		p.finished = true
	}

	result := domain.AnswerResult{
		QuestionID:   q.ID,
		Correct:      correct,
		TimedOut:     timedOut,
		CorrectIndex: q.AnswerIndex,
		NextAction:   domain.ActionContinue,
		TotalServed:  p.ability.TotalServed,
		CurrentLevel: p.ability.Level,
		Theta:        p.ability.Theta,
	}
	switch {
	case p.finished:
		result.NextAction = domain.ActionFinished
	case !correct:
		result.NextAction = domain.ActionExplanationRequired
	}
	if !correct {
		explanation := q.ExplainDetailed
		if explanation == "" {
			explanation = q.ExplainBrief
		}
		result.Explanation = &explanation
	}

	var answerIndex *int
	if sub.AnswerIndex != nil {
		idx := *sub.AnswerIndex
		answerIndex = &idx
	}
	p.last = &gradedQuestion{question: q, answerIndex: answerIndex, result: result}

	outcome := "incorrect"
	switch {
	case timedOut:
		outcome = "timeout"
	case correct:
		outcome = "correct"
	}
	s.metrics.Answer(outcome, sub.ElapsedMs)

	record := domain.AnsweredRecord{
		ID:            uuid.NewString(),
		LiveID:        session.info.LiveID,
		ParticipantID: p.info.ParticipantID,
		QuestionID:    q.ID,
		AnswerIndex:   answerIndex,
		Correct:       correct,
		TimedOut:      timedOut,
		ElapsedMs:     sub.ElapsedMs,
		ThetaAfter:    p.ability.Theta,
		LevelAfter:    p.ability.Level,
		CreatedAt:     now,
	}
	events := []domain.Event{
		session.event(domain.EventParticipantUpdate, p.info.ParticipantID, session.statusLocked(p), now),
	}
	return result, record, events
}

// appendAnswer writes the audit record after the state transition committed.
func (s *LiveService) appendAnswer(ctx context.Context, record domain.AnsweredRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendAnswer(ctx, record); err != nil {
		s.metrics.AuditFailure("answer")
		s.log.Error("audit append answer", "live_id", record.LiveID, "participant_id", record.ParticipantID, "error", err)
	}
}

func sameAnswer(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
