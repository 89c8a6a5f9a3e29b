package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// LiveStatus is the lifecycle state of a live session.
type LiveStatus string

const (
	StatusLobby   LiveStatus = "lobby"
	StatusRunning LiveStatus = "running"
	StatusPaused  LiveStatus = "paused"
	StatusEnded   LiveStatus = "ended"
)

// Level is the discrete proficiency band derived from theta.
type Level string

const (
	LevelBase     Level = "base"
	LevelMedio    Level = "medio"
	LevelAvanzato Level = "avanzato"
)

// Levels lists the bands in ascending order.
var Levels = []Level{LevelBase, LevelMedio, LevelAvanzato}

// Rank returns the position of the level in the ordered set, or -1 when unknown.
func (l Level) Rank() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the known bands.
func (l Level) Valid() bool { return l.Rank() >= 0 }

// NextAction tells the client what to do after a graded answer.
type NextAction string

const (
	ActionContinue            NextAction = "continue"
	ActionExplanationRequired NextAction = "explanation_required"
	ActionFinished            NextAction = "finished"
)

// LiveSession is the externally visible state of a live session.
type LiveSession struct {
	LiveID    string     `json:"live_id"`
	Code      string     `json:"code"`
	Title     string     `json:"title,omitempty"`
	Status    LiveStatus `json:"status"`
	Locked    bool       `json:"locked"`
	BankID    string     `json:"bank_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// ParticipantInfo is what a participant submits on join.
type ParticipantInfo struct {
	Nome    string `json:"nome"`
	Cognome string `json:"cognome"`
	Email   string `json:"email,omitempty"`
	Corso   string `json:"corso,omitempty"`
}

// Participant is a joined participant. Identity is immutable after creation.
type Participant struct {
	ParticipantID string    `json:"participant_id"`
	LiveID        string    `json:"live_id"`
	Nome          string    `json:"nome"`
	Cognome       string    `json:"cognome"`
	Email         string    `json:"email,omitempty"`
	Corso         string    `json:"corso,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

// DisplayName joins the name parts.
func (p Participant) DisplayName() string {
	return strings.TrimSpace(p.Nome + " " + p.Cognome)
}

// RosterEntry is the lobby view of a participant.
type RosterEntry struct {
	ParticipantID string `json:"participant_id"`
	Nome          string `json:"nome"`
	Cognome       string `json:"cognome"`
}

// AbilityState is the adaptive state of one participant.
type AbilityState struct {
	Theta       float64 `json:"theta"`
	Level       Level   `json:"current_level"`
	TotalServed int     `json:"total_served"`
	Correct     int     `json:"correct"`
	Topic       string  `json:"topic,omitempty"`
}

// CorrectPercentage is the running share of correct answers, rounded to one decimal.
func (s AbilityState) CorrectPercentage() float64 {
	if s.TotalServed == 0 {
		return 0
	}
	return roundTenth(float64(s.Correct) / float64(s.TotalServed) * 100)
}

// Question is an immutable item of the bank.
type Question struct {
	ID              string   `json:"id" yaml:"id"`
	Topic           string   `json:"topic" yaml:"topic"`
	Level           Level    `json:"level" yaml:"level"`
	Difficulty      float64  `json:"difficulty" yaml:"difficulty"`
	Prompt          string   `json:"question" yaml:"question"`
	Options         []string `json:"options" yaml:"options"`
	AnswerIndex     int      `json:"answer_index" yaml:"answer_index"`
	ExplainBrief    string   `json:"explain_brief" yaml:"explain_brief"`
	ExplainDetailed string   `json:"explain_detailed" yaml:"explain_detailed"`
	SourceRefs      []string `json:"source_refs,omitempty" yaml:"source_refs"`
}

// EnsureID assigns a content hash id to questions loaded without one.
func (q *Question) EnsureID() {
	if q.ID != "" {
		return
	}
	h := sha1.New()
	h.Write([]byte(q.Prompt))
	for _, opt := range q.Options {
		h.Write([]byte{0})
		h.Write([]byte(opt))
	}
	q.ID = hex.EncodeToString(h.Sum(nil))[:16]
}

// View strips the correct index so the question can be sent to participants.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:              q.ID,
		Topic:           q.Topic,
		Level:           q.Level,
		Difficulty:      q.Difficulty,
		Prompt:          q.Prompt,
		Options:         append([]string(nil), q.Options...),
		ExplainBrief:    q.ExplainBrief,
		ExplainDetailed: q.ExplainDetailed,
		SourceRefs:      append([]string(nil), q.SourceRefs...),
	}
}

// QuestionView is the participant-facing question.
type QuestionView struct {
	ID              string   `json:"id"`
	Topic           string   `json:"topic"`
	Level           Level    `json:"level"`
	Difficulty      float64  `json:"difficulty"`
	Prompt          string   `json:"question"`
	Options         []string `json:"options"`
	ExplainBrief    string   `json:"explain_brief,omitempty"`
	ExplainDetailed string   `json:"explain_detailed,omitempty"`
	SourceRefs      []string `json:"source_refs,omitempty"`
}

// ItemBank is a named collection of questions in insertion order.
type ItemBank struct {
	ID        string     `json:"id" yaml:"id"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// NextQuestion is the outcome of asking for the next item. Exhausted is a normal end, not an error.
type NextQuestion struct {
	Exhausted      bool          `json:"exhausted"`
	Question       *QuestionView `json:"question,omitempty"`
	QuestionNumber int           `json:"question_number,omitempty"`
	TimerSeconds   int           `json:"timer,omitempty"`
	Deadline       time.Time     `json:"deadline,omitempty"`
}

// AnswerSubmission is a participant's answer. A nil AnswerIndex is a timed-out answer.
type AnswerSubmission struct {
	QuestionID  string `json:"question_id,omitempty"`
	AnswerIndex *int   `json:"answer_index"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

// AnswerResult is returned from grading.
type AnswerResult struct {
	QuestionID   string     `json:"question_id"`
	Correct      bool       `json:"correct"`
	TimedOut     bool       `json:"timed_out"`
	CorrectIndex int        `json:"correct_index"`
	NextAction   NextAction `json:"next_action"`
	Explanation  *string    `json:"explanation,omitempty"`
	TotalServed  int        `json:"total_served"`
	CurrentLevel Level      `json:"current_level"`
	Theta        float64    `json:"theta"`
}

// Explanation is the on-request explanation of the last graded question.
type Explanation struct {
	QuestionID string `json:"question_id"`
	Brief      string `json:"explain_brief"`
	Detailed   string `json:"explain_detailed"`
}

// AnsweredRecord is the append-only audit entry for one graded answer.
type AnsweredRecord struct {
	ID            string    `json:"id"`
	LiveID        string    `json:"live_id"`
	ParticipantID string    `json:"participant_id"`
	QuestionID    string    `json:"question_id"`
	AnswerIndex   *int      `json:"answer_index"`
	Correct       bool      `json:"correct"`
	TimedOut      bool      `json:"timed_out"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	ThetaAfter    float64   `json:"theta_after"`
	LevelAfter    Level     `json:"level_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// ParticipantStatus is the facilitator view of one participant.
type ParticipantStatus struct {
	ParticipantID     string  `json:"participant_id"`
	Nome              string  `json:"nome"`
	Cognome           string  `json:"cognome"`
	CurrentLevel      Level   `json:"current_level"`
	Theta             float64 `json:"theta"`
	TotalServed       int     `json:"total_served"`
	CorrectPercentage float64 `json:"correct_percentage"`
	Topic             string  `json:"topic,omitempty"`
	Finished          bool    `json:"finished"`
}

// LiveReportEntry is one line of the end-of-session report.
type LiveReportEntry struct {
	ParticipantID  string  `json:"participant_id"`
	Nome           string  `json:"nome"`
	Cognome        string  `json:"cognome"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	Percentage     float64 `json:"percentage"`
	FinalLevel     Level   `json:"final_level"`
	FinalTheta     float64 `json:"final_theta"`
}

// LiveReport is built once when the session ends.
type LiveReport struct {
	LiveID  string            `json:"live_id"`
	EndedAt time.Time         `json:"ended_at"`
	Entries []LiveReportEntry `json:"entries"`
}

func roundTenth(v float64) float64 {
	if v < 0 {
		return -roundTenth(-v)
	}
	return float64(int64(v*10+0.5)) / 10
}
