package domain

import "time"

// EventType names a real-time event delivered to session observers.
type EventType string

const (
	EventLobbyUpdate       EventType = "lobby.update"
	EventLiveStart         EventType = "live.start"
	EventRoundStart        EventType = "round.start"
	EventLivePause         EventType = "live.pause"
	EventLiveResume        EventType = "live.resume"
	EventLiveEnd           EventType = "live.end"
	EventParticipantUpdate EventType = "participant.update"
	EventAnswerTimeout     EventType = "answer.timeout"

	EventSimulatorState    EventType = "simulator.state"
	EventSimulatorProgress EventType = "simulator.progress"
	EventStepTimeout       EventType = "step.timeout"
	EventExerciseCompleted EventType = "exercise.completed"
)

// Event is one message on a session topic. A non-empty ParticipantID targets a single participant;
// facilitator observers receive every event of the topic.
type Event struct {
	Type          EventType `json:"type"`
	Topic         string    `json:"topic"`
	ParticipantID string    `json:"participant_id,omitempty"`
	Payload       any       `json:"payload,omitempty"`
	At            time.Time `json:"at"`
}

// SimulatorTopic is the event topic of a simulator session.
func SimulatorTopic(sessionID string) string {
	return "simulator:" + sessionID
}

// LobbyPayload carries the full roster; consumers replace, never merge.
type LobbyPayload struct {
	Participants []RosterEntry `json:"participants"`
	Locked       bool          `json:"locked"`
}

// StartPayload announces the countdown before the first round.
type StartPayload struct {
	Countdown int `json:"countdown"`
}

// RoundPayload carries the first question served to a participant.
type RoundPayload struct {
	Question       *QuestionView `json:"question,omitempty"`
	QuestionNumber int           `json:"question_number,omitempty"`
	Timer          int           `json:"timer"`
	Exhausted      bool          `json:"exhausted,omitempty"`
}

// EndPayload carries the final report.
type EndPayload struct {
	Report LiveReport `json:"report"`
}

// StepTimeoutPayload reports an expired step deadline.
type StepTimeoutPayload struct {
	StepID   string            `json:"step_id"`
	Missed   bool              `json:"missed"`
	Progress SimulatorProgress `json:"progress"`
}
