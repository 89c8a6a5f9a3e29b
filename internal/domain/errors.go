package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live or simulator session matches the given id or code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a participant acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrBankNotFound indicates the item bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrExerciseNotFound indicates the exercise template does not exist.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrStepNotFound indicates a step id does not belong to the exercise.
	ErrStepNotFound = errors.New("step not found")

	// ErrSessionLocked is returned when joining a locked lobby.
	ErrSessionLocked = errors.New("session is locked")
	// ErrSessionClosed is returned when joining a session that already left the lobby.
	ErrSessionClosed = errors.New("session not joinable")
	// ErrCodeTaken is returned by stores when a join code is already reserved by an open session.
	ErrCodeTaken = errors.New("join code already in use")

	// ErrInvalidTransition is returned for lifecycle transitions that are not legal from the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSessionNotRunning is returned when questions, answers or actions arrive outside "running".
	ErrSessionNotRunning = errors.New("session is not running")
	// ErrAlreadyAnswered is returned for a second, different answer to a graded question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNoPendingQuestion is returned when an answer arrives before any question was served.
	ErrNoPendingQuestion = errors.New("no question to answer")
	// ErrExerciseFinished is returned when actions arrive after the exercise completed or failed.
	ErrExerciseFinished = errors.New("exercise already finished")
	// ErrReportNotReady is returned when a report is requested before the run is over.
	ErrReportNotReady = errors.New("report not ready")
	// ErrSkipNotAllowed is returned when the skip policy or the step forbids skipping.
	ErrSkipNotAllowed = errors.New("step cannot be skipped")

	// ErrInvalidInput flags malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when the caller is not the facilitator of the session.
	ErrForbidden = errors.New("forbidden")
)
