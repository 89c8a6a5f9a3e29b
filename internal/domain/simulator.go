package domain

import "time"

// SimulatorType is the closed set of simulated applications.
type SimulatorType string

const (
	SimulatorDesktop      SimulatorType = "desktop"
	SimulatorWord         SimulatorType = "word"
	SimulatorSpreadsheet  SimulatorType = "spreadsheet"
	SimulatorPresentation SimulatorType = "presentation"
)

// Valid reports whether t is a known simulator.
func (t SimulatorType) Valid() bool {
	switch t {
	case SimulatorDesktop, SimulatorWord, SimulatorSpreadsheet, SimulatorPresentation:
		return true
	}
	return false
}

// ActionType is a recorded UI interaction.
type ActionType string

const (
	ActionClick       ActionType = "click"
	ActionDoubleClick ActionType = "double_click"
	ActionRightClick  ActionType = "right_click"
	ActionTypeText    ActionType = "type"
	ActionDrag        ActionType = "drag"
	ActionKeyCombo    ActionType = "key_combo"
	ActionStepTimeout ActionType = "step_timeout"
	ActionSkip        ActionType = "skip"
)

// SimulatorMode selects how strictly deadlines and attempts are enforced.
type SimulatorMode string

const (
	ModeTraining SimulatorMode = "training"
	ModeExam     SimulatorMode = "exam"
)

// SimulatorStatus is the lifecycle of a simulator session.
type SimulatorStatus string

const (
	SimLobby     SimulatorStatus = "lobby"
	SimRunning   SimulatorStatus = "running"
	SimPaused    SimulatorStatus = "paused"
	SimCompleted SimulatorStatus = "completed"
)

// ProgressStatus is the per-participant exercise state.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// Terminal reports whether no further action can change the progress.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressCompleted || s == ProgressFailed
}

// SkipPolicy controls how non-mandatory steps may be bypassed.
type SkipPolicy string

const (
	// SkipNone requires every step to be performed.
	SkipNone SkipPolicy = "none"
	// SkipExplicit lets the participant skip the current non-mandatory step on request.
	SkipExplicit SkipPolicy = "explicit"
	// SkipTrailingOptional completes the exercise once the last mandatory step is satisfied.
	SkipTrailingOptional SkipPolicy = "trailing_optional"
)

// Valid reports whether p is a known policy.
func (p SkipPolicy) Valid() bool {
	return p == SkipNone || p == SkipExplicit || p == SkipTrailingOptional
}

// Predicate is one structured success condition. Empty fields are not constrained;
// State entries must all equal the action metadata under the same key.
type Predicate struct {
	ActionType ActionType        `json:"action_type,omitempty" yaml:"action_type"`
	Target     string            `json:"target,omitempty" yaml:"target"`
	Value      *string           `json:"value,omitempty" yaml:"value"`
	State      map[string]string `json:"state,omitempty" yaml:"state"`
}

// Point is a coordinate pair of a guided animation or a recorded click.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// HintLevel is 1 (text), 2 (highlight) or 3 (guided animation).
type HintLevel int

const (
	HintText      HintLevel = 1
	HintHighlight HintLevel = 2
	HintAnimation HintLevel = 3
)

// Hint is the content of one hint level.
type Hint struct {
	Level             HintLevel `json:"level" yaml:"level"`
	Text              string    `json:"text,omitempty" yaml:"text"`
	HighlightSelector string    `json:"highlight_selector,omitempty" yaml:"highlight_selector"`
	AnimationPath     []Point   `json:"animation_path,omitempty" yaml:"animation_path"`
}

// Step is one graded unit of an exercise.
type Step struct {
	StepID           string      `json:"step_id" yaml:"step_id"`
	StepNumber       int         `json:"step_number" yaml:"step_number"`
	Title            string      `json:"title" yaml:"title"`
	Description      string      `json:"description" yaml:"description"`
	TargetElement    string      `json:"target_element" yaml:"target_element"`
	ActionType       ActionType  `json:"action_type" yaml:"action_type"`
	ExpectedValue    *string     `json:"expected_value,omitempty" yaml:"expected_value"`
	SuccessCriteria  Predicate   `json:"success_criteria" yaml:"success_criteria"`
	AlternativePaths []Predicate `json:"alternative_paths,omitempty" yaml:"alternative_paths"`
	Hints            []Hint      `json:"hints,omitempty" yaml:"hints"`
	Points           int         `json:"points" yaml:"points"`
	Mandatory        bool        `json:"is_mandatory" yaml:"is_mandatory"`
	TimeoutSeconds   int         `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// StepView is the participant-facing step without criteria or hint content.
type StepView struct {
	StepID         string     `json:"step_id"`
	StepNumber     int        `json:"step_number"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	ActionType     ActionType `json:"action_type"`
	Points         int        `json:"points"`
	Mandatory      bool       `json:"is_mandatory"`
	TimeoutSeconds int        `json:"timeout_seconds"`
	HintLevels     int        `json:"hint_levels"`
}

// View returns the participant-facing projection.
func (s Step) View() StepView {
	return StepView{
		StepID:         s.StepID,
		StepNumber:     s.StepNumber,
		Title:          s.Title,
		Description:    s.Description,
		ActionType:     s.ActionType,
		Points:         s.Points,
		Mandatory:      s.Mandatory,
		TimeoutSeconds: s.TimeoutSeconds,
		HintLevels:     len(s.Hints),
	}
}

// Exercise is an immutable simulator template.
type Exercise struct {
	ExerciseID       string        `json:"exercise_id" yaml:"exercise_id"`
	Title            string        `json:"title" yaml:"title"`
	Description      string        `json:"description" yaml:"description"`
	SimulatorType    SimulatorType `json:"simulator_type" yaml:"simulator_type"`
	Difficulty       Level         `json:"difficulty_level" yaml:"difficulty_level"`
	MaxTimeSeconds   int           `json:"max_time_seconds" yaml:"max_time_seconds"`
	MaxAttempts      int           `json:"max_attempts" yaml:"max_attempts"`
	PassingThreshold float64       `json:"passing_threshold" yaml:"passing_threshold"`
	Steps            []Step        `json:"steps" yaml:"steps"`
}

// MaxScore sums the point value of every step.
func (e Exercise) MaxScore() int {
	total := 0
	for _, s := range e.Steps {
		total += s.Points
	}
	return total
}

// SimulatorSession binds a live session to one exercise.
type SimulatorSession struct {
	SessionID  string          `json:"session_id"`
	LiveID     string          `json:"live_id"`
	ExerciseID string          `json:"exercise_id"`
	Mode       SimulatorMode   `json:"mode"`
	Status     SimulatorStatus `json:"status"`
	HintBudget int             `json:"hint_budget"`
	SkipPolicy SkipPolicy      `json:"skip_policy"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SimulatorProgress is the single source of truth for a participant's exercise run.
type SimulatorProgress struct {
	ParticipantID        string         `json:"participant_id"`
	SessionID            string         `json:"session_id"`
	CurrentStep          int            `json:"current_step"`
	CompletedSteps       []string       `json:"completed_steps"`
	SkippedSteps         []string       `json:"skipped_steps"`
	TotalScore           int            `json:"total_score"`
	MaxPossibleScore     int            `json:"max_possible_score"`
	HintsUsed            int            `json:"hints_used"`
	HintsRemaining       int            `json:"hints_remaining"`
	AttemptsCount        int            `json:"attempts_count"`
	Status               ProgressStatus `json:"status"`
	CompletionPercentage float64        `json:"completion_percentage"`
	StartedAt            *time.Time     `json:"start_time,omitempty"`
	EndedAt              *time.Time     `json:"end_time,omitempty"`
}

// ActionRequest is a UI action reported by the simulator client.
type ActionRequest struct {
	ParticipantID string         `json:"participant_id"`
	SessionID     string         `json:"session_id"`
	StepID        string         `json:"step_id,omitempty"`
	ActionType    ActionType     `json:"action_type"`
	TargetElement string         `json:"target_element,omitempty"`
	Coordinates   *Point         `json:"coordinates,omitempty"`
	InputValue    *string        `json:"input_value,omitempty"`
	LatencyMs     int64          `json:"latency_ms,omitempty"`
	Metadata      map[string]any `json:"action_metadata,omitempty"`
}

// SimulatorAction is the append-only log entry of one action.
type SimulatorAction struct {
	ActionID      string         `json:"action_id"`
	ParticipantID string         `json:"participant_id"`
	SessionID     string         `json:"session_id"`
	StepID        string         `json:"step_id,omitempty"`
	ActionType    ActionType     `json:"action_type"`
	TargetElement string         `json:"target_element,omitempty"`
	Coordinates   *Point         `json:"coordinates,omitempty"`
	InputValue    *string        `json:"input_value,omitempty"`
	IsCorrect     bool           `json:"is_correct"`
	ScoreDelta    int            `json:"score_delta"`
	LatencyMs     int64          `json:"latency_ms,omitempty"`
	Metadata      map[string]any `json:"action_metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ActionResult is returned for every recorded action.
type ActionResult struct {
	ActionID          string         `json:"action_id"`
	IsCorrect         bool           `json:"is_correct"`
	ScoreDelta        int            `json:"score_delta"`
	Feedback          string         `json:"feedback_message,omitempty"`
	NextStep          *StepView      `json:"next_step,omitempty"`
	ExerciseCompleted bool           `json:"exercise_completed"`
	TotalScore        int            `json:"total_score"`
	HintsAvailable    bool           `json:"hints_available"`
	Status            ProgressStatus `json:"status"`
}

// HintRequest asks for hint content at a level for a step.
type HintRequest struct {
	ParticipantID string    `json:"participant_id"`
	SessionID     string    `json:"session_id"`
	StepID        string    `json:"step_id"`
	Level         HintLevel `json:"hint_level"`
}

// Denial reasons for hint requests.
const (
	DeniedBudget       = "budget_exhausted"
	DeniedNotAvailable = "not_available"
	DeniedStepInactive = "step_not_active"
)

// HintResult is either a granted hint or a denial. Denied is a normal outcome.
type HintResult struct {
	Denied         bool   `json:"denied"`
	Reason         string `json:"reason,omitempty"`
	Hint           *Hint  `json:"hint,omitempty"`
	PenaltyApplied int    `json:"penalty_applied"`
	StepPenalty    int    `json:"step_penalty"`
	RemainingHints int    `json:"remaining_hints"`
}

// StepBreakdown is one row of the exercise report.
type StepBreakdown struct {
	StepID      string `json:"step_id"`
	StepNumber  int    `json:"step_number"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	HintLevel   int    `json:"hint_level"`
	Penalty     int    `json:"penalty"`
	ScoreEarned int    `json:"score_earned"`
	MaxScore    int    `json:"max_score"`
}

// SimulatorReport is immutable once generated.
type SimulatorReport struct {
	ParticipantID        string            `json:"participant_id"`
	ParticipantName      string            `json:"participant_name"`
	SessionID            string            `json:"session_id"`
	ExerciseTitle        string            `json:"exercise_title"`
	Mode                 SimulatorMode     `json:"mode"`
	TotalScore           int               `json:"total_score"`
	MaxPossibleScore     int               `json:"max_possible_score"`
	CompletionPercentage float64           `json:"completion_percentage"`
	TimeTakenSeconds     int               `json:"time_taken_seconds"`
	HintsUsed            int               `json:"hints_used"`
	AttemptsCount        int               `json:"attempts_count"`
	Status               ProgressStatus    `json:"status"`
	Passed               bool              `json:"passed"`
	StepBreakdown        []StepBreakdown   `json:"step_breakdown"`
	ActionReplay         []SimulatorAction `json:"action_replay"`
	GeneratedAt          time.Time         `json:"generated_at"`
}
