package http

import (
	"net/http"
	"testing"

	"quiz-live-service/internal/domain"
)

func TestSimulatorFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, 50)
	live := srv.createLive(t)
	pid := srv.joinLive(t, live.Code, "Grace", "Hopper")

	var listed struct {
		Exercises []domain.Exercise `json:"exercises"`
	}
	if status := srv.do(t, http.MethodGet, "/api/simulator/exercises?simulator_type=spreadsheet", "", nil, &listed); status != http.StatusOK {
		t.Fatalf("list exercises: %d", status)
	}
	if len(listed.Exercises) != 1 || listed.Exercises[0].ExerciseID != "excel-data-analysis" {
		t.Fatalf("unexpected exercises %+v", listed.Exercises)
	}
	var body errorBody
	if status := srv.do(t, http.MethodGet, "/api/simulator/exercises?simulator_type=photoshop", "", nil, &body); status != http.StatusBadRequest {
		t.Fatalf("unknown simulator type: %d", status)
	}

	var steps struct {
		Steps []domain.StepView `json:"steps"`
	}
	if status := srv.do(t, http.MethodGet, "/api/simulator/exercises/excel-data-analysis/steps", "", nil, &steps); status != http.StatusOK || len(steps.Steps) == 0 {
		t.Fatalf("steps: %d %+v", status, steps)
	}
	firstStep := steps.Steps[0].StepID

	create := map[string]any{"live_id": live.LiveID, "exercise_id": "excel-data-analysis", "mode": "training"}
	if status := srv.do(t, http.MethodPost, "/api/simulator/sessions", "", create, &body); status != http.StatusUnauthorized {
		t.Fatalf("create without token: %d", status)
	}
	var session domain.SimulatorSession
	if status := srv.do(t, http.MethodPost, "/api/simulator/sessions", live.Token, create, &session); status != http.StatusCreated {
		t.Fatalf("create: %d", status)
	}
	base := "/api/simulator/sessions/" + session.SessionID

	if status := srv.do(t, http.MethodPost, base+"/join", "", map[string]string{"participant_id": pid}, nil); status != http.StatusOK {
		t.Fatalf("join: %d", status)
	}
	action := map[string]any{"participant_id": pid, "action_type": "click", "target_element": ".data-tab .sort"}
	if status := srv.do(t, http.MethodPost, base+"/actions", "", action, &body); status != http.StatusConflict || body.Code != "session_not_running" {
		t.Fatalf("action before start: %d %+v", status, body)
	}
	if status := srv.do(t, http.MethodPost, base+"/start", "", nil, &body); status != http.StatusUnauthorized {
		t.Fatalf("start without token: %d", status)
	}
	if status := srv.do(t, http.MethodPost, base+"/start", live.Token, nil, nil); status != http.StatusOK {
		t.Fatalf("start: %d", status)
	}

	var hint domain.HintResult
	hintReq := map[string]any{"participant_id": pid, "step_id": firstStep, "hint_level": 1}
	if status := srv.do(t, http.MethodPost, base+"/hints", "", hintReq, &hint); status != http.StatusOK || hint.Denied || hint.PenaltyApplied != 2 {
		t.Fatalf("hint: %d %+v", status, hint)
	}

	var result domain.ActionResult
	if status := srv.do(t, http.MethodPost, base+"/actions", "", action, &result); status != http.StatusOK {
		t.Fatalf("action: %d", status)
	}
	if !result.IsCorrect || result.ScoreDelta != 13 || result.NextStep == nil {
		t.Fatalf("unexpected action result %+v", result)
	}

	var progress domain.SimulatorProgress
	if status := srv.do(t, http.MethodGet, base+"/progress/"+pid, "", nil, &progress); status != http.StatusOK {
		t.Fatalf("progress: %d", status)
	}
	if progress.TotalScore != 13 || len(progress.CompletedSteps) != 1 || progress.HintsUsed != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if status := srv.do(t, http.MethodGet, base+"/report/"+pid, "", nil, &body); status != http.StatusConflict || body.Code != "report_not_ready" {
		t.Fatalf("report before end: %d %+v", status, body)
	}
	if status := srv.do(t, http.MethodPost, base+"/skip", "", map[string]string{"participant_id": pid}, &body); status != http.StatusConflict || body.Code != "skip_not_allowed" {
		t.Fatalf("skip under policy none: %d %+v", status, body)
	}

	if status := srv.do(t, http.MethodPost, base+"/end", live.Token, nil, nil); status != http.StatusOK {
		t.Fatalf("end: %d", status)
	}
	var report domain.SimulatorReport
	if status := srv.do(t, http.MethodGet, base+"/report/"+pid, "", nil, &report); status != http.StatusOK {
		t.Fatalf("report: %d", status)
	}
	if report.ParticipantName != "Grace Hopper" || report.TotalScore != 13 || len(report.ActionReplay) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}
