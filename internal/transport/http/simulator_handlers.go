package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
)

type participantRequest struct {
	ParticipantID string `json:"participant_id"`
}

func (h *Handler) listExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := h.sim.ListExercises(r.Context(), domain.SimulatorType(r.URL.Query().Get("simulator_type")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if exercises == nil {
		exercises = []domain.Exercise{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exercises": exercises})
}

func (h *Handler) exerciseSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.sim.ExerciseSteps(r.Context(), chi.URLParam(r, "exerciseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// createSimulatorSession is reserved to the facilitator of the parent live session.
func (h *Handler) createSimulatorSession(w http.ResponseWriter, r *http.Request) {
	var req app.CreateSimulatorRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.auth.Authorize(r, req.LiveID); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.sim.CreateSession(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) simulatorDetails(w http.ResponseWriter, r *http.Request) {
	h.writeSimulator(w, r)(h.sim.Details(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) startSimulator(w http.ResponseWriter, r *http.Request) {
	h.writeSimulator(w, r)(h.sim.Start(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) pauseSimulator(w http.ResponseWriter, r *http.Request) {
	h.writeSimulator(w, r)(h.sim.Pause(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) resumeSimulator(w http.ResponseWriter, r *http.Request) {
	h.writeSimulator(w, r)(h.sim.Resume(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) endSimulator(w http.ResponseWriter, r *http.Request) {
	h.writeSimulator(w, r)(h.sim.End(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) joinSimulator(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	joined, err := h.sim.Join(r.Context(), chi.URLParam(r, "sessionID"), req.ParticipantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func (h *Handler) recordAction(w http.ResponseWriter, r *http.Request) {
	var req domain.ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	result, err := h.sim.RecordAction(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requestHint returns 200 for denials too; Denied is part of the body.
func (h *Handler) requestHint(w http.ResponseWriter, r *http.Request) {
	var req domain.HintRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	result, err := h.sim.RequestHint(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) skipStep(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.sim.SkipStep(r.Context(), chi.URLParam(r, "sessionID"), req.ParticipantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) simulatorProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.sim.Progress(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "participantID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) simulatorReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.sim.Report(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "participantID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeSimulator(w http.ResponseWriter, r *http.Request) func(domain.SimulatorSession, error) {
	return func(session domain.SimulatorSession, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}
