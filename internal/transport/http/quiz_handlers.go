package http

import (
	"net/http"

	"quiz-live-service/internal/domain"
)

type joinRequest struct {
	Code string `json:"code"`
	domain.ParticipantInfo
}

type roundRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participant_id"`
}

type answerRequest struct {
	roundRequest
	domain.AnswerSubmission
}

type exhaustedBody struct {
	errorBody
	Exhausted bool `json:"exhausted"`
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	participant, err := h.live.Join(r.Context(), req.Code, req.ParticipantInfo)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

// nextQuestion answers 400 with exhausted=true once the participant has no more questions.
func (h *Handler) nextQuestion(w http.ResponseWriter, r *http.Request) {
	var req roundRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	next, err := h.live.NextQuestion(r.Context(), req.Code, req.ParticipantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if next.Exhausted {
		writeJSON(w, http.StatusBadRequest, exhaustedBody{
			errorBody: errorBody{Error: "no more questions", Code: "exhausted"},
			Exhausted: true,
		})
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.live.SubmitAnswer(r.Context(), req.Code, req.ParticipantID, req.AnswerSubmission)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) explanation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	explanation, err := h.live.Explanation(r.Context(), q.Get("code"), q.Get("participant_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, explanation)
}
