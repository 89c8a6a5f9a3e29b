package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-live-service/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{domain.ErrParticipantNotFound, http.StatusNotFound, "participant_not_found"},
	{domain.ErrBankNotFound, http.StatusNotFound, "bank_not_found"},
	{domain.ErrExerciseNotFound, http.StatusNotFound, "exercise_not_found"},
	{domain.ErrStepNotFound, http.StatusNotFound, "step_not_found"},
	{domain.ErrSessionLocked, http.StatusForbidden, "session_locked"},
	{domain.ErrSessionClosed, http.StatusForbidden, "session_closed"},
	{domain.ErrCodeTaken, http.StatusConflict, "code_taken"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrSessionNotRunning, http.StatusConflict, "session_not_running"},
	{domain.ErrAlreadyAnswered, http.StatusConflict, "already_answered"},
	{domain.ErrNoPendingQuestion, http.StatusConflict, "no_pending_question"},
	{domain.ErrExerciseFinished, http.StatusConflict, "exercise_finished"},
	{domain.ErrReportNotReady, http.StatusConflict, "report_not_ready"},
	{domain.ErrSkipNotAllowed, http.StatusConflict, "skip_not_allowed"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{errUnauthorized, http.StatusUnauthorized, "unauthorized"},
}

// statusFor maps a service error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}
