package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quiz-live-service/internal/domain"
)

type createLiveRequest struct {
	Title  string `json:"title"`
	BankID string `json:"bank_id"`
}

type createLiveResponse struct {
	domain.LiveSession
	Token string `json:"token"`
}

func (h *Handler) createLive(w http.ResponseWriter, r *http.Request) {
	var req createLiveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	session, err := h.live.CreateSession(r.Context(), req.Title, req.BankID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.auth.Issue(session.LiveID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createLiveResponse{LiveSession: session, Token: token})
}

func (h *Handler) resolveCode(w http.ResponseWriter, r *http.Request) {
	liveID, err := h.live.ResolveCode(chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"live_id": liveID})
}

func (h *Handler) lobby(w http.ResponseWriter, r *http.Request) {
	roster, err := h.live.Roster(r.Context(), chi.URLParam(r, "liveID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (h *Handler) lockLive(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.live.Lock(r.Context(), chi.URLParam(r, "liveID")))
}

func (h *Handler) startLive(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.live.Start(r.Context(), chi.URLParam(r, "liveID")))
}

func (h *Handler) pauseLive(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.live.Pause(r.Context(), chi.URLParam(r, "liveID")))
}

func (h *Handler) resumeLive(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.live.Resume(r.Context(), chi.URLParam(r, "liveID")))
}

func (h *Handler) liveDetails(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w, r)(h.live.Details(r.Context(), chi.URLParam(r, "liveID")))
}

func (h *Handler) endLive(w http.ResponseWriter, r *http.Request) {
	report, err := h.live.End(r.Context(), chi.URLParam(r, "liveID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) liveParticipants(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.live.Participants(r.Context(), chi.URLParam(r, "liveID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": statuses})
}

func (h *Handler) liveReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.live.Report(r.Context(), chi.URLParam(r, "liveID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request) func(domain.LiveSession, error) {
	return func(session domain.LiveSession, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}
