package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/logger"
)

// WSHandler streams session events to observers. Facilitators receive every event of their
// session; participants receive broadcast events plus the ones addressed to them and may drive
// their round over the same socket.
type WSHandler struct {
	live     *app.LiveService
	sim      *app.SimulatorService
	hub      *app.Hub
	auth     *Authenticator
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(live *app.LiveService, sim *app.SimulatorService, hub *app.Hub, auth *Authenticator, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		live: live,
		sim:  sim,
		hub:  hub,
		auth: auth,
		log:  log.With("service", "WS"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

const (
	msgJoined    = "joined"
	msgQuestion  = "question"
	msgExhausted = "exhausted"
	msgResult    = "answer.result"
	msgError     = "error"
)

// ServeFacilitator serves /ws/live/{liveID}?token=... The first message is the current lobby.
func (h *WSHandler) ServeFacilitator(w http.ResponseWriter, r *http.Request) {
	liveID := chi.URLParam(r, "liveID")
	if err := h.auth.Authorize(r, liveID); err != nil {
		status, code := statusFor(err)
		writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
		return
	}
	lobby, err := h.live.Roster(r.Context(), liveID)
	if err != nil {
		status, code := statusFor(err)
		writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
		return
	}
	h.serve(w, r, liveID, "", []outboundMessage[any]{{Type: string(domain.EventLobbyUpdate), Payload: lobby}}, nil)
}

// ServeParticipant serves /ws/participant/{code}/{participantID}. The first message is "joined";
// inbound {"type":"next"} and {"type":"answer","payload":{...}} map to the round operations.
func (h *WSHandler) ServeParticipant(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	participantID := chi.URLParam(r, "participantID")
	var participant domain.Participant
	liveID, err := h.live.ResolveCode(code)
	if err == nil {
		participant, err = h.live.Participant(liveID, participantID)
	}
	if err != nil {
		status, errCode := statusFor(err)
		writeJSON(w, status, errorBody{Error: err.Error(), Code: errCode})
		return
	}

	handle := func(in inboundMessage) outboundMessage[any] {
		switch in.Type {
		case "next":
			next, err := h.live.NextQuestion(r.Context(), code, participantID)
			if err != nil {
				return errorMessage(err)
			}
			if next.Exhausted {
				return outboundMessage[any]{Type: msgExhausted, Payload: next}
			}
			return outboundMessage[any]{Type: msgQuestion, Payload: next}
		case "answer":
			var sub domain.AnswerSubmission
			if err := json.Unmarshal(in.Payload, &sub); err != nil {
				return errorMessage(domain.ErrInvalidInput)
			}
			result, err := h.live.SubmitAnswer(r.Context(), code, participantID, sub)
			if err != nil {
				return errorMessage(err)
			}
			return outboundMessage[any]{Type: msgResult, Payload: result}
		default:
			return outboundMessage[any]{Type: msgError, Payload: errorBody{Error: "unsupported message type", Code: "unsupported"}}
		}
	}
	h.serve(w, r, liveID, participantID, []outboundMessage[any]{{Type: msgJoined, Payload: participant}}, handle)
}

// ServeSimulator serves /ws/simulator/{sessionID}. With ?participant_id= only that participant's
// events and session-wide events are delivered; without it the facilitator token is required.
func (h *WSHandler) ServeSimulator(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	info, err := h.sim.Details(r.Context(), sessionID)
	participantID := r.URL.Query().Get("participant_id")
	if err == nil {
		if participantID == "" {
			err = h.auth.Authorize(r, info.LiveID)
		} else {
			_, err = h.sim.Progress(r.Context(), sessionID, participantID)
		}
	}
	if err != nil {
		status, code := statusFor(err)
		writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
		return
	}
	initial := []outboundMessage[any]{{Type: string(domain.EventSimulatorState), Payload: info}}
	h.serve(w, r, domain.SimulatorTopic(sessionID), participantID, initial, nil)
}

// serve runs one connection. A writer goroutine owns the socket writes and a forwarder copies hub
// events (written as-is, {"type","topic","payload","at"}) into the send queue while the read loop
// answers inbound messages.
func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, topic, participantID string, initial []outboundMessage[any], handle func(inboundMessage) outboundMessage[any]) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "topic", topic, "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(topic, participantID)
	defer cancel()

	send := make(chan any, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "topic", topic, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- ev:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for _, msg := range initial {
		send <- msg
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if handle == nil {
			continue
		}
		select {
		case send <- handle(inbound):
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func errorMessage(err error) outboundMessage[any] {
	_, code := statusFor(err)
	return outboundMessage[any]{Type: msgError, Payload: errorBody{Error: err.Error(), Code: code}}
}
