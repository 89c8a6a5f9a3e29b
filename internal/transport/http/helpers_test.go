package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
	"quiz-live-service/internal/metrics"
)

type testServer struct {
	*httptest.Server
	live  *app.LiveService
	sim   *app.SimulatorService
	audit *memory.AuditLog
}

func newTestServer(t *testing.T, questionCap int) *testServer {
	t.Helper()
	bank, err := memory.SampleBank()
	if err != nil {
		t.Fatalf("sample bank: %v", err)
	}
	catalog, err := memory.DefaultExerciseCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	hub := app.NewHub()
	bus := app.NewLocalBus(hub)
	audit := memory.NewAuditLog()
	banks := memory.NewBankRepository(memory.NewStaticBankLoader(map[string]domain.ItemBank{bank.ID: bank}), time.Minute)

	cfg := app.DefaultLiveConfig()
	cfg.QuestionCap = questionCap
	cfg.Countdown = 0
	m := metrics.New(prometheus.NewRegistry())
	live := app.NewLiveService(memory.NewLiveSessionStore(), banks, audit, bus, cfg, app.WithMetrics(m))
	sim := app.NewSimulatorService(memory.NewSimulatorSessionStore(), catalog, live, audit, bus, app.DefaultSimulatorConfig(), app.WithMetrics(m))

	handler := NewHandler(Options{
		Live:      live,
		Simulator: sim,
		Hub:       hub,
		Auth:      NewAuthenticator("test-secret", time.Hour),
		Metrics:   m,
	})
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, live: live, sim: sim, audit: audit}
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type createdLive struct {
	LiveID string `json:"live_id"`
	Code   string `json:"code"`
	Token  string `json:"token"`
}

func (s *testServer) createLive(t *testing.T) createdLive {
	t.Helper()
	var created createdLive
	if status := s.do(t, http.MethodPost, "/api/live", "", map[string]string{"title": "Reti"}, &created); status != http.StatusCreated {
		t.Fatalf("create live: status %d", status)
	}
	if created.LiveID == "" || len(created.Code) != 6 || created.Token == "" {
		t.Fatalf("unexpected create response %+v", created)
	}
	return created
}

func (s *testServer) joinLive(t *testing.T, code, nome, cognome string) string {
	t.Helper()
	var participant domain.Participant
	body := map[string]string{"code": code, "nome": nome, "cognome": cognome}
	if status := s.do(t, http.MethodPost, "/api/session/join", "", body, &participant); status != http.StatusCreated {
		t.Fatalf("join: status %d", status)
	}
	return participant.ParticipantID
}
