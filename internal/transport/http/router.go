package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/logger"
	"quiz-live-service/internal/metrics"
)

// Handler serves the REST surface and the WebSocket channels.
type Handler struct {
	live    *app.LiveService
	sim     *app.SimulatorService
	auth    *Authenticator
	log     *logger.Logger
	metrics *metrics.Metrics
	ws      *WSHandler
	origins []string
}

// Options carries the collaborators of the HTTP layer.
type Options struct {
	Live        *app.LiveService
	Simulator   *app.SimulatorService
	Hub         *app.Hub
	Auth        *Authenticator
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

func NewHandler(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{
		live:    opts.Live,
		sim:     opts.Simulator,
		auth:    opts.Auth,
		log:     log.With("service", "HTTP"),
		metrics: opts.Metrics,
		origins: opts.CORSOrigins,
	}
	h.ws = NewWSHandler(opts.Live, opts.Simulator, opts.Hub, opts.Auth, log)
	return h
}

// Router builds the chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	origins := h.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Route("/api/live", func(r chi.Router) {
		r.Post("/", h.createLive)
		r.Get("/code/{code}", h.resolveCode)
		r.Get("/{liveID}/lobby", h.lobby)
		r.Group(func(r chi.Router) {
			r.Use(h.facilitatorOnly(liveIDParam))
			r.Post("/{liveID}/lock", h.lockLive)
			r.Post("/{liveID}/start", h.startLive)
			r.Post("/{liveID}/pause", h.pauseLive)
			r.Post("/{liveID}/resume", h.resumeLive)
			r.Post("/{liveID}/end", h.endLive)
			r.Get("/{liveID}/details", h.liveDetails)
			r.Get("/{liveID}/participants", h.liveParticipants)
			r.Get("/{liveID}/report", h.liveReport)
		})
	})

	r.Route("/api/session", func(r chi.Router) {
		r.Post("/join", h.join)
		r.Post("/next", h.nextQuestion)
		r.Post("/answer", h.submitAnswer)
		r.Get("/explanation", h.explanation)
	})

	r.Route("/api/simulator", func(r chi.Router) {
		r.Get("/exercises", h.listExercises)
		r.Get("/exercises/{exerciseID}/steps", h.exerciseSteps)
		r.Post("/sessions", h.createSimulatorSession)
		r.Get("/sessions/{sessionID}", h.simulatorDetails)
		r.Post("/sessions/{sessionID}/join", h.joinSimulator)
		r.Post("/sessions/{sessionID}/actions", h.recordAction)
		r.Post("/sessions/{sessionID}/hints", h.requestHint)
		r.Post("/sessions/{sessionID}/skip", h.skipStep)
		r.Get("/sessions/{sessionID}/progress/{participantID}", h.simulatorProgress)
		r.Get("/sessions/{sessionID}/report/{participantID}", h.simulatorReport)
		r.Group(func(r chi.Router) {
			r.Use(h.facilitatorOnly(h.simulatorLiveID))
			r.Post("/sessions/{sessionID}/start", h.startSimulator)
			r.Post("/sessions/{sessionID}/pause", h.pauseSimulator)
			r.Post("/sessions/{sessionID}/resume", h.resumeSimulator)
			r.Post("/sessions/{sessionID}/end", h.endSimulator)
		})
	})

	r.Get("/ws/live/{liveID}", h.ws.ServeFacilitator)
	r.Get("/ws/participant/{code}/{participantID}", h.ws.ServeParticipant)
	r.Get("/ws/simulator/{sessionID}", h.ws.ServeSimulator)
	return r
}

// requestLogger writes one line per request through the service logger.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func liveIDParam(r *http.Request) (string, error) {
	return chi.URLParam(r, "liveID"), nil
}

func (h *Handler) simulatorLiveID(r *http.Request) (string, error) {
	info, err := h.sim.Details(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		return "", err
	}
	return info.LiveID, nil
}
