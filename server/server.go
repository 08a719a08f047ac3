package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"djmix/config"
	"djmix/core/engine"
	"djmix/core/hub"
	"djmix/logger"
	"djmix/repository"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP control surface. Every mutating route only posts a
// command or a request and returns; results reach clients over /ws.
type Server struct {
	cfg     *config.Config
	orch    *engine.Orchestrator
	state   *engine.Publisher
	hub     *hub.Hub
	history repository.RecordingRepository
	router  *mux.Router
}

// New builds the router. hub may be nil when collaborators are not served.
func New(cfg *config.Config, orch *engine.Orchestrator, state *engine.Publisher, h *hub.Hub) *Server {
	s := &Server{cfg: cfg, orch: orch, state: state, hub: h}
	s.router = s.routes()
	return s
}

// SetHistory enables GET /api/recordings.
func (s *Server) SetHistory(repo repository.RecordingRepository) { s.history = repo }

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.StateHandler).Methods(http.MethodGet)
	api.HandleFunc("/library", s.LibraryHandler).Methods(http.MethodGet)

	decks := api.PathPrefix("/decks/{deck}").Subrouter()
	decks.HandleFunc("/load", s.LoadHandler).Methods(http.MethodPost)
	decks.HandleFunc("/play", s.PlayHandler).Methods(http.MethodPost)
	decks.HandleFunc("/pause", s.PauseHandler).Methods(http.MethodPost)
	decks.HandleFunc("/seek", s.SeekHandler).Methods(http.MethodPost)
	decks.HandleFunc("/gain", s.GainHandler).Methods(http.MethodPost)
	decks.HandleFunc("/cue", s.CueHandler).Methods(http.MethodPost)
	decks.HandleFunc("/eq", s.EQHandler).Methods(http.MethodPost)

	api.HandleFunc("/crossfader", s.CrossfaderHandler).Methods(http.MethodPost)
	api.HandleFunc("/crossfader/auto", s.AutoCrossfadeHandler).Methods(http.MethodPost)
	api.HandleFunc("/talkover", s.TalkoverHandler).Methods(http.MethodPost)
	api.HandleFunc("/mic", s.MicHandler).Methods(http.MethodPost)

	api.HandleFunc("/recording", s.RecordingStatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/recording/start", s.StartRecordingHandler).Methods(http.MethodPost)
	api.HandleFunc("/recording/stop", s.StopRecordingHandler).Methods(http.MethodPost)
	api.HandleFunc("/recording/terminate", s.TerminateRecordingHandler).Methods(http.MethodPost)
	api.HandleFunc("/recordings", s.RecordingHistoryHandler).Methods(http.MethodGet)

	if s.hub != nil {
		router.HandleFunc("/ws", s.hub.ServeWS)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", logger.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
