package sensor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/cors"
	"github.com/samber/lo"
)

// Handler serves the board over HTTP:
//
//	GET /healthz
//	GET /api/summary
//	GET /api/sensors
//	GET /api/sensors/{entity}
//
// Summary and sensor routes answer 503 until the first successful cycle.
func Handler(board *Board, corsOrigins []string, logger *slog.Logger) http.Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedHeaders: []string{"Content-Type", "Accept"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}).Handler)

	s := &server{board: board, logger: logger}
	router.Get("/healthz", s.health)
	router.Get("/api/summary", s.summary)
	router.Get("/api/sensors", s.sensors)
	router.Get("/api/sensors/{entity}", s.sensor)

	return router
}

type server struct {
	board  *Board
	logger *slog.Logger
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "ready": false}
	if summary, _, ok := s.board.Snapshot(); ok {
		body["ready"] = true
		body["generated_at"] = summary.GeneratedAt.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *server) summary(w http.ResponseWriter, r *http.Request) {
	summary, _, ok := s.board.Snapshot()
	if !ok {
		s.notReady(w)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *server) sensors(w http.ResponseWriter, r *http.Request) {
	_, states, ok := s.board.Snapshot()
	if !ok {
		s.notReady(w)
		return
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *server) sensor(w http.ResponseWriter, r *http.Request) {
	_, states, ok := s.board.Snapshot()
	if !ok {
		s.notReady(w)
		return
	}

	entity := chi.URLParam(r, "entity")
	state, found := lo.Find(states, func(st State) bool { return st.EntityID == entity })
	if !found {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown entity " + entity})
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *server) notReady(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no successful poll yet"})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
