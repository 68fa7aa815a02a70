package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/fixture"
)

// APIService exposes the fixture control API over HTTP.
type APIService struct {
	cfg      *config.Config
	services *Services
	server   *http.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, services *Services) *APIService {
	return &APIService{
		cfg:      cfg,
		services: services,
	}
}

// Start begins the API server if enabled.
func (s *APIService) Start(ctx context.Context) {
	if !s.cfg.API.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *APIService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /fixtures", s.handleList)
	mux.HandleFunc("GET /fixtures/{id}", s.handleGet)
	mux.HandleFunc("POST /fixtures/{id}/turn_on", s.handleTurnOn)
	mux.HandleFunc("POST /fixtures/{id}/turn_off", s.handleTurnOff)
	mux.HandleFunc("POST /fixtures/{id}/toggle", s.handleToggle)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	log.Info().Str("addr", addr).Msg("Starting control API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("API server error")
	}
}

// fixtureView is the JSON representation of one fixture.
type fixtureView struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	State      fixture.Snapshot `json:"state"`
	Attributes map[string]any   `json:"attributes"`
}

func viewOf(ctrl *fixture.Controller) fixtureView {
	return fixtureView{
		ID:         ctrl.ID(),
		Name:       ctrl.Name(),
		State:      ctrl.State(),
		Attributes: ctrl.Attributes(),
	}
}

func (s *APIService) handleList(w http.ResponseWriter, r *http.Request) {
	ctrls := s.services.Fixtures()
	views := make([]fixtureView, 0, len(ctrls))
	for _, ctrl := range ctrls {
		views = append(views, viewOf(ctrl))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *APIService) handleGet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(ctrl))
}

func (s *APIService) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req fixture.Request
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	ctrl.TurnOn(r.Context(), req)
	writeJSON(w, http.StatusOK, viewOf(ctrl))
}

func (s *APIService) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctrl.TurnOff(r.Context())
	writeJSON(w, http.StatusOK, viewOf(ctrl))
}

func (s *APIService) handleToggle(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctrl.Toggle(r.Context())
	writeJSON(w, http.StatusOK, viewOf(ctrl))
}

func (s *APIService) lookup(w http.ResponseWriter, r *http.Request) (*fixture.Controller, bool) {
	ctrl, ok := s.services.Fixture(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown fixture", http.StatusNotFound)
		return nil, false
	}
	return ctrl, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}
