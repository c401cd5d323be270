package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"screen-automations/internal/domain"
	"screen-automations/internal/usecase/automation"
)

// Trigger запускает обработку вне расписания.
type Trigger interface {
	Trigger(ctx context.Context, organizationID string, at time.Time) (automation.TickReport, error)
}

// Server оборачивает chi.Router с базовыми middlewares.
type Server struct {
	Router chi.Router
	log    zerolog.Logger
	srv    *http.Server
}

// NewServer создаёт HTTP сервер с ручкой ручного запуска.
func NewServer(logger zerolog.Logger, trigger Trigger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s := &Server{Router: r, log: logger.With().Str("component", "http").Logger()}
	r.Post("/api/v1/automations/run", s.handleRun(trigger))
	return s
}

func (s *Server) handleRun(trigger Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.URL.Query().Get("organization_id"))
		var at time.Time
		if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "at должен быть в формате RFC3339")
				return
			}
			at = parsed
		}
		report, err := trigger.Trigger(r.Context(), orgID, at)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrOrganizationNotFound) {
				status = http.StatusNotFound
			}
			s.log.Error().Err(err).Str("organization", orgID).Msg("http: ручной запуск не удался")
			writeError(w, status, err.Error())
			return
		}
		s.log.Info().Str("organization", orgID).Int("drafts", report.DraftsCommitted()).Msg("http: ручной запуск выполнен")
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start запускает http.Server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute,
	}
	s.log.Info().Str("addr", addr).Msg("HTTP сервер запущен")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown корректно завершает работу.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
