// Package web exposes the controllers over a small HTTP surface: health and
// status for operations, and the command endpoints through which manual and
// remote commands are injected between ticks.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"casa-control/internal/application"
)

// AlarmAPI is the slice of the alarm controller the server needs.
type AlarmAPI interface {
	Snapshot() application.AlarmSnapshot
	OnControlCommand(ctx context.Context, level int, now time.Time)
	OnRemoteCommand(ctx context.Context, level int, now time.Time)
}

// ThermostatAPI is the slice of the thermostat controller the server needs.
type ThermostatAPI interface {
	Snapshot() application.ThermostatSnapshot
	OnControlCommand(ctx context.Context, level int, now time.Time)
	OnComfortCommand(ctx context.Context, level int, now time.Time)
}

type Server struct {
	addr   string
	alarm  AlarmAPI
	thermo ThermostatAPI
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(addr string, alarm AlarmAPI, thermo ThermostatAPI, logger *slog.Logger) *Server {
	return &Server{addr: addr, alarm: alarm, thermo: thermo, logger: logger}
}

// Router builds the route table. Split out so tests can drive it without a
// listening socket.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	if s.alarm != nil {
		r.HandleFunc("/alarm/control", s.command(func(ctx context.Context, level int) {
			s.alarm.OnControlCommand(ctx, level, time.Now())
		})).Methods(http.MethodPost)
		r.HandleFunc("/alarm/remote", s.command(func(ctx context.Context, level int) {
			s.alarm.OnRemoteCommand(ctx, level, time.Now())
		})).Methods(http.MethodPost)
	}
	if s.thermo != nil {
		r.HandleFunc("/thermostat/control", s.command(func(ctx context.Context, level int) {
			s.thermo.OnControlCommand(ctx, level, time.Now())
		})).Methods(http.MethodPost)
		r.HandleFunc("/thermostat/comfort", s.command(func(ctx context.Context, level int) {
			s.thermo.OnComfortCommand(ctx, level, time.Now())
		})).Methods(http.MethodPost)
	}

	return r
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.addr,
		Handler: handlers.CombinedLoggingHandler(os.Stdout, s.Router()),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status server listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]any, 2)
	if s.alarm != nil {
		out["alarm"] = s.alarm.Snapshot()
	}
	if s.thermo != nil {
		out["thermostat"] = s.thermo.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Error("writing status response", "error", err)
	}
}

type commandRequest struct {
	Level int `json:"level"`
}

func (s *Server) command(apply func(ctx context.Context, level int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid command payload", http.StatusBadRequest)
			return
		}
		apply(r.Context(), req.Level)
		w.WriteHeader(http.StatusAccepted)
	}
}
