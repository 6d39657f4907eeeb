package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"murmur/internal/audio"
	"murmur/internal/logging"
	"murmur/internal/services"
	"murmur/internal/task"
)

// maxUploadBytes caps task audio uploads. An hour of 16-bit 16 kHz stereo
// WAV fits comfortably.
const maxUploadBytes = 256 << 20

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	bind = strings.TrimSpace(bind)
	if bind == "" || d == nil {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/probe", srv.handleProbe)
	mux.HandleFunc("/api/tasks", srv.handleTasks)
	mux.HandleFunc("/api/tasks/", srv.handleTaskAction)
	mux.HandleFunc("/api/events", srv.handleEvents)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr reports the bound listen address, empty before start.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	desc := s.daemon.Probe()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"platform":     desc.Platform,
		"arch":         desc.Arch,
		"gpu_vendors":  desc.GPUVendors,
		"accelerators": desc.Accelerators.Names(),
	})
}

// handleTasks starts a task from an uploaded WAV body (POST) or reports the
// current task (GET).
func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, ok := s.daemon.TaskStatus()
		if !ok {
			s.writeError(w, http.StatusNotFound, "no task")
			return
		}
		s.writeJSON(w, http.StatusOK, snap)
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "cannot read request body")
			return
		}
		if len(body) > maxUploadBytes {
			s.writeError(w, http.StatusRequestEntityTooLarge, "audio upload too large")
			return
		}
		samples, err := audio.Decode(bytes.NewReader(body))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, err := s.daemon.StartTask(samples)
		if err != nil {
			s.writeError(w, statusForError(err), err.Error())
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTaskAction routes /api/tasks/{id}/pause|resume|cancel.
func (s *apiServer) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	id, action, found := strings.Cut(rest, "/")
	if !found || id == "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	var err error
	switch action {
	case "pause":
		err = s.daemon.Pause(id)
	case "resume":
		err = s.daemon.Resume(id)
	case "cancel":
		err = s.daemon.Cancel(id)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	snap, _ := s.daemon.TaskStatus()
	s.writeJSON(w, http.StatusOK, snap)
}

// handleEvents streams task events over a websocket until the client
// disconnects.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.daemon.hub.subscribe()
	defer cancel()

	// Reader goroutine notices client-side closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopping"), deadline)
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

// statusForError maps service error markers onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, task.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusConflict
	case errors.Is(err, services.ErrResolution), errors.Is(err, services.ErrStrictLoad):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
