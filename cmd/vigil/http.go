package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"vigil/internal/auth"
	"vigil/internal/classify"
	"vigil/internal/database"
	"vigil/internal/middleware"
	"vigil/internal/ws"
)

// handleHTTPServer configures and starts the HTTP server on the given
// address. It shuts the server down when the context is cancelled and
// reports startup failures on the error channel.
func handleHTTPServer(ctx context.Context, addr string, wsHandler *ws.Handler, hub *ws.Hub, db *database.Database, classifier *classify.LLMClassifier, authenticator *auth.Authenticator, wg *sync.WaitGroup, errc chan error, logger *log.Logger) {
	api := &apiServer{
		hub:           hub,
		db:            db,
		classifier:    classifier,
		authenticator: authenticator,
		logger:        logger,
	}

	requireAuth := middleware.AuthMiddleware(authenticator)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", api.handleHealth)
	mux.HandleFunc("/auth/login", api.handleLogin)
	mux.Handle("/v1/events", requireAuth(http.HandlerFunc(api.handleListEvents)))
	mux.Handle("/v1/status", requireAuth(http.HandlerFunc(api.handleStatus)))
	mux.Handle("/ws/analyze", wsHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: time.Second * 60}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			logger.Printf("HTTP server listening on %q", addr)
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		logger.Printf("shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Printf("failed to shutdown: %v", err)
		}
	}()
}

// apiServer implements the REST endpoints next to the WebSocket route
type apiServer struct {
	hub           *ws.Hub
	db            *database.Database
	classifier    *classify.LLMClassifier
	authenticator *auth.Authenticator
	logger        *log.Logger
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("failed to encode response: %v", err)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports service and upstream classifier health
func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"classifier_healthy": s.classifier.IsHealthy(),
		"active_sessions":    s.hub.SessionCount(),
	})
}

// handleLogin exchanges credentials for a JWT token
func (s *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.authenticator.Authenticate(creds.Username, creds.Password)
	if err != nil {
		switch err {
		case auth.ErrAuthDisabled:
			s.writeError(w, http.StatusNotFound, "authentication is disabled")
		case auth.ErrInvalidCredentials:
			s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			s.writeError(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// handleListEvents returns persisted detection events, newest first.
// Supports ?session_id=, ?since=RFC3339 and ?limit= filters.
func (s *apiServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = &t
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.db.ListDetectionEvents(r.URL.Query().Get("session_id"), since, limit)
	if err != nil {
		s.logger.Printf("failed to list detection events: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	events := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		events = append(events, map[string]interface{}{
			"id":              rec.ID,
			"session_id":      rec.SessionID,
			"detected":        rec.Detected,
			"confidence":      rec.Confidence,
			"description":     rec.Description,
			"window_duration": rec.WindowDuration,
			"buffer_size":     rec.BufferSize,
			"created_at":      rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleStatus reports a snapshot of every live analysis session
func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":      s.hub.Stats(),
		"session_count": s.hub.SessionCount(),
	})
}
