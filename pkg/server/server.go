// Package server exposes the orchestration layer over HTTP: status polling,
// session spawn/close, computer-use tool dispatch, chat completions, and
// vision requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruslanmv/chimera/pkg/browser"
	"github.com/ruslanmv/chimera/pkg/logging"
	"github.com/ruslanmv/chimera/pkg/router"
	"github.com/ruslanmv/chimera/pkg/status"
	"github.com/ruslanmv/chimera/pkg/types"
)

const maxVisionUpload = 20 << 20 // 20 MiB

// Server wires the HTTP surface to the orchestration components.
type Server struct {
	router          *router.Router
	manager         *browser.Manager
	dispatcher      *browser.Dispatcher
	aggregator      *status.Aggregator
	log             *logging.Logger
	authToken       string
	screenshotDir   string
	version         string
	defaultProvider string

	httpServer *http.Server
}

// Options configures a Server.
type Options struct {
	// AuthToken, when non-empty, gates every API route behind bearer auth.
	AuthToken string

	// ScreenshotDir is served read-only under /static/screenshots/.
	ScreenshotDir string

	// Version is reported by the health endpoint.
	Version string

	// DefaultProvider is reported by the health endpoint.
	DefaultProvider string
}

// New creates the HTTP server.
func New(rt *router.Router, manager *browser.Manager, dispatcher *browser.Dispatcher, aggregator *status.Aggregator, opts Options, log *logging.Logger) *Server {
	return &Server{
		router:          rt,
		manager:         manager,
		dispatcher:      dispatcher,
		aggregator:      aggregator,
		log:             log,
		authToken:       opts.AuthToken,
		screenshotDir:   opts.ScreenshotDir,
		version:         opts.Version,
		defaultProvider: opts.DefaultProvider,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors)
	r.Use(requestLogger(s.log))

	// Unauthenticated probes and static assets.
	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/screenshots/*", http.StripPrefix("/static/screenshots/",
		http.FileServer(http.Dir(s.screenshotDir))))

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.authToken))

		r.Get("/api/status", s.handleStatus)
		r.Post("/api/spawn/{provider}", s.handleSpawn)
		r.Post("/api/close/{provider}", s.handleClose)
		r.Post("/api/computer/{model}/tool", s.handleTool)
		r.Post("/v1/chat/completions", s.handleChat)
		r.Post("/api/vision", s.handleVision)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.Infof("listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"app_name":       "chimera",
		"version":        s.version,
		"provider":       s.defaultProvider,
		"plugins_loaded": len(s.aggregator.Take().Plugins),
		"run_id":         s.log.RunID(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.aggregator.Take()
	activeSessions.Set(float64(len(snapshot.ActiveSessions)))
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	info, err := s.manager.Spawn(r.Context(), provider)
	if err != nil {
		s.writeKindError(w, err)
		return
	}

	activeSessions.Set(float64(len(s.manager.Sessions())))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"state": info.State,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	if err := s.manager.Close(provider); err != nil {
		s.writeKindError(w, err)
		return
	}

	activeSessions.Set(float64(len(s.manager.Sessions())))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type toolRequest struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")

	var req toolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(browser.KindInvalidToolCall), "malformed request body")
		return
	}

	result, err := s.dispatcher.Execute(r.Context(), model, browser.Tool(req.Tool), req.Args)
	toolCalls.WithLabelValues(req.Tool, outcomeLabel(err)).Inc()
	if err != nil {
		s.writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":  model,
		"result": result,
	})
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []*types.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(browser.KindInvalidToolCall), "malformed request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, string(browser.KindInvalidToolCall), "messages must not be empty")
		return
	}

	reply, err := s.router.Chat(r.Context(), req.Model, req.Messages)
	chatTurns.WithLabelValues(req.Model, outcomeLabel(err)).Inc()
	if err != nil {
		s.writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     "chimera-gen",
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       reply,
				"finish_reason": "stop",
			},
		},
	})
}

func (s *Server) handleVision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxVisionUpload); err != nil {
		writeError(w, http.StatusBadRequest, string(browser.KindInvalidToolCall), "malformed multipart form")
		return
	}

	model := r.FormValue("model")
	prompt := r.FormValue("prompt")
	if prompt == "" {
		writeError(w, http.StatusBadRequest, string(browser.KindInvalidToolCall), "prompt is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, string(browser.KindInvalidToolCall), "file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxVisionUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(browser.KindInvalidToolCall), "could not read uploaded file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/png"
	}

	response, err := s.router.Vision(r.Context(), model, prompt, image, mimeType)
	if err != nil {
		s.writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

// statusForKind maps the orchestration error taxonomy onto HTTP codes.
func statusForKind(kind browser.ErrorKind) int {
	switch kind {
	case browser.KindInvalidToolCall, browser.KindCapabilityNotSupported, browser.KindProviderNotBrowserBacked:
		return http.StatusBadRequest
	case browser.KindDomainBlocked:
		return http.StatusForbidden
	case browser.KindProviderNotFound, browser.KindSessionNotFound, browser.KindLocatorNotFound:
		return http.StatusNotFound
	case browser.KindSessionNotReady, browser.KindLocatorAmbiguous:
		return http.StatusConflict
	case browser.KindUpstreamProviderError:
		return http.StatusBadGateway
	case browser.KindSpawnTimeout, browser.KindNavigationTimeout, browser.KindExecutionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeKindError(w http.ResponseWriter, err error) {
	var categorized *browser.Error
	if errors.As(err, &categorized) {
		writeError(w, statusForKind(categorized.Kind), string(categorized.Kind), categorized.Detail)
		return
	}

	s.log.Errorf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "Internal", "internal error")
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing useful left to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, map[string]string{
		"kind":   kind,
		"detail": detail,
	})
}
