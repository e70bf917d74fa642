package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/app"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/google/uuid"
)

const jsonContentType = "application/json"

const (
	healthRoute   = "GET /health"
	formatsRoute  = "GET /downloads/formats/{media_id}"
	downloadRoute = "GET /downloads/download/{$}"
	progressRoute = "GET /downloads/progress/{media_id}"
	cancelRoute   = "POST /downloads/cancel_downloads/{$}"
	activeRoute   = "GET /downloads/active"
	historyRoute  = "GET /downloads/history"
	historyDelete = "DELETE /downloads/history"
)

const requestIDHeader = "X-Request-ID"

// Handler is an API handler that receives the app.
type Handler func(http.ResponseWriter, *http.Request, *app.App)

// Server runs the REST API.
type Server struct {
	app          *app.App
	apiKey       string
	allowPrivate bool
	srv          *http.Server
}

// NewServer creates a new API server. When apiKey is empty, only requests from localhost are accepted.
func NewServer(a *app.App, listenAddr, apiKey string) *Server {
	s := &Server{app: a, apiKey: apiKey}
	if a != nil && a.Config != nil {
		s.allowPrivate = a.Config.RunningInDocker
	}
	mux := http.NewServeMux()

	mux.HandleFunc(healthRoute, s.chain(Health))
	mux.HandleFunc(formatsRoute, s.chain(GetFormats))
	mux.HandleFunc(downloadRoute, s.chain(StartDownload))
	mux.HandleFunc(progressRoute, s.chain(StreamProgress))
	mux.HandleFunc(cancelRoute, s.chain(CancelDownloads))
	mux.HandleFunc(activeRoute, s.chain(ListActive))
	mux.HandleFunc(historyRoute, s.chain(ListHistory))
	mux.HandleFunc(historyDelete, s.chain(DeleteHistory))

	s.srv = &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// isPrivateIP reports whether ip is in 10.0.0.0/8, 172.16.0.0/12, or 192.168.0.0/16.
func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 10 ||
			(ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31) ||
			(ip4[0] == 192 && ip4[1] == 168)
	}
	return false
}

// isLocalhostOrAllowedInDocker returns true if the request is from localhost, or from a
// private IP when running in Docker (host accessing via port mapping).
func isLocalhostOrAllowedInDocker(r *http.Request, inDocker bool) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	if host == "127.0.0.1" || host == "::1" {
		return true
	}
	if !inDocker {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && isPrivateIP(ip)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.apiKey == "" {
		return isLocalhostOrAllowedInDocker(r, s.allowPrivate)
	}
	token := ""
	if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		token = strings.TrimSpace(ah[7:])
	}
	if token == "" {
		token = r.Header.Get("X-API-Key")
	}
	return token == s.apiKey
}

// chain runs requestID then auth then the handler.
func (s *Server) chain(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)
		r = r.WithContext(WithRequestID(r.Context(), requestID))

		if !s.authorized(r) {
			requestLog(r).WithField("remote_addr", r.RemoteAddr).Warn("API request unauthorized")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		requestLog(r).WithField("method", r.Method).Debug("API request")
		h(w, r, s.app)
	}
}

// Start listens and serves. Blocks until Shutdown is called.
func (s *Server) Start() error {
	logutils.Log.WithField("addr", s.srv.Addr).Info("API server starting")
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutils.Log.WithError(err).Warn("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
