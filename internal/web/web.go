package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/csrf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schedweb/internal/auth"
	"schedweb/internal/config"
	"schedweb/internal/form"
	appLog "schedweb/internal/log"
	"schedweb/internal/schedule"
	"schedweb/internal/store"
)

// Server serves the scheduler page, the editors and the calendar feeds.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	actions form.Actions
	reg     *prometheus.Registry
	loc     *time.Location

	mux     *http.ServeMux
	pages   *renderer
	views   *viewRegistry
	metrics *metrics
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Store *store.Store
	// Actions submits editor payloads; normally the backend client.
	Actions form.Actions
	// Registry, when set, receives the web metrics and is served on
	// /metrics.
	Registry *prometheus.Registry
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}

	mode := schedule.Mode(cfg.FilterMode)
	ttl := time.Duration(cfg.ViewTTLMinutes) * time.Minute

	s := &Server{
		cfg:     cfg,
		store:   deps.Store,
		actions: deps.Actions,
		reg:     deps.Registry,
		loc:     resolveLocation(cfg.Timezone),
		mux:     http.NewServeMux(),
		pages:   pages,
		views:   newViewRegistry(ttl, mode, cfg.CalendarView),
	}
	if deps.Registry != nil {
		s.metrics = newMetrics(deps.Registry, s.views)
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the root handler: routes wrapped in CSRF protection and,
// when configured, HTTP Basic Auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)

	if key, ok := s.cfg.CSRFKeyBytes(); ok {
		protect := csrf.Protect(key,
			csrf.Secure(s.cfg.SecureCookies),
			csrf.Path("/"),
			csrf.CookieName("schedweb_csrf"),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
		)
		protected := protect(h)
		// Without TLS the strict Referer check would reject every post.
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil && !s.cfg.SecureCookies {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	} else {
		appLog.Warn("CSRF protection disabled: no valid csrf_key configured")
	}

	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	// Empty username or password disables auth.
	return s.cfg != nil && s.cfg.BasicAuth.Enabled()
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	creds := *s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, creds.Username) || !checkPassword(creds, p) {
			appLog.Debug("basic auth rejected", "remote", r.RemoteAddr, "user", u)
			w.Header().Set("WWW-Authenticate", `Basic realm="schedweb", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkPassword prefers the argon2id hash over a plaintext password.
func checkPassword(creds config.BasicAuthConfig, given string) bool {
	if creds.PasswordHash == "" {
		return secureCompare(given, creds.Password)
	}
	ok, err := auth.VerifyPassword(given, creds.PasswordHash)
	if err != nil {
		appLog.Error("basic auth password_hash is unusable", err)
		return false
	}
	return ok
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("stopping HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
	s.mux.Handle("GET /static/", staticHandler())

	s.mux.HandleFunc("POST /filter/user", s.handleFilterUser)
	s.mux.HandleFunc("POST /filter/client", s.handleFilterClient)
	s.mux.HandleFunc("POST /filter/clear", s.handleFilterClear)
	s.mux.HandleFunc("POST /refresh", s.handleRefresh)

	s.registerEditor(appointmentRoutes())
	s.registerEditor(clientRoutes())
	s.mux.HandleFunc("GET /clients", s.handleClients)

	if s.reg != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	appLog.Warn("csrf check failed", "path", r.URL.Path, "reason", csrf.FailureReason(r))
	s.renderError(w, http.StatusForbidden, "Forbidden", "The form has expired. Reload the page and try again.")
}

// errorPage is the data for error.html.
type errorPage struct {
	pageBase
	Message string
}

func (s *Server) renderError(w http.ResponseWriter, status int, title, msg string) {
	s.pages.render(w, status, "error", errorPage{pageBase: pageBase{Title: title}, Message: msg})
}

func resolveLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", name)
		return time.UTC
	}
	return loc
}

func parseID(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
