// Package api exposes play sessions over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/logging"
	"digital.vasic.prompthunter/pkg/monitor"
	"digital.vasic.prompthunter/pkg/session"
)

// APIKeyHeader carries the caller's model API key.
const APIKeyHeader = "X-Api-Key"

const (
	defaultRequestTimeout = 60 * time.Second
	maxBodyBytes          = 64 << 10
)

// RoleLister lists the playable roles.
type RoleLister interface {
	Roles() []*content.Role
}

// Server handles HTTP requests.
type Server struct {
	sessions  *session.Manager
	roles     RoleLister
	hub       *monitor.Hub
	collector *monitor.EventCollector
	registry  *prometheus.Registry
	logger    logging.Logger
	timeout   time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithMonitor enables /ws and /dashboard.
func WithMonitor(hub *monitor.Hub, collector *monitor.EventCollector) Option {
	return func(s *Server) {
		s.hub = hub
		s.collector = collector
	}
}

// WithRegistry enables /metrics over reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNull(l) }
}

// WithRequestTimeout bounds every request except the live feed.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer creates a new API server.
func NewServer(sessions *session.Manager, roles RoleLister, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		roles:    roles,
		logger:   logging.NullLogger{},
		timeout:  defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	if s.hub != nil {
		r.Handle("/ws", s.hub)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/health", s.handleHealth)
		r.Get("/roles", s.handleRoles)
		if s.hub != nil {
			r.Get("/dashboard", s.handleDashboard)
		}
		if s.registry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		}

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleEndSession)
				r.Post("/restart", s.handleRestart)
				r.Route("/phases/{phase}", func(r chi.Router) {
					r.Post("/validate", s.handleValidate)
					r.Get("/sentence", s.handleSentence)
					r.Post("/skip", s.handleSkip)
					r.Post("/reset", s.handleReset)
					r.Post("/chat", s.handleChat)
				})
			})
		})
	})

	return r
}

// requestLogger logs requests without headers, so API keys never
// reach the log.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request completed",
			logging.StringField("method", r.Method),
			logging.StringField("path", r.URL.Path),
			logging.IntField("status", ww.Status()),
			logging.IntField("bytes", ww.BytesWritten()),
			logging.DurationField("duration", time.Since(start)),
			logging.StringField("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+APIKeyHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
