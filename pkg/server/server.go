package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/foreverif/laf/pkg/api"
	"github.com/foreverif/laf/pkg/auth"
	"github.com/foreverif/laf/pkg/logging"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-Id"

// Server holds references to the api handler, router, etc.
type Server struct {
	router    *mux.Router
	handler   *api.Handler
	logger    logrus.FieldLogger
	uidHeader string
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger used by the request logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithUIDHeader sets the header trusted to carry the caller uid
func WithUIDHeader(header string) Option {
	return func(s *Server) {
		s.uidHeader = header
	}
}

// NewServer creates a new instance of Server.
func NewServer(handler *api.Handler, opts ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		handler:   handler,
		logger:    logrus.StandardLogger(),
		uidHeader: auth.DefaultUIDHeader,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handler.RegisterRoutes(s.router)

	s.router.Use(requestIDMiddleware)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(auth.Middleware(s.uidHeader))

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Warn("no route found")
		http.NotFound(w, r)
	})

	return s
}

// Router exposes the internal mux.Router.
func (s *Server) Router() http.Handler {
	return s.router
}

// requestIDMiddleware keeps an incoming request id or assigns a new one, and echoes it.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLoggerMiddleware stores a request-scoped logger in the context and logs the
// method, path, status and duration of each request.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.WithField("request_id", r.Header.Get(RequestIDHeader))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(logging.With(r.Context(), logger)))

		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}
