// Package api implements the broker's HTTP surface: JSON request/response
// routes for identity, event ingress, projection, plus the SSE subscriber
// route, fronted by chi routing and CORS. Transport concerns live here;
// business logic stays in pkg/identity, pkg/eventlog, and pkg/projection.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/warrenbroker/pkg/eventlog"
	"github.com/cuemby/warrenbroker/pkg/identity"
	"github.com/cuemby/warrenbroker/pkg/log"
	"github.com/cuemby/warrenbroker/pkg/metrics"
	"github.com/cuemby/warrenbroker/pkg/projection"
	"github.com/cuemby/warrenbroker/pkg/session"
	"github.com/cuemby/warrenbroker/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// Config carries the transport-level settings the server needs: the
// token secret/expiry handed to identity.Config, the CORS origin, and
// the optional TLS material for the https connection mode.
type Config struct {
	Addr       string
	Origin     string
	Secret     string
	Expiry     int64
	Connection string // "http" or "https"
	KeyPath    string
	CertPath   string
}

// Server wires the identity, eventlog, projection, and session services
// onto the broker's HTTP surface.
type Server struct {
	cfg        Config
	identity   *identity.Service
	eventlog   *eventlog.Service
	projection *projection.Service
	session    *session.Session
	httpServer *http.Server
}

// NewServer builds the chi router and wraps it in an *http.Server, ready
// for Start.
func NewServer(cfg Config, identitySvc *identity.Service, eventlogSvc *eventlog.Service, projectionSvc *projection.Service, sessionSvc *session.Session) *Server {
	s := &Server{
		cfg:        cfg,
		identity:   identitySvc,
		eventlog:   eventlogSvc,
		projection: projectionSvc,
		session:    sessionSvc,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: cfg.Origin != "*",
	}))

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/healthz", metrics.LivenessHandler())
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Post("/users", s.handleCreateUser)
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/insert", s.handleInsert)
		r.Get("/cancel/{event_id}", s.handleCancel)
		r.Get("/collections/{collection_id}", s.handleCollection)
		r.Get("/user_events", s.handleUserEvents)
	})

	// The SSE route returns 200 for any well-formed tenant id (400
	// otherwise); an unauthenticated caller is
	// denied inside the stream rather than at the transport layer, so it
	// deliberately bypasses requireAuth.
	r.Get("/events/{tenant_id}", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving, blocking until the server stops or errors.
func (s *Server) Start() error {
	logger := log.WithComponent("api")
	if s.cfg.Connection == "https" {
		cert, err := tls.LoadX509KeyPair(s.cfg.CertPath, s.cfg.KeyPath)
		if err != nil {
			return fmt.Errorf("api: load tls keypair: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		logger.Info().Str("addr", s.cfg.Addr).Msg("listening (https)")
		return s.httpServer.ListenAndServeTLS("", "")
	}
	logger.Info().Str("addr", s.cfg.Addr).Msg("listening (http)")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestMetrics records API request counts and latency by method.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(rw, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, fmt.Sprintf("%d", rw.Status())).Inc()
	})
}

type ctxKey int

const ctxUserID ctxKey = iota

// requireAuth enforces the broker's auth semantics: a missing
// Authorization header is a 400 (framework-level rejection), a
// present-but-invalid one is a 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		subject, ok := s.identity.Verify(header, s.cfg.Secret)
		if !ok {
			metrics.LoginFailuresTotal.Inc()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actingUserID(r *http.Request) string {
	v, _ := r.Context().Value(ctxUserID).(string)
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var form types.UserForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	user, err := s.identity.CreateUser(form)
	if err != nil {
		if errors.Is(err, identity.ErrUsernameTaken) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username already taken"})
			return
		}
		log.WithComponent("api").Error().Err(err).Msg("create user failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	metrics.UsersTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"id": user.ID.String()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form types.LoginForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	token, err := s.identity.Login(form, identity.Config{Secret: s.cfg.Secret, ExpirySeconds: s.cfg.Expiry})
	if err != nil {
		metrics.LoginFailuresTotal.Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jwt": token})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var form types.EventForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := s.eventlog.Insert(actingUserID(r), form)
	if err != nil {
		if errors.Is(err, eventlog.ErrTenantMismatch) {
			writeJSON(w, http.StatusOK, map[string]string{"error": "trying to write to wrong tenant"})
			return
		}
		log.WithComponent("api").Error().Err(err).Msg("insert event failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	metrics.EventsInserted.Inc()
	writeJSON(w, http.StatusOK, map[string]*types.Event{"event": event})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "event_id")
	event, err := s.eventlog.Cancel(actingUserID(r), eventID)
	if err != nil {
		if errors.Is(err, eventlog.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		log.WithComponent("api").Error().Err(err).Msg("cancel event failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	metrics.EventsCancelled.Inc()
	writeJSON(w, http.StatusOK, map[string]*types.Event{"event": event})
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	collectionID, err := uuid.Parse(chi.URLParam(r, "collection_id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	view, err := s.projection.Collection(actingUserID(r), collectionID)
	if err != nil {
		log.WithComponent("api").Error().Err(err).Msg("collection projection failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	view, err := s.projection.UserCollection(actingUserID(r))
	if err != nil {
		log.WithComponent("api").Error().Err(err).Msg("user_events projection failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenant_id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	header := r.Header.Get("Authorization")
	authenticated := false
	if header != "" {
		if _, ok := s.identity.Verify(header, s.cfg.Secret); ok {
			authenticated = true
		}
	}

	s.session.Serve(w, r, tenantID, authenticated)
}
