package distributord

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"merkledrop/native/distributor"
	"merkledrop/observability"
	"merkledrop/observability/logging"
	"merkledrop/services/claimindex"
)

// Catalog enumerates known distributors in creation order.
type Catalog interface {
	Distributors() ([][32]byte, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine       *distributor.Engine
	Catalog      Catalog
	Index        *claimindex.Index
	Logger       *slog.Logger
	RateLimit    RateLimit
	MaxClockSkew time.Duration
	Now          func() time.Time
}

// Server exposes the distributor engine over HTTP.
type Server struct {
	engine  *distributor.Engine
	catalog Catalog
	index   *claimindex.Index
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	now     func() time.Time

	trustProxy bool

	router http.Handler
}

// New constructs a configured HTTP router. Index and Catalog are optional;
// routes backed by them answer 503 when absent.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger.With("component", "distributord")
	srv := &Server{
		engine:  cfg.Engine,
		catalog: cfg.Catalog,
		index:   cfg.Index,
		logger:  logger,
		auth:    NewAuthenticator(cfg.MaxClockSkew, cfg.Now),
		limiter: NewRateLimiter(cfg.RateLimit, logger),
		now:     cfg.Now,

		trustProxy: cfg.RateLimit.TrustProxyHeaders,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP lets the server be mounted directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	if s.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(s.limiter.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/distributors", s.ListDistributors)
		api.Get("/distributors/{id}", s.GetDistributor)
		api.Get("/distributors/{id}/claims/{claimant}", s.GetClaim)
		api.Get("/distributors/{id}/events", s.ListEvents)
		api.Get("/claims", s.ListClaims)
		// Clawback is permissionless; the funds only ever go to the
		// configured receiver.
		api.Post("/distributors/{id}/clawback", s.Clawback)

		api.Group(func(signed chi.Router) {
			signed.Use(s.requireSignature)
			signed.Post("/distributors", s.CreateDistributor)
			signed.Post("/distributors/{id}/fund", s.Fund)
			signed.Post("/distributors/{id}/claims", s.NewClaim)
			signed.Post("/distributors/{id}/claims/{claimant}/locked", s.ClaimLocked)
			signed.Post("/distributors/{id}/admin", s.SetAdmin)
			signed.Post("/distributors/{id}/clawback-receiver", s.SetClawbackReceiver)
		})
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(chimw.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(chimw.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		observability.API().Observe(route, r.Method, status, elapsed)
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			"requestid", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// requireSignature authenticates the caller and buffers the body so handlers
// can decode exactly the bytes that were signed.
func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(MaxBodyForSignature)))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
			return
		}
		caller, err := s.auth.Authenticate(r, body)
		if err != nil {
			s.logger.LogAttrs(r.Context(), slog.LevelWarn, "signature rejected",
				slog.String("route", r.URL.Path),
				slog.String("signer", r.Header.Get(HeaderSigner)),
				logging.Redact(slog.String("nonce", r.Header.Get(HeaderNonce))),
				logging.Redact(slog.String("signature", r.Header.Get(HeaderSignature))),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}
