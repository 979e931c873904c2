// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finassist/internal/core"
	"finassist/internal/log"
	"finassist/internal/middleware/ratelimit"
	"finassist/internal/middleware/security"
	"finassist/internal/middleware/trace"
)

// Ledger is the use-case surface the handlers call. *services.LedgerService
// implements it.
type Ledger interface {
	Register(ctx context.Context, username, password string) (core.User, error)
	Login(ctx context.Context, username, password string) (core.User, error)
	Authenticate(ctx context.Context, userID string) (core.User, error)
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error)
	GetTransaction(ctx context.Context, userID, txID string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, txID string, p core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, txID string) error
	Summary(ctx context.Context, userID string) (core.Summary, error)
}

// Pinger backs the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr   string
	Ledger Ledger
	// Pinger is checked by /readyz; nil means always ready.
	Pinger Pinger
	// Limiter throttles /register and /login; nil disables it.
	Limiter ratelimit.Limiter
	// Registry receives request metrics and is served on /metrics.
	Registry       *prometheus.Registry
	Logger         *log.Logger
	TrustedProxies []string
}

type Server struct {
	http.Server
	ledger   Ledger
	pinger   Pinger
	limiter  ratelimit.Limiter
	detector *security.Detector
	metrics  *trace.Metrics
	logger   *log.Logger
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil {
		return nil, errors.New("http: ledger is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	detector, err := security.NewDetector(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	registerRuntimeCollectors(reg, detector)

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		ledger:   opts.Ledger,
		pinger:   opts.Pinger,
		limiter:  opts.Limiter,
		detector: detector,
		metrics:  trace.NewMetrics(reg),
		logger:   logger.WithComponent(log.ComponentHTTP),
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	s.handle(mux, "/{$}", s.handleIndex, http.MethodGet)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.handle(mux, "/register", s.limited(s.handleRegister), http.MethodPost)
	s.handle(mux, "/login", s.limited(s.handleLogin), http.MethodPost)
	s.handle(mux, "/transactions", s.requireUser(s.handleTransactions), http.MethodGet, http.MethodPost)
	s.handle(mux, "/transactions/{id}", s.requireUser(s.handleTransaction), http.MethodGet, http.MethodPut, http.MethodDelete)
	s.handle(mux, "/summary", s.requireUser(s.handleSummary), http.MethodGet)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(detector.ClientIP, s.metrics, logger)
	s.Handler = tracer.Middleware(headers.Middleware(s.flagSuspicious(mux)))
	return s, nil
}

// handle registers h on pattern and on the same pattern under /api, rejecting
// methods not in methods with 405.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc, methods ...string) {
	wrapped := func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, methods...) {
			return
		}
		h(w, r)
	}
	mux.HandleFunc(pattern, wrapped)
	mux.HandleFunc("/api"+pattern, wrapped)
}

// limited applies the configured limiter keyed by client IP.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	mw := ratelimit.Middleware(s.limiter,
		func(r *http.Request) string { return "auth:" + s.detector.ClientIP(r) },
		func(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
			s.metrics.RecordRateLimitHit(r.Pattern)
			log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, s.detector.ClientIP(r),
				log.FieldPath, r.URL.Path,
				"count", d.Count)
			writeError(w, r, errRateLimited)
		})
	return mw(h).ServeHTTP
}

// flagSuspicious logs probe-like requests. It never blocks.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.Suspicious(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, s.detector.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

func registerRuntimeCollectors(reg prometheus.Registerer, detector *security.Detector) {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "finassist_suspicious_requests_total",
			Help: "Requests matching a known probe pattern.",
		}, func() float64 { return float64(detector.SuspiciousCount()) }),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

// Shutdown stops accepting requests and releases the limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("HTTP server shutting down", log.FieldOperation, log.OpShutdown)
		shutdownErr = s.Server.Shutdown(ctx)
		if s.limiter != nil {
			if err := s.limiter.Close(); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}
