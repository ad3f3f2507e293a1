package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gastos/internal/cache"
	applog "gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/remote"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultMaxSessions   = 1000
	defaultAuthPerMinute = 10
	firstSnapshotWait    = 10 * time.Second
	streamKeepAlive      = 25 * time.Second
	cacheCleanupEvery    = time.Minute
)

// Pinger is implemented by data services that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LiveQueryCounter is implemented by data services that can report how many
// live queries are open.
type LiveQueryCounter interface {
	LiveQueries() int
}

// Options configures NewServer.
type Options struct {
	Addr          string
	Service       remote.Service
	Location      *time.Location
	JWTSecret     []byte
	SessionTTL    time.Duration
	MaxSessions   int
	AuthRateLimit int
	// TrustedProxies are CIDRs, besides loopback and private ranges, whose
	// X-Forwarded-For is believed.
	TrustedProxies []string
	Logger         *applog.Logger
}

type Server struct {
	http.Server
	svc      remote.Service
	loc      *time.Location
	now      func() time.Time
	tokens   *tokenIssuer
	clients  *registry
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. It fails only on a malformed trusted proxy.
func NewServer(opts Options) (*Server, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.AuthRateLimit <= 0 {
		opts.AuthRateLimit = defaultAuthPerMinute
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:      opts.Service,
		loc:      opts.Location,
		now:      time.Now,
		tokens:   newTokenIssuer(opts.JWTSecret, opts.SessionTTL),
		clients:  newRegistry(opts.MaxSessions, opts.SessionTTL),
		caches:   cache.NewManager(),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.AuthRateLimit}),
		detector: detector,
	}
	s.tracer = trace.NewMiddleware(opts.Logger.WithComponent(applog.ComponentHTTP), s.detector.ExtractClientIP)

	s.caches.Register(s.clients.clients)
	s.caches.StartCleanup(cacheCleanupEvery)
	// Closing the clients ends their event streams, which Shutdown would
	// otherwise wait on.
	s.RegisterOnShutdown(s.clients.closeAll)

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:     "Too many attempts, please try again later",
			RequestID: trace.GetRequestID(r.Context()),
		})
	})

	auth := applog.ComponentMiddleware(applog.ComponentAuth)
	expense := applog.ComponentMiddleware(applog.ComponentExpense)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/categories", handleCategories)

	mux.Handle("POST /api/auth/signin", auth(limited(http.HandlerFunc(s.handleSignIn))))
	mux.Handle("POST /api/auth/signup", auth(limited(http.HandlerFunc(s.handleSignUp))))
	mux.Handle("POST /api/auth/google", auth(limited(http.HandlerFunc(s.handleGoogle))))
	mux.Handle("POST /api/auth/signout", auth(s.withClient(s.handleSignOut)))
	mux.Handle("GET /api/session", auth(s.withClient(s.handleSession)))

	mux.Handle("GET /api/expenses", expense(s.withClient(s.handleListExpenses)))
	mux.Handle("GET /api/expenses/stream", expense(s.withClient(s.handleStreamExpenses)))
	mux.Handle("POST /api/expenses", expense(s.withClient(s.handleCreateExpense)))
	mux.Handle("DELETE /api/expenses/{id}", expense(s.withClient(s.handleDeleteExpense)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Handler = s.tracer.Middleware(headers.Middleware(s.detector.Middleware(mux)))
	return s, nil
}

// withClient resolves the bearer token to its client session.
func (s *Server) withClient(next func(http.ResponseWriter, *http.Request, *client)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.clientFromRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, c)
	}
}

func (s *Server) clientFromRequest(r *http.Request) (*client, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, errInvalidToken
	}
	sid, err := s.tokens.parse(raw)
	if err != nil {
		return nil, err
	}
	c, ok := s.clients.get(sid)
	if !ok {
		return nil, errInvalidToken
	}
	return c, nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.svc.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "sessions": s.clients.size()})
}

type metricsResponse struct {
	Requests    trace.Metrics             `json:"requests"`
	RateLimit   ratelimit.Metrics         `json:"rateLimit"`
	Security    security.DetectionMetrics `json:"security"`
	Sessions    int                       `json:"sessions"`
	LiveQueries int                       `json:"liveQueries"`
}

// handleMetrics reports the middleware counters and session gauges.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	resp := metricsResponse{
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Sessions:  s.clients.size(),
	}
	if c, ok := s.svc.(LiveQueryCounter); ok {
		resp.LiveQueries = c.LiveQueries()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Shutdown signs every client out and gracefully stops the server and its
// cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		// Covers servers that were never started
		s.clients.closeAll()
		s.caches.Stop()
		s.limiter.Stop()
	})
	return shutdownErr
}
