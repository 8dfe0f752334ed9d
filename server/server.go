// Package server exposes the clearing engine over HTTP: auction runs, the
// seller list, the bid reveal stream, run history, analytics, receipts and
// the admin API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/history"
	"github.com/cloudx-io/hotiron/receipt"
	"github.com/cloudx-io/hotiron/registry"
	"github.com/cloudx-io/hotiron/reveal"
)

// Listener networks.
const (
	NetworkTCP   = "tcp"
	NetworkVsock = "vsock"
)

// Options tunes the HTTP surface.
type Options struct {
	// MaxWorkers bounds concurrent auction runs. A request arriving while all
	// workers are busy is rejected with 503 instead of queueing.
	MaxWorkers int

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
	RateBurst int

	AllowedOrigins []string

	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// header identifies the client for rate limiting.
	TrustedProxies []string

	RevealMinDelay time.Duration
	RevealMaxDelay time.Duration
	RevealRand     reveal.RandSource

	// AdminSecret verifies admin JWTs. Empty disables the admin API.
	AdminSecret string
	AdminIssuer string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the collaborators a Server drives. Engine and History are
// required; Registry enables the reload endpoint and Issuer enables receipts.
type Deps struct {
	Engine   *core.Engine
	Registry registry.Reloader
	History  *history.Store
	Issuer   *receipt.Issuer
	Metrics  *Metrics
	Logger   *zap.Logger
}

type Server struct {
	engine   *core.Engine
	registry registry.Reloader
	history  *history.Store
	issuer   *receipt.Issuer
	metrics  *Metrics
	logger   *zap.Logger
	opts     Options

	workers chan struct{}
	limiter *ipRateLimiter

	trustedProxies []netip.Prefix
	openAPI []byte

	// closing is cancelled on shutdown so that hijacked stream connections,
	// which http.Server.Shutdown does not track, wind down too.
	closing       context.Context
	cancelClosing context.CancelFunc
}

// New validates deps and builds a server.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if deps.History == nil {
		return nil, errors.New("server: history store is required")
	}
	if opts.MaxWorkers <= 0 {
		return nil, fmt.Errorf("server: max workers must be positive, got %d", opts.MaxWorkers)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}

	trusted, err := parseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	doc, err := auctionapi.LoadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	openAPI, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode openapi document: %w", err)
	}

	s := &Server{
		engine:   deps.Engine,
		registry: deps.Registry,
		history:  deps.History,
		issuer:   deps.Issuer,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     opts,
		workers:  make(chan struct{}, opts.MaxWorkers),
		openAPI:  openAPI,

		trustedProxies: trusted,
	}
	if opts.RateLimit > 0 {
		s.limiter = newIPRateLimiter(opts.RateLimit, opts.RateBurst)
	}
	s.closing, s.cancelClosing = context.WithCancel(context.Background())

	s.logger.Info("Worker pool initialized", zap.Int("max_workers", opts.MaxWorkers))
	return s, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sellers", s.handleSellers)
	mux.HandleFunc("POST /auction/run", s.withWorker(s.handleRun))
	mux.HandleFunc("POST /auction/run-by-address", s.withWorker(s.handleRunByAddress))
	mux.HandleFunc("GET /auction/stream", s.handleStream)
	mux.HandleFunc("GET /auction/history", s.handleHistory)
	mux.HandleFunc("DELETE /auction/history", s.handleClearHistory)
	mux.HandleFunc("GET /analytics/summary", s.handleAnalytics)
	mux.HandleFunc("GET /receipts/key", s.handleReceiptKey)
	mux.HandleFunc("POST /admin/sellers/reload", s.requireAdmin(s.handleReload))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)

	var h http.Handler = mux
	h = s.rateLimitMiddleware(h)
	h = corsMiddleware(s.opts.AllowedOrigins)(h)
	h = s.recoveryMiddleware(h)
	h = s.loggingMiddleware(h)
	h = requestIDMiddleware(h)
	return h
}

// withWorker acquires a worker slot, rejecting immediately if the pool is full.
func (s *Server) withWorker(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.tryAcquireWorker() {
			s.rejectBusy(w, r)
			return
		}
		defer s.releaseWorker()
		next(w, r)
	}
}

func (s *Server) tryAcquireWorker() bool {
	select {
	case s.workers <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) releaseWorker() {
	<-s.workers
}

func (s *Server) rejectBusy(w http.ResponseWriter, r *http.Request) {
	s.metrics.workerRejections.Inc()
	s.logger.Info("No workers available, rejecting request (pool full)",
		zap.String("path", r.URL.Path))
	writeDetail(w, http.StatusServiceUnavailable, "no workers available, retry later")
}

// Listen opens the listener for network: a TCP address, or a vsock port when
// running inside an enclave.
func Listen(network, addr string, vsockPort uint32) (net.Listener, error) {
	switch network {
	case NetworkVsock:
		ln, err := vsock.Listen(vsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return ln, nil
	case NetworkTCP, "":
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return ln, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}
	srv.RegisterOnShutdown(s.cancelClosing)

	s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cancelClosing()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Server shutting down", zap.Duration("timeout", s.opts.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	<-errCh
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases stream connections without an http.Server, e.g. after
// serving through httptest.
func (s *Server) Close() {
	s.cancelClosing()
}
