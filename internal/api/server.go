package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"AgentVault/internal/auth"
	"AgentVault/internal/directory"
	"AgentVault/internal/ledger"
	"AgentVault/internal/observability/metrics"
)

// Options 描述 API 服务的依赖与参数。
type Options struct {
	Address         string
	Ledger          *ledger.Ledger
	Directory       *directory.Directory
	Verifier        *auth.Verifier
	Health          func(ctx context.Context) error
	ExposeMetrics   bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server 负责暴露 REST 接口。
type Server struct {
	opts      Options
	ledger    *ledger.Ledger
	directory *directory.Directory
	router    chi.Router
}

// NewServer 构造 API 服务实例。
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil || opts.Directory == nil {
		return nil, errors.New("ledger and directory are required")
	}
	if opts.Verifier == nil {
		verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeHeader})
		if err != nil {
			return nil, err
		}
		opts.Verifier = verifier
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{opts: opts, ledger: opts.Ledger, directory: opts.Directory}
	s.router = s.routes()
	return s, nil
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observeRequests)

	r.Get("/healthz", s.handleHealth)
	if s.opts.ExposeMetrics {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.opts.Verifier.Middleware)

		api.Post("/decisions", s.handleLogDecision)
		api.Get("/decisions/{fingerprint}", s.handleGetDecision)
		api.Post("/executions", s.handleExecute)
		api.Get("/history", s.handleHistory)

		api.Route("/limits/{asset}", func(lr chi.Router) {
			lr.Get("/", s.handleGetLimit)
			lr.Put("/", s.handleSetLimit)
			lr.Post("/reset", s.handleResetSpent)
		})

		api.Route("/vault", func(vr chi.Router) {
			vr.Get("/", s.handleVaultStatus)
			vr.Post("/pause", s.handlePause(true))
			vr.Post("/unpause", s.handlePause(false))
			vr.Post("/withdraw", s.handleWithdraw)
			vr.Post("/deposit", s.handleDeposit)
			vr.Post("/ownership", s.handleTransferOwnership)
		})

		api.Route("/agents", func(ar chi.Router) {
			ar.Post("/", s.handleRegisterAgent)
			ar.Get("/", s.handleListAgents)
			ar.Put("/me/metadata", s.handleUpdateMetadata)
			ar.Put("/me/services/{serviceID}", s.handleRegisterService)
			ar.Put("/me/services/{serviceID}/availability", s.handleServiceAvailability)
			ar.Get("/{identity}", s.handleGetAgent)
			ar.Put("/{identity}/status", s.handleSetStatus)
			ar.Post("/{identity}/reputation", s.handleReport)
			ar.Get("/{identity}/services", s.handleListServices)
			ar.Get("/{identity}/services/{serviceID}", s.handleGetService)
		})

		api.Post("/directory/admin", s.handleTransferAdmin)
	})
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Address,
		Handler:           withContext(ctx, s.router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// observeRequests 按路由模板记录请求指标，避免把地址等路径参数写入标签。
func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTPRequest(route, r.Method, status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
