package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"projection/internal/core"
	"projection/internal/log"
	"projection/internal/middleware/ratelimit"
	"projection/internal/middleware/security"
	"projection/internal/middleware/trace"
	appweb "projection/web"
)

// ProjectionService is the application API the handlers call into.
type ProjectionService interface {
	Now() time.Time
	DefaultUserID() string
	CreateCategory(ctx context.Context, in core.NewCategory) (core.Category, error)
	GetCategories(ctx context.Context) ([]core.CategoryWithItems, error)
	CreateItem(ctx context.Context, in core.NewItem) (core.Item, error)
	EnsureItem(ctx context.Context, in core.NewItem) (core.Item, bool, error)
	CreateTransaction(ctx context.Context, in core.NewTransaction) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) ([]core.Transaction, error)
	GetTransactions(ctx context.Context, from, to time.Time) ([]core.TransactionDetail, error)
	GetBoardData(ctx context.Context, monthsBack, monthsForward int) ([]core.BoardCategory, error)
	BoardView(ctx context.Context, monthsBack, monthsForward int) (core.Board, error)
	CreateSavingsConfig(ctx context.Context, in core.NewSavingsConfig) (core.SavingsConfig, error)
	ListSavingsConfigs(ctx context.Context, userID string) ([]core.SavingsConfig, error)
	Ready(ctx context.Context) error
}

type Options struct {
	MonthsBack         int
	MonthsForward      int
	Locale             language.Tag
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	service   ProjectionService
	templates *template.Template
	printer   *message.Printer
	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	clientIP  *security.ClientIP
	opts      Options
	logger    *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, service ProjectionService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Locale == language.Und {
		opts.Locale = language.MustParse("es-CL")
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	// Only the built-in CIDRs are used, which always parse.
	clientIP, _ := security.NewClientIP()

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		service:  service,
		printer:  message.NewPrinter(opts.Locale),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:   trace.NewMiddleware(clientIP.Extract, opts.Logger),
		clientIP: clientIP,
		opts:     opts,
		logger:   logger,
	}

	t, err := template.New("").Funcs(s.templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			static.ServeHTTP(w, r)
		}))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mutating := s.limiter.Middleware(clientIP.Extract, s.handleRateLimited)

	mux.HandleFunc("GET /{$}", s.handleBoardPage)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/categories", s.handleGetCategories)
	mux.Handle("POST /api/categories", mutating(http.HandlerFunc(s.handleCreateCategory)))
	mux.Handle("POST /api/items", mutating(http.HandlerFunc(s.handleCreateItem)))
	mux.Handle("POST /api/items/ensure", mutating(http.HandlerFunc(s.handleEnsureItem)))
	mux.HandleFunc("GET /api/transactions", s.handleGetTransactions)
	mux.Handle("POST /api/transactions", mutating(http.HandlerFunc(s.handleCreateTransaction)))
	mux.Handle("PATCH /api/transactions/{id}", mutating(http.HandlerFunc(s.handleUpdateTransaction)))
	mux.Handle("DELETE /api/transactions/{id}", mutating(http.HandlerFunc(s.handleDeleteTransaction)))
	mux.HandleFunc("GET /api/board", s.handleGetBoardData)
	mux.HandleFunc("GET /api/board/view", s.handleBoardView)
	mux.HandleFunc("GET /api/savings-configs", s.handleListSavingsConfigs)
	mux.Handle("POST /api/savings-configs", mutating(http.HandlerFunc(s.handleCreateSavingsConfig)))

	s.Handler = security.Headers(security.DefaultHeadersConfig())(s.tracer.Handler(mux))
	return s
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
	})
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ready(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type metricsResponse struct {
	TotalRequests     int64   `json:"totalRequests"`
	ServerErrors      int64   `json:"serverErrors"`
	AverageResponseMs float64 `json:"averageResponseMs"`
	RateLimited       int64   `json:"rateLimited"`
	ActiveClients     int     `json:"activeClients"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.tracer.GetMetrics()
	writeJSON(w, http.StatusOK, metricsResponse{
		TotalRequests:     m.TotalRequests,
		ServerErrors:      m.ServerErrors,
		AverageResponseMs: float64(m.AverageResponseTime.Microseconds()) / 1000,
		RateLimited:       s.limiter.Rejected(),
		ActiveClients:     s.limiter.ActiveClients(),
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.Extract(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited"})
}
