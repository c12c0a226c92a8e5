package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjannette/finagg-backend/internal/aggregate"
	"github.com/kjannette/finagg-backend/internal/ingest"
	"github.com/kjannette/finagg-backend/internal/limits"
	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/models"
)

const defaultMaxImportBytes = 64 << 20

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// SeriesQuerier is implemented by aggregate.Engine.
type SeriesQuerier interface {
	PriceSeries(ctx context.Context, company string, start, end time.Time) ([]models.PricePoint, error)
	SMA(ctx context.Context, company string, start, end time.Time, window int) ([]models.MovingAveragePoint, error)
	EMA(ctx context.Context, company string, start, end time.Time, smoothing float64) ([]models.MovingAveragePoint, error)
}

// CompanyLister is implemented by repository.PriceRepo.
type CompanyLister interface {
	ListCompanies(ctx context.Context) ([]string, error)
}

// ImportRunner is implemented by importer.Importer.
type ImportRunner interface {
	RunReader(ctx context.Context, r io.Reader, source string) (*models.ImportSummary, error)
}

// SessionCalendar is implemented by calendar.Sessions.
type SessionCalendar interface {
	MissingSessions(points []models.PricePoint, start, end time.Time) []time.Time
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Series    SeriesQuerier
	Companies CompanyLister
	Importer  ImportRunner
	Calendar  SessionCalendar
	DB        Pinger
	Metrics   http.Handler
	Log       *zap.SugaredLogger
}

type Options struct {
	Port           int
	APIKey         string
	CORSOrigin     string
	RateLimitRPS   float64 // 0 disables rate limiting
	RateLimitBurst int
	MaxImportBytes int64
}

type Server struct {
	deps       Deps
	log        *zap.SugaredLogger
	apiKey     string
	maxImport  int64
	limiter    *rate.Limiter
	httpServer *http.Server
}

func NewServer(deps Deps, opts Options) *Server {
	s := &Server{
		deps:      deps,
		log:       logging.OrNop(deps.Log).Named("api"),
		apiKey:    opts.APIKey,
		maxImport: opts.MaxImportBytes,
	}
	if s.maxImport <= 0 {
		s.maxImport = defaultMaxImportBytes
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = int(opts.RateLimitRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	mux := http.NewServeMux()

	// Company and series routes
	mux.HandleFunc("GET /v1/companies", s.handleCompanies)
	mux.HandleFunc("GET /v1/companies/{company}/prices", s.handlePrices)
	mux.HandleFunc("GET /v1/companies/{company}/sma", s.handleSMA)
	mux.HandleFunc("GET /v1/companies/{company}/ema", s.handleEMA)
	mux.HandleFunc("GET /v1/companies/{company}/export", s.handleExport)

	// Import routes
	mux.HandleFunc("POST /v1/imports", s.handleImport)

	// Health check and metrics (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	handler := corsMiddleware(s.authMiddleware(s.rateLimitMiddleware(s.logMiddleware(mux))), opts.CORSOrigin)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      handler,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Infof("REST API server started on http://localhost%s", s.httpServer.Addr)
	s.log.Infof("Health check: http://localhost%s/health", s.httpServer.Addr)
	if s.apiKey != "" {
		s.log.Info("Authentication: enabled (Bearer token)")
	} else {
		s.log.Info("Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func unauthenticated(path string) bool {
	return path == "/health" || path == "/metrics"
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || unauthenticated(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !unauthenticated(r.URL.Path) && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debugw("request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse(models.DayLayout, date)
	return err == nil
}

// parseRange reads the required start and end query parameters.
func parseRange(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	for _, name := range []string{"start", "end"} {
		if !validateDate(q.Get(name)) {
			return start, end, fmt.Errorf("%w: %s must be a date in YYYY-MM-DD format", aggregate.ErrInvalidParameter, name)
		}
	}
	start, _ = time.Parse(models.DayLayout, q.Get("start"))
	end, _ = time.Parse(models.DayLayout, q.Get("end"))
	return start, end, nil
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, aggregate.ErrInvalidParameter),
		errors.Is(err, limits.ErrRangeTooLarge),
		errors.Is(err, ingest.ErrSourceRead):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError reports client errors verbatim and hides server-side detail.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, what string) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Errorw("request failed", "op", what, "error", err)
		writeError(w, status, "failed to "+what)
		return
	}
	writeError(w, status, err.Error())
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
