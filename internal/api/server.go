package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/policydesk/policydesk/internal/rag"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger          *slog.Logger
	Chat            ChatService   // Required
	History         HistoryStore  // Required
	Pool            *pgxpool.Pool // Optional: nil disables the /ready database ping
	CORSOrigins     []string      // Allowed origins for CORS
	TrustProxy      bool          // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateRPS         float64       // Rate limiter refill per second per IP (0 = default 5)
	RateBurst       int           // Rate limiter burst size per IP (0 = default 10)
	HistoryMaxTurns int           // Turns of history loaded per chat request (0 = default)
	MaxSnippetChars int           // Snippet bound for the retrieval payload (0 = default)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.History == nil {
		return nil, errors.New("history store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	historyMaxTurns := cfg.HistoryMaxTurns
	if historyMaxTurns <= 0 {
		historyMaxTurns = rag.DefaultHistoryMaxTurns
	}
	maxSnippetChars := cfg.MaxSnippetChars
	if maxSnippetChars <= 0 {
		maxSnippetChars = rag.DefaultMaxSnippetChars
	}

	ch := &chatHandler{
		service:         cfg.Chat,
		history:         cfg.History,
		historyMaxTurns: historyMaxTurns,
		maxSnippetChars: maxSnippetChars,
		logger:          logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 5.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → Throttle → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before the throttle so preflight OPTIONS
	// gets proper CORS headers.
	var handler http.Handler = mux
	handler = newThrottle(rps, burst, cfg.TrustProxy, logger).wrap(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	wrapped := handler
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		wrapped.ServeHTTP(w, r)
	})

	// Top-level mux keeps health probes outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
