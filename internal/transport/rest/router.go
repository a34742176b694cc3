package rest

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"reviewlens/internal/logger"
	"reviewlens/internal/observability"
	"reviewlens/internal/service"
	"reviewlens/internal/transport/rest/handler"
	"reviewlens/internal/transport/rest/middleware"
	"reviewlens/internal/transport/ws"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService     *service.AuthService
	ChatService     *service.ChatService
	TaxonomyService *service.TaxonomyService
	CorpusService   *service.CorpusService
	ReportService   *service.ReportService
	WSHub           *ws.Hub
	CORSOrigins     []string
	Logger          *logger.Logger
	Metrics         *observability.Metrics
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()
	log := logger.OrNop(c.Logger)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	chatHandler := handler.NewChatHandler(c.ChatService)
	taxonomyHandler := handler.NewTaxonomyHandler(c.TaxonomyService, c.CorpusService)
	reportHandler := handler.NewReportHandler(c.ReportService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.CORSOrigins))
	r.Use(requestLogger(log, c.Metrics))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/admin/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions", chatHandler.Start).Methods("POST", "OPTIONS")
	v1.HandleFunc("/categories", taxonomyHandler.Categories).Methods("GET", "OPTIONS")
	v1.HandleFunc("/categories/{category}/factors", taxonomyHandler.Factors).Methods("GET", "OPTIONS")
	v1.HandleFunc("/categories/{category}/questions", taxonomyHandler.Questions).Methods("GET", "OPTIONS")

	// WebSocket route (token in query param)
	if c.WSHub != nil {
		wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.ChatService, log)
		v1.HandleFunc("/ws/sessions/{id}", wsHandler.SessionWS).Methods("GET")
	}

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Session routes (require the session's own token)
	sessionRoutes := v1.NewRoute().Subrouter()
	sessionRoutes.Use(authMW.RequireSession)

	sessionRoutes.HandleFunc("/sessions/{id}", chatHandler.Get).Methods("GET", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}", chatHandler.Delete).Methods("DELETE", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/messages", chatHandler.Step).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/finalize", chatHandler.Finalize).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/sessions/{id}/related/{factorKey}", chatHandler.Related).Methods("GET", "OPTIONS")
	sessionRoutes.HandleFunc("/reports/{id}", reportHandler.Get).Methods("GET", "OPTIONS")

	// Admin routes (require admin auth)
	adminRoutes := v1.NewRoute().Subrouter()
	adminRoutes.Use(authMW.RequireAdmin)

	adminRoutes.HandleFunc("/categories/{category}/taxonomy", taxonomyHandler.Replace).Methods("PUT", "OPTIONS")
	adminRoutes.HandleFunc("/categories/{category}/reviews", taxonomyHandler.ImportReviews).Methods("POST", "OPTIONS")

	return r
}

// corsMiddleware answers preflight requests and echoes allowed origins.
// An empty list or "*" allows any origin.
func corsMiddleware(origins []string) mux.MiddlewareFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the recorder
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func requestLogger(log *logger.Logger, metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)
			log.Debug("http request",
				"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", elapsed)
			metrics.HTTPRequest(r.Context(), r.Method, routeTemplate(r), rec.status, elapsed)
		})
	}
}

// routeTemplate names the matched route, e.g. /v1/sessions/{id}
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
