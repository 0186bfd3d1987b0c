package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gorilla "github.com/gorilla/websocket"

	"github.com/boost-marketplace/internal/auth"
	"github.com/boost-marketplace/internal/catalog"
	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/metrics"
	"github.com/boost-marketplace/internal/pricing"
	"github.com/boost-marketplace/internal/service"
	"github.com/boost-marketplace/internal/websocket"
)

// maxBodyBytes bounds request bodies accepted by the API.
const maxBodyBytes = 1 << 20

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components the HTTP API is built on
type Dependencies struct {
	Orders         *service.OrderService
	Tickets        *service.TicketService
	Profiles       *service.ProfileService
	Preferences    *service.PreferenceService
	Catalog        *catalog.Catalog
	Pricing        *pricing.Engine
	Hub            *websocket.Hub
	Auth           *auth.Middleware
	Limiter        *RateLimiter
	AllowedOrigins []string
	// Readiness maps a dependency name to its health check
	Readiness map[string]Pinger
}

// Handler provides HTTP handlers for the marketplace API
type Handler struct {
	orders      *service.OrderService
	tickets     *service.TicketService
	profiles    *service.ProfileService
	preferences *service.PreferenceService
	catalog     *catalog.Catalog
	pricing     *pricing.Engine
	hub         *websocket.Hub
	upgrader    *gorilla.Upgrader
	auth        *auth.Middleware
	limiter     *RateLimiter
	origins     map[string]bool
	readiness   map[string]Pinger
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies, logger *slog.Logger) *Handler {
	origins := make(map[string]bool, len(deps.AllowedOrigins))
	for _, o := range deps.AllowedOrigins {
		origins[o] = true
	}
	return &Handler{
		orders:      deps.Orders,
		tickets:     deps.Tickets,
		profiles:    deps.Profiles,
		preferences: deps.Preferences,
		catalog:     deps.Catalog,
		pricing:     deps.Pricing,
		hub:         deps.Hub,
		upgrader:    websocket.NewUpgrader(deps.AllowedOrigins),
		auth:        deps.Auth,
		limiter:     deps.Limiter,
		origins:     origins,
		readiness:   deps.Readiness,
		logger:      logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(middleware.Compress(5))
	r.Use(h.corsMiddleware)
	r.Use(h.auth.Authenticate)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public catalog and pricing
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/games", h.ListGames)
			r.Get("/games/{game}/ranks", h.ListRanks)
			r.Get("/urgencies", h.ListUrgencies)
		})
		r.Post("/quote", h.Quote)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.With(h.limiter.Handler).Post("/", h.SubmitOrder)

				r.Route("/{orderID}", func(r chi.Router) {
					r.Get("/", h.GetOrder)
					r.With(h.limiter.Handler).Post("/accept", h.AcceptOrder)
					r.With(h.limiter.Handler).Post("/complete", h.CompleteOrder)
					r.With(h.limiter.Handler).Post("/cancel", h.CancelOrder)
				})
			})

			r.Route("/tickets", func(r chi.Router) {
				r.Get("/", h.ListTickets)
				r.With(h.limiter.Handler).Post("/", h.CreateTicket)

				r.Route("/{ticketID}", func(r chi.Router) {
					r.Get("/", h.GetTicket)
					r.With(h.limiter.Handler).Post("/responses", h.RespondTicket)
					r.Put("/status", h.SetTicketStatus)
				})
			})

			r.Route("/me", func(r chi.Router) {
				r.Get("/", h.Me)
				r.Get("/history", h.GetHistory)
				r.Post("/history", h.RecordVisit)
				r.Get("/preferences", h.GetPreferences)
				r.Put("/preferences", h.SetPreferences)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Get("/profiles", h.ListProfiles)
				r.Put("/profiles/{profileID}/role", h.UpdateRole)
			})

			// WebSocket info endpoint
			r.Get("/ws/stats", h.GetWebSocketStats)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for the configured origins
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(h.origins) == 0 || h.origins["*"]:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && h.origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a 201 JSON response
func (h *Handler) writeCreated(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// classify maps an error to its HTTP status and the message safe to return.
// Anything unrecognised is an internal failure.
func classify(err error) (int, error) {
	public := domain.PublicError(err)
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest, public
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, public
	case domain.IsAccessError(err):
		return http.StatusForbidden, public
	case domain.IsNotFoundError(err):
		return http.StatusNotFound, public
	case domain.IsConflictError(err):
		return http.StatusConflict, public
	}
	return http.StatusInternalServerError, domain.ErrInternalError
}

// writeServiceError maps a service error onto the response, logging internal failures
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status, public := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("failed to "+action,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
			"user_id", auth.SessionFrom(r.Context()).UserID,
		)
	}
	h.writeError(w, status, public)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether every backing store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.readiness))
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    map[string]interface{}{"status": "not ready", "checks": checks},
			Error:   "dependencies unavailable",
		})
		return
	}
	h.writeSuccess(w, map[string]interface{}{"status": "ready", "checks": checks})
}

// HandleWebSocket upgrades an authenticated request to a live order feed
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFrom(r.Context())
	if !sess.Authenticated() {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}
	websocket.ServeWs(h.hub, h.upgrader, h.logger, sess, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}
