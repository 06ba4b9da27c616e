package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/relay/pkg/auth"
	"github.com/Mindburn-Labs/relay/pkg/blob"
	"github.com/Mindburn-Labs/relay/pkg/config"
	"github.com/Mindburn-Labs/relay/pkg/observability"
	"github.com/Mindburn-Labs/relay/pkg/queue"
	"github.com/Mindburn-Labs/relay/pkg/ratelimit"
	"github.com/Mindburn-Labs/relay/pkg/store"
)

// Deps collects the collaborators the server needs.
type Deps struct {
	Tenants    store.TenantStore
	Keys       store.APIKeyStore
	Targets    store.TargetStore
	Events     store.EventStore
	Deliveries store.DeliveryStore
	Blobs      blob.Store
	Queue      queue.Queue
	Limiter    ratelimit.Limiter
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Server is the relay HTTP application.
type Server struct {
	cfg *config.Config
	Deps
	now func() time.Time
}

func NewServer(cfg *config.Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Server{cfg: cfg, Deps: d, now: time.Now}
}

// Handler builds the routed application with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /in/{token}", s.handleIngress)
	mux.HandleFunc("POST /signup", s.handleSignup)

	authed := auth.RequireAPIKey(s.Keys)
	mux.Handle("GET /me", authed(http.HandlerFunc(s.handleMe)))
	mux.Handle("POST /targets", authed(http.HandlerFunc(s.handleUpsertTarget)))
	mux.Handle("GET /events", authed(http.HandlerFunc(s.handleListEvents)))
	mux.Handle("PUT /tenants/{token}/stripe", authed(http.HandlerFunc(s.handleSetSigningSecret)))
	mux.Handle("POST /events/{id}/replay", authed(http.HandlerFunc(s.handleReplay)))

	var h http.Handler = mux
	h = MaxBody(MaxBodyBytes)(h)
	if s.Limiter != nil {
		h = RateLimitByIP(s.Limiter, s.Logger)(h)
	}
	h = CORS(s.cfg.Origins())(h)
	h = RequestID(h)
	return h
}

// handleHealth reports configuration readiness. Booleans only; values like
// connection strings never appear here.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	database := "postgres"
	if s.cfg.DatabaseURL == "" {
		database = "sqlite-lite"
	}
	queueBackend := "redis"
	if s.cfg.RedisURL == "" {
		queueBackend = "memory"
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"database":     database,
		"queue":        queueBackend,
		"blob_backend": s.cfg.BlobBackend,
	})
}
