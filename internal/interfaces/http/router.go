// Package http exposes the intake service over a chi-routed JSON API.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/api"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Handlers      *Handlers
	KeyValue      store.KeyValue
	Logger        *zap.Logger
	EnableCORS    bool
	EnableMetrics bool
}

// NewRouter builds the API router with the standard middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthHandler(cfg.KeyValue))
	if cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(cfg.Logger))

		r.Route("/application", func(r chi.Router) {
			r.Post("/", cfg.Handlers.SaveApplication)
			r.Get("/view", cfg.Handlers.GetView)
		})

		r.Route("/participant", func(r chi.Router) {
			r.Post("/", cfg.Handlers.SaveParticipant)
			r.Post("/new", cfg.Handlers.SaveParticipantAsNew)
			r.Get("/", cfg.Handlers.GetParticipant)
			r.Delete("/", cfg.Handlers.DeleteParticipant)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/data", cfg.Handlers.GetAllUserData)
			r.Delete("/data", cfg.Handlers.DeleteAllUserData)
			r.Get("/drafts", cfg.Handlers.GetDrafts)
		})
	})

	return r
}

// Authenticate resolves the request's bearer token into a principal on the
// context. Requests without a usable identity are rejected here, before any
// store work happens.
func Authenticate(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := identity.ParsePrincipal(r.Header.Get("Authorization"), time.Now())
			if err != nil {
				writeError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
		})
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

func healthHandler(kv store.KeyValue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := kv.Ping(r.Context()); err != nil {
			api.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "keyed store unreachable")
			return
		}
		api.Success(w, http.StatusOK, api.HealthResponse{Status: "ok"})
	}
}
